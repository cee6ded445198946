package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/deepdive"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/keywords"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/mining"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/ranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// MCPDeps holds dependencies for the MCP server. Analyzer, Miner and
// Strategist are optional; their tools report an error when nil.
type MCPDeps struct {
	Route      llm.Route
	Generator  KeywordGenerator
	Analyzer   RankingAnalyzer
	Miner      KeywordMiner
	Strategist Strategist
}

// NewMCPServer creates an MCP server exposing the SEO agents as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"seoagent",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("seoagent: keyword research, ranking-probability analysis and content strategy for Google SEO."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_keywords",
			mcp.WithDescription("Generate SEO keyword ideas for a seed keyword in a target language."),
			mcp.WithString("keyword", mcp.Description("Seed keyword"), mcp.Required()),
			mcp.WithString("target_language", mcp.Description("ISO 639-1 target language (default en)")),
			mcp.WithNumber("round", mcp.Description("Generation round; 2 and later diversify away from exclude (default 1)")),
			mcp.WithArray("exclude", mcp.Description("Keywords already found")),
			mcp.WithNumber("count", mcp.Description("Number of keywords (default 10, max 50)")),
		),
		mcpGenerateKeywords(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_keywords",
			mcp.WithDescription("Estimate the probability of ranking on Google's first page for each keyword, grounded in live search results."),
			mcp.WithArray("keywords", mcp.Description("Keywords to analyze"), mcp.Required()),
			mcp.WithString("target_language", mcp.Description("ISO 639-1 target language (default en)")),
		),
		mcpAnalyzeKeywords(deps),
	)

	s.AddTool(
		mcp.NewTool("mine_keywords",
			mcp.WithDescription("Run several rounds of keyword generation and ranking analysis, returning deduplicated keywords ranked by opportunity."),
			mcp.WithString("keyword", mcp.Description("Seed keyword"), mcp.Required()),
			mcp.WithString("target_language", mcp.Description("ISO 639-1 target language (default en)")),
			mcp.WithNumber("rounds", mcp.Description("Number of rounds (default 3, max 10)")),
			mcp.WithNumber("target_high", mcp.Description("Stop once this many High probability keywords are found")),
		),
		mcpMineKeywords(deps),
	)

	s.AddTool(
		mcp.NewTool("deep_dive_strategy",
			mcp.WithDescription("Analyse the top search results and competitors for a keyword and produce a content strategy report."),
			mcp.WithString("keyword", mcp.Description("Target keyword"), mcp.Required()),
			mcp.WithString("target_language", mcp.Description("ISO 639-1 target language (default en)")),
			mcp.WithString("website_domain", mcp.Description("Your own domain, excluded from competitors")),
		),
		mcpDeepDive(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"seo://workflow-nodes",
			"Workflow Nodes",
			mcp.WithResourceDescription("Agent node ids whose prompts a workflow config can override"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceNodes,
	)

	return s
}

func mcpGenerateKeywords(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seed, err := req.RequireString("keyword")
		if err != nil {
			return mcpError("keyword is required"), nil
		}
		res := deps.Generator.Generate(ctx, deps.Route, keywords.Request{
			Seed:           seed,
			TargetLanguage: req.GetString("target_language", "en"),
			Round:          req.GetInt("round", 1),
			Exclude:        req.GetStringSlice("exclude", nil),
			Count:          req.GetInt("count", keywords.DefaultCount),
		})
		return mcpResult(res.Status, res.Reason, res.Data)
	}
}

func mcpAnalyzeKeywords(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Analyzer == nil {
			return mcpError("ranking analysis not available"), nil
		}
		var kws []seo.KeywordData
		for _, k := range req.GetStringSlice("keywords", nil) {
			if k = strings.TrimSpace(k); k != "" {
				kws = append(kws, seo.KeywordData{ID: fmt.Sprintf("mcp-%d", len(kws)), Keyword: k, Intent: seo.IntentInformational})
			}
		}
		if len(kws) == 0 {
			return mcpError("keywords is required"), nil
		}
		res := deps.Analyzer.Analyze(ctx, deps.Route, ranking.Request{
			Keywords:       kws,
			TargetLanguage: req.GetString("target_language", "en"),
		})
		return mcpResult(res.Status, res.Reason, res.Data)
	}
}

func mcpMineKeywords(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Miner == nil {
			return mcpError("keyword mining not available"), nil
		}
		seed, err := req.RequireString("keyword")
		if err != nil {
			return mcpError("keyword is required"), nil
		}
		res := deps.Miner.Mine(ctx, deps.Route, mining.Request{
			Seed:           seed,
			TargetLanguage: req.GetString("target_language", "en"),
			Rounds:         req.GetInt("rounds", mining.DefaultRounds),
			TargetHigh:     req.GetInt("target_high", 0),
		}, nil)
		return mcpResult(res.Status, res.Reason, res.Data)
	}
}

func mcpDeepDive(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Strategist == nil {
			return mcpError("deep dive not available"), nil
		}
		kw, err := req.RequireString("keyword")
		if err != nil {
			return mcpError("keyword is required"), nil
		}
		res := deps.Strategist.Run(ctx, deps.Route, deepdive.Request{
			Keyword:        kw,
			TargetLanguage: req.GetString("target_language", "en"),
			WebsiteDomain:  req.GetString("website_domain", ""),
		})
		return mcpResult(res.Status, res.Reason, res.Data)
	}
}

func mcpResourceNodes(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(seo.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// mcpResult renders an agent result as JSON text; a failed result is a tool
// error.
func mcpResult(status outcome.Status, reason string, data any) (*mcp.CallToolResult, error) {
	if status == outcome.StatusFailed {
		return mcpError(reason), nil
	}
	b, err := json.Marshal(map[string]any{"status": status, "reason": reason, "data": data})
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
