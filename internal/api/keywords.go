package api

import (
	"log/slog"
	"net/http"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/billing"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/keywords"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/mining"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/ranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

type GenerateKeywordsRequest struct {
	Keyword          string   `json:"keyword" validate:"required,max=200"`
	TargetLanguage   string   `json:"targetLanguage" validate:"required,max=16"`
	Round            int      `json:"round" validate:"gte=0,lte=50"`
	Strategy         string   `json:"strategy" validate:"max=2000"`
	ExcludeKeywords  []string `json:"excludeKeywords" validate:"max=500"`
	Count            int      `json:"count" validate:"gte=0,lte=50"`
	AnalyzeRanking   bool     `json:"analyzeRanking"`
	WorkflowConfigID string   `json:"workflowConfigId"`
}

type GenerateKeywordsResponse struct {
	Keywords []seo.KeywordData `json:"keywords"`
	Status   outcome.Status    `json:"status"`
	Reason   string            `json:"reason,omitempty"`
}

func handleGenerateKeywords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := llm.RouteFromHeaders(r.Header, deps.DefaultRoute)

		var req GenerateKeywordsRequest
		if !decode(w, r, &req) {
			return
		}
		if deps.Generator == nil {
			httpError(w, http.StatusServiceUnavailable, errInternal, "keyword generation is not configured")
			return
		}
		wf, err := workflow(r, deps, req.WorkflowConfigID)
		if err != nil {
			writeErr(w, err)
			return
		}

		gen := deps.Generator.Generate(r.Context(), route, keywords.Request{
			Seed:           req.Keyword,
			TargetLanguage: req.TargetLanguage,
			Round:          req.Round,
			Strategy:       req.Strategy,
			Exclude:        req.ExcludeKeywords,
			Count:          req.Count,
			PromptOverride: wf.Override(seo.NodeKeywordGenerator),
		})
		observe(deps, "keyword_generator", gen.Status)
		if gen.IsFailed() {
			httpError(w, http.StatusBadGateway, errUpstream, "keyword generation failed: %s", gen.Reason)
			return
		}

		resp := GenerateKeywordsResponse{Keywords: gen.Data, Status: gen.Status, Reason: gen.Reason}
		if req.AnalyzeRanking && deps.Analyzer != nil && len(gen.Data) > 0 {
			ana := deps.Analyzer.Analyze(r.Context(), route, ranking.Request{
				Keywords:       gen.Data,
				TargetLanguage: req.TargetLanguage,
				PromptOverride: wf.Override(seo.NodeRankingAnalyzer),
			})
			observe(deps, "ranking_analyzer", ana.Status)
			resp.Keywords = ana.Data
			if !ana.IsOK() && resp.Status == outcome.StatusOK {
				resp.Status, resp.Reason = ana.Status, ana.Reason
			}
		}
		if !charge(w, r, deps, billing.CostGenerateKeywords, "generate_keywords", req.Keyword) {
			return
		}
		slog.Debug("keywords generated", "seed", req.Keyword, "round", req.Round, "count", len(resp.Keywords), "status", resp.Status)
		writeJSON(w, http.StatusOK, resp)
	}
}

type KeywordMiningRequest struct {
	Keyword          string `json:"keyword" validate:"required,max=200"`
	TargetLanguage   string `json:"targetLanguage" validate:"required,max=16"`
	Rounds           int    `json:"rounds" validate:"gte=0,lte=10"`
	PerRound         int    `json:"perRound" validate:"gte=0,lte=50"`
	TargetHigh       int    `json:"targetHigh" validate:"gte=0"`
	Strategy         string `json:"strategy" validate:"max=2000"`
	SkipAnalysis     bool   `json:"skipAnalysis"`
	WorkflowConfigID string `json:"workflowConfigId"`
}

type KeywordMiningResponse struct {
	Session mining.Session `json:"session"`
	Status  outcome.Status `json:"status"`
	Reason  string         `json:"reason,omitempty"`
}

func handleKeywordMining(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := llm.RouteFromHeaders(r.Header, deps.DefaultRoute)

		var req KeywordMiningRequest
		if !decode(w, r, &req) {
			return
		}
		if deps.Miner == nil {
			httpError(w, http.StatusServiceUnavailable, errInternal, "keyword mining is not configured")
			return
		}
		wf, err := workflow(r, deps, req.WorkflowConfigID)
		if err != nil {
			writeErr(w, err)
			return
		}
		res := deps.Miner.Mine(r.Context(), route, mining.Request{
			Seed:           req.Keyword,
			TargetLanguage: req.TargetLanguage,
			Strategy:       req.Strategy,
			Rounds:         req.Rounds,
			PerRound:       req.PerRound,
			TargetHigh:     req.TargetHigh,
			SkipAnalysis:   req.SkipAnalysis,
			Workflow:       wf,
		}, func(rr mining.RoundReport) {
			slog.Debug("mining round", "seed", req.Keyword, "round", rr.Round, "added", rr.Added, "high", rr.HighTotal)
		})
		observe(deps, "keyword_miner", res.Status)
		if res.IsFailed() {
			httpError(w, http.StatusBadGateway, errUpstream, "keyword mining failed: %s", res.Reason)
			return
		}
		if !charge(w, r, deps, billing.CostKeywordMining, "keyword_mining", req.Keyword) {
			return
		}
		writeJSON(w, http.StatusOK, KeywordMiningResponse{Session: res.Data, Status: res.Status, Reason: res.Reason})
	}
}
