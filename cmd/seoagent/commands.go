package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/api"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/config"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/metrics"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the SEO agents over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// stdout carries the protocol; keep logs on stderr.
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ag, err := buildAgents(ctx, cfg, metrics.New())
		if err != nil {
			return err
		}
		defer ag.Close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Route:      ag.route,
			Generator:  ag.generator,
			Analyzer:   ag.analyzer,
			Miner:      ag.miner,
			Strategist: ag.strategist,
		})
		err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		statusOnly, _ := cmd.Flags().GetBool("status")

		cfg.Database.AutoMigrate = false
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if !statusOnly {
			applied, err := store.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				printSuccess("Schema is up to date")
			} else {
				printSuccess("Applied migrations %v", applied)
			}
		}

		status, err := store.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range status {
			state := colorize(styleWarning, "pending")
			if m.Applied {
				state = colorize(styleSuccess, "applied")
				if m.AppliedAt != nil {
					state += " " + m.AppliedAt.Format("2006-01-02 15:04")
				}
			}
			printStatus(m.Name, "%s", state)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("status", false, "only show migration status")
}

// --- mine ---

var mineCmd = &cobra.Command{
	Use:   "mine <seed keyword>",
	Short: "Mine keywords for a seed through the running server",
	Long: `Mine keywords for a seed through the running server.

Examples:
  seoagent mine "standing desk" --lang en --rounds 3
  seoagent mine "cafetera" --lang es --target-high 5 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		rounds, _ := cmd.Flags().GetInt("rounds")
		targetHigh, _ := cmd.Flags().GetInt("target-high")
		workflowID, _ := cmd.Flags().GetString("workflow")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runMine(cmd.Context(), client, cmd.OutOrStdout(), api.KeywordMiningRequest{
			Keyword:          strings.Join(args, " "),
			TargetLanguage:   lang,
			Rounds:           rounds,
			TargetHigh:       targetHigh,
			WorkflowConfigID: workflowID,
		}, asJSON)
	},
}

func runMine(ctx context.Context, client *apiClient, out io.Writer, req api.KeywordMiningRequest, asJSON bool) error {
	printStep("Mining keywords for %q", req.Keyword)
	resp, err := client.post(ctx, "/api/keyword-mining", req)
	if err != nil {
		return err
	}
	var result api.KeywordMiningResponse
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	if asJSON {
		return writeIndented(out, result)
	}

	for _, kw := range result.Session.Keywords {
		line := fmt.Sprintf("%s  %-50s %8d  %s", probabilityLabel(string(kw.Probability)), kw.Keyword, kw.Volume, kw.Intent)
		if kw.SERanking != nil && kw.SERanking.IsDataFound {
			line += colorize(styleDim, fmt.Sprintf("  KD %d", kw.SERanking.Difficulty))
		}
		fmt.Fprintln(out, line)
	}
	if result.Status != outcome.StatusOK {
		printWarning("%s: %s", result.Status, result.Reason)
	}
	printSuccess("%d keywords, %d high probability", len(result.Session.Keywords), result.Session.HighCount)
	return nil
}

func init() {
	mineCmd.Flags().String("lang", "en", "target language (ISO 639-1)")
	mineCmd.Flags().Int("rounds", 0, "number of rounds (default: server default)")
	mineCmd.Flags().Int("target-high", 0, "stop after this many High probability keywords")
	mineCmd.Flags().String("workflow", "", "workflow config id")
	mineCmd.Flags().Bool("json", false, "print the raw session JSON")
}

// --- deep-dive ---

var deepDiveCmd = &cobra.Command{
	Use:   "deep-dive <keyword>",
	Short: "Build a content strategy report for a keyword",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		domain, _ := cmd.Flags().GetString("domain")
		competitors, _ := cmd.Flags().GetInt("competitors")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := api.DeepDiveRequest{
			Keyword:         strings.Join(args, " "),
			TargetLanguage:  lang,
			WebsiteDomain:   domain,
			CompetitorLimit: competitors,
		}
		printStep("Analysing top results for %q", req.Keyword)
		resp, err := client.post(cmd.Context(), "/api/deep-dive-strategy", req)
		if err != nil {
			return err
		}
		var result api.DeepDiveResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeIndented(out, result)
		}
		printReport(out, result)
		return nil
	},
}

func printReport(out io.Writer, r api.DeepDiveResponse) {
	fmt.Fprintln(out, colorize(styleBold, r.Report.PageTitleH1))
	fmt.Fprintf(out, "  /%s\n", r.Report.URLSlug)
	fmt.Fprintf(out, "  %s\n\n", r.Report.MetaDescription)
	for _, sec := range r.Report.ContentStructure {
		fmt.Fprintf(out, "  %s\n", sec.Header)
	}
	if len(r.Competitors) > 0 {
		fmt.Fprintln(out)
		for _, c := range r.Competitors {
			fmt.Fprintf(out, "  %s %s\n", colorize(styleDim, c.Domain), c.Title)
		}
	}
	for _, d := range r.Degradations {
		printWarning("%s", d)
	}
}

func init() {
	deepDiveCmd.Flags().String("lang", "en", "target language (ISO 639-1)")
	deepDiveCmd.Flags().String("domain", "", "your website domain, excluded from competitors")
	deepDiveCmd.Flags().Int("competitors", 0, "number of competitor pages to analyse (max 5)")
	deepDiveCmd.Flags().Bool("json", false, "print the raw response JSON")
}

// --- workflow ---

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage prompt workflow configs",
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your workflow configs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		configs, err := fetchWorkflows(cmd.Context(), client)
		if err != nil {
			return err
		}
		if len(configs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No workflow configs.")
			return nil
		}
		for _, c := range configs {
			marker := " "
			if c.IsDefault {
				marker = colorize(styleSuccess, "*")
			}
			nodes := make([]string, len(c.Nodes))
			for i, n := range c.Nodes {
				nodes[i] = n.NodeID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s  %s\n", marker, colorize(styleStep, c.ID), c.Name, colorize(styleDim, strings.Join(nodes, ",")))
		}
		return nil
	},
}

var workflowExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export workflow configs as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		configs, err := fetchWorkflows(cmd.Context(), client)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := exportWorkflows(out, configs); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d configs to %s", len(configs), output)
		}
		return nil
	},
}

var workflowImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update workflow configs from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		configs, err := parseWorkflows(data)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		n, err := importWorkflows(cmd.Context(), client, configs)
		if err != nil {
			return err
		}
		printSuccess("Imported %d configs", n)
		return nil
	},
}

// workflowFile is the YAML document layout.
type workflowFile struct {
	Workflows []seo.WorkflowConfig `yaml:"workflows"`
}

func fetchWorkflows(ctx context.Context, client *apiClient) ([]seo.WorkflowConfig, error) {
	resp, err := client.get(ctx, "/api/workflow-configs")
	if err != nil {
		return nil, err
	}
	var list struct {
		Configs []seo.WorkflowConfig `json:"configs"`
	}
	if err := decodeJSON(resp, &list); err != nil {
		return nil, err
	}
	return list.Configs, nil
}

func exportWorkflows(w io.Writer, configs []seo.WorkflowConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(workflowFile{Workflows: configs}); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

func parseWorkflows(data []byte) ([]seo.WorkflowConfig, error) {
	var f workflowFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	for i, c := range f.Workflows {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("workflow %d: name is required", i+1)
		}
	}
	return f.Workflows, nil
}

// importWorkflows updates configs that carry an id and creates the rest.
func importWorkflows(ctx context.Context, client *apiClient, configs []seo.WorkflowConfig) (int, error) {
	for i, c := range configs {
		body := api.WorkflowConfigRequest{Name: c.Name, Nodes: c.Nodes, IsDefault: c.IsDefault}
		var (
			resp *http.Response
			err  error
		)
		if c.ID != "" {
			resp, err = client.put(ctx, "/api/workflow-configs/"+c.ID, body)
		} else {
			resp, err = client.post(ctx, "/api/workflow-configs", body)
		}
		if err != nil {
			return i, err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return i, fmt.Errorf("workflow %q: %w", c.Name, err)
		}
	}
	return len(configs), nil
}

func init() {
	workflowExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowExportCmd)
	workflowCmd.AddCommand(workflowImportCmd)
}

// --- website ---

var websiteCmd = &cobra.Command{
	Use:   "website",
	Short: "Manage tracked websites (direct database access)",
}

var websiteAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a website for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		email, _ := cmd.Flags().GetString("email")
		if userID == "" {
			return errors.New("--user is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.EnsureUser(cmd.Context(), userID, email); err != nil {
			return err
		}
		site, err := store.CreateWebsite(cmd.Context(), userID, args[0])
		if err != nil {
			return err
		}
		printSuccess("Registered %s as %s", site.Domain, site.ID)
		return nil
	},
}

func init() {
	websiteAddCmd.Flags().String("user", "", "owner user id")
	websiteAddCmd.Flags().String("email", "", "owner email")
	websiteCmd.AddCommand(websiteAddCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s %s\n", colorize(styleBold, k.Key), k.Value, colorize(styleDim, "("+k.Source+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
