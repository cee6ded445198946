package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor      bool
	serverURL    string
	providerFlag string
	modelFlag    string
)

var rootCmd = &cobra.Command{
	Use:           "seoagent",
	Short:         "SEO keyword research and content generation service",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default: http://127.0.0.1:<server.port>)")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "LLM proxy for this request (302 or tuzi)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Gemini model for this request")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(deepDiveCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(websiteCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("seoagent version %s", version)
}
