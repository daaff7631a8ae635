package cmd

import (
	"fmt"
	"os"

	"factweave/internal/config"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "factweave",
	Short: "Factweave builds a provenance-verified knowledge graph from news.",
	Long: `Factweave ingests articles from RSS feeds and event exports, extracts
atomic facts with an LLM, verifies which facts are original versus restated,
and publishes the verified subset to a Neo4j knowledge graph that can be
queried with hybrid keyword and vector search.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./factweave.yaml)")
}

// initConfig reads the config file and environment variables. Missing
// credentials or a broken config are fatal before any loop starts.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
}
