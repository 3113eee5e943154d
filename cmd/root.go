package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ashmay29/NL2SQL/internal/config"
	"github.com/ashmay29/NL2SQL/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nl2sql",
	Short: "Translate natural-language questions into parameterized SQL",
	Long: `nl2sql turns a natural-language question over a relational schema into an
executable, parameterized SQL query. A graph attention ranker prunes the
schema to the relevant tables and columns, an LLM emits a typed intermediate
representation, and a deterministic compiler renders safe SQL with bindings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			logging.SetupFallbackLogger()
			return err
		}

		cfg = loaded

		return logging.InitializeLogger(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
			File:   cfg.Logging.File,
		})
	},
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(feedbackCmd)
}
