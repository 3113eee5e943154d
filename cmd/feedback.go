package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashmay29/NL2SQL/internal/embedding"
	"github.com/ashmay29/NL2SQL/internal/feedback"
)

var feedbackSchemaPath string

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Manage the RAG feedback store",
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add <question> <sql>",
	Short: "Record an accepted question/SQL pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeedbackAdd,
}

var feedbackSimilarCmd = &cobra.Command{
	Use:   "similar <question>",
	Short: "Show stored pairs similar to a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedbackSimilar,
}

func init() {
	feedbackCmd.PersistentFlags().StringVar(&feedbackSchemaPath, "schema", "", "Path to the schema JSON file (required)")
	_ = feedbackCmd.MarkPersistentFlagRequired("schema")

	feedbackCmd.AddCommand(feedbackAddCmd)
	feedbackCmd.AddCommand(feedbackSimilarCmd)
}

func openFeedbackStore() (*feedback.DuckDBStore, error) {
	return feedback.NewDuckDBStore(cfg.Feedback.DatabasePath,
		embedding.NewHashProvider(cfg.Ranker.QuestionModel, 384))
}

func runFeedbackAdd(cmd *cobra.Command, args []string) error {
	schema, err := loadSchemaFile(feedbackSchemaPath)
	if err != nil {
		return err
	}

	store, err := openFeedbackStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Record(cmd.Context(), args[0], args[1], schema.Version); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Recorded pair for schema %s\n", schema.Version)

	return nil
}

func runFeedbackSimilar(cmd *cobra.Command, args []string) error {
	schema, err := loadSchemaFile(feedbackSchemaPath)
	if err != nil {
		return err
	}

	store, err := openFeedbackStore()
	if err != nil {
		return err
	}
	defer store.Close()

	examples, err := store.Similar(cmd.Context(), args[0], schema.Version, cfg.Pipeline.MaxRAGExamples)
	if err != nil {
		return err
	}

	if len(examples) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No similar pairs stored for this schema")
		return nil
	}

	for i, ex := range examples {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. (%.3f) %s\n   %s\n", i+1, ex.Score, ex.Question, ex.SQL)
	}

	return nil
}
