package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/ashmay29/NL2SQL/internal/embedding"
	"github.com/ashmay29/NL2SQL/internal/feedback"
	"github.com/ashmay29/NL2SQL/internal/gat"
	"github.com/ashmay29/NL2SQL/internal/ir"
	"github.com/ashmay29/NL2SQL/internal/llm"
	"github.com/ashmay29/NL2SQL/internal/pipeline"
	"github.com/ashmay29/NL2SQL/internal/prompt"
)

var (
	querySchemaPath   string
	queryDatabaseID   string
	queryConversation string
	queryUseRAG       bool
	queryShowIR       bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Translate a natural-language question into SQL",
	Long: `query runs the full inference pipeline against a schema file: context
resolution, GAT schema ranking with structural fallback, LLM IR generation,
sanitization, validation, and compilation to parameterized SQL.

Examples:
  nl2sql query --schema ecommerce.json "top 5 customers by total spent"
  nl2sql query --schema ecommerce.json --rag "average order value per country"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&querySchemaPath, "schema", "", "Path to the schema JSON file (required)")
	queryCmd.Flags().StringVar(&queryDatabaseID, "db", "", "Database id (defaults to the schema's database name)")
	queryCmd.Flags().StringVar(&queryConversation, "conversation", "", "Conversation id for multi-turn context")
	queryCmd.Flags().BoolVar(&queryUseRAG, "rag", false, "Include similar past queries from the feedback store")
	queryCmd.Flags().BoolVar(&queryShowIR, "show-ir", false, "Print the validated IR alongside the SQL")

	_ = queryCmd.MarkFlagRequired("schema")
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	schema, err := loadSchemaFile(querySchemaPath)
	if err != nil {
		return err
	}

	databaseID := queryDatabaseID
	if databaseID == "" {
		databaseID = schema.Database
	}

	orch, cleanup, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer cleanup()

	registry := orch.Schemas.(*pipeline.Registry)
	registry.Register(cmd.Context(), databaseID, schema)

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	spin.Suffix = " translating question..."
	spin.Start()

	resp, err := orch.Execute(cmd.Context(), pipeline.Request{
		Question:       question,
		ConversationID: queryConversation,
		DatabaseID:     databaseID,
		UseRAG:         queryUseRAG,
	})

	spin.Stop()

	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if resp.SQL == "" {
		fmt.Fprintln(out, "Clarification needed:")

		for _, q := range resp.Questions {
			fmt.Fprintf(out, "  - %s\n", q)
		}

		return nil
	}

	fmt.Fprintln(out, resp.SQL)

	if len(resp.Params) > 0 {
		fmt.Fprintln(out, "\nBindings:")

		data, _ := json.MarshalIndent(resp.Params, "", "  ")
		fmt.Fprintln(out, string(data))
	}

	if queryShowIR && resp.IR != nil {
		data, _ := json.MarshalIndent(resp.IR, "", "  ")
		fmt.Fprintf(out, "\nIR:\n%s\n", string(data))
	}

	fmt.Fprintf(out, "\nConfidence: %.2f  Complexity: %s  Time: %dms\n",
		resp.Confidence, resp.Complexity, resp.ExecutionTimeMS)

	for _, note := range resp.Explanations {
		fmt.Fprintf(out, "Note: %s\n", note)
	}

	for _, fix := range resp.SuggestedFixes {
		fmt.Fprintf(out, "Hint: %s\n", fix)
	}

	return nil
}

// buildOrchestrator wires the pipeline from the loaded configuration. The
// returned cleanup closes the feedback store.
func buildOrchestrator() (*pipeline.Orchestrator, func(), error) {
	client, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	manager := llm.NewManager(client, llm.DefaultManagerConfig())

	nodeCfg := embedding.DefaultNodeConfig()
	nodeCfg.Model = cfg.Ranker.NodeModel

	questionCfg := embedding.DefaultQuestionConfig()
	questionCfg.Model = cfg.Ranker.QuestionModel

	if cfg.Ranker.EncoderURL != "" {
		nodeCfg.Provider = "remote"
		nodeCfg.BaseURL = cfg.Ranker.EncoderURL
		questionCfg.Provider = "remote"
		questionCfg.BaseURL = cfg.Ranker.EncoderURL
	}

	ranker := gat.LoadRanker(cfg.Ranker.WeightsPath, nodeCfg, questionCfg)

	opts := pipeline.DefaultOptions()
	opts.TopK = cfg.Ranker.TopK
	opts.MaxPromptColumns = cfg.Pipeline.MaxPromptColumns
	opts.MaxRAGExamples = cfg.Pipeline.MaxRAGExamples
	opts.ContextTurns = cfg.Pipeline.ContextTurns
	opts.ClarifyBelow = cfg.Pipeline.ClarifyBelow
	opts.RankerTimeout = cfg.RankerTimeout()
	opts.PipelineTimeout = cfg.PipelineTimeout()
	opts.LLMOptions = llm.Options{
		Timeout:   cfg.LLMTimeout(),
		MaxTokens: cfg.LLM.MaxTokens,
		JSONMode:  true,
	}

	if strings.EqualFold(cfg.Pipeline.Dialect, "ansi") {
		opts.Dialect = ir.DialectANSI
	}

	// MaxPromptColumns keeps the compact fallback rendering bounded.
	if opts.MaxPromptColumns <= 0 {
		opts.MaxPromptColumns = prompt.DefaultMaxColumns
	}

	registry := pipeline.NewRegistry(nil, 0)
	orch := pipeline.New(registry, ranker, manager, opts)

	cleanup := func() {}

	if cfg.Feedback.Enabled {
		store, err := feedback.NewDuckDBStore(cfg.Feedback.DatabasePath,
			embedding.NewHashProvider(cfg.Ranker.QuestionModel, 384))
		if err == nil {
			orch.Feedback = store
			cleanup = func() { _ = store.Close() }
		}
	}

	return orch, cleanup, nil
}
