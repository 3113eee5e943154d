// Package pipeline composes the inference stages: context resolution, GAT
// ranking with structural fallback, prompt assembly, LLM generation,
// sanitization, validation, compilation, and post-compilation analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashmay29/NL2SQL/internal/analysis"
	"github.com/ashmay29/NL2SQL/internal/conversation"
	"github.com/ashmay29/NL2SQL/internal/feedback"
	"github.com/ashmay29/NL2SQL/internal/gat"
	"github.com/ashmay29/NL2SQL/internal/ir"
	"github.com/ashmay29/NL2SQL/internal/llm"
	"github.com/ashmay29/NL2SQL/internal/logging"
	"github.com/ashmay29/NL2SQL/internal/observability"
	"github.com/ashmay29/NL2SQL/internal/prompt"
	"github.com/ashmay29/NL2SQL/internal/spider"
	"github.com/ashmay29/NL2SQL/internal/types"
)

// Request is the public pipeline input.
type Request struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	DatabaseID     string `json:"database_id"`
	UseRAG         bool   `json:"use_rag,omitempty"`
}

// Response is the public pipeline output. A clarification response carries an
// empty SQL and non-empty Questions.
type Response struct {
	OriginalQuestion string          `json:"original_question"`
	ResolvedQuestion string          `json:"resolved_question"`
	SQL              string          `json:"sql"`
	Params           map[string]any  `json:"params,omitempty"`
	IR               *ir.Query       `json:"ir,omitempty"`
	Confidence       float64         `json:"confidence"`
	Ambiguities      []string        `json:"ambiguities,omitempty"`
	Questions        []string        `json:"questions,omitempty"`
	Explanations     []string        `json:"explanations,omitempty"`
	SuggestedFixes   []string        `json:"suggested_fixes,omitempty"`
	Complexity       string          `json:"complexity,omitempty"`
	ExecutionTimeMS  int64           `json:"execution_time_ms"`
}

// Options tune orchestrator behavior.
type Options struct {
	TopK             int
	MaxPromptColumns int
	MaxRAGExamples   int
	ContextTurns     int
	ClarifyBelow     float64
	Dialect          ir.Dialect
	LLMOptions       llm.Options
	RankerTimeout    time.Duration
	PipelineTimeout  time.Duration
}

// DefaultOptions returns the standard orchestrator settings.
func DefaultOptions() Options {
	return Options{
		TopK:             25,
		MaxPromptColumns: prompt.DefaultMaxColumns,
		MaxRAGExamples:   3,
		ContextTurns:     2,
		ClarifyBelow:     0.5,
		Dialect:          ir.DialectMySQL,
		LLMOptions:       llm.DefaultOptions(),
		RankerTimeout:    5 * time.Second,
		PipelineTimeout:  time.Minute,
	}
}

// Orchestrator wires the stages together. All collaborators except Schemas
// and LLM may be nil; missing collaborators degrade the corresponding
// feature instead of failing the pipeline.
type Orchestrator struct {
	Schemas       SchemaProvider
	Ranker        *gat.Ranker
	LLM           llm.Service
	Conversations conversation.Store
	Feedback      feedback.Store
	Opts          Options
}

// New creates an orchestrator.
func New(schemas SchemaProvider, ranker *gat.Ranker, service llm.Service, opts Options) *Orchestrator {
	return &Orchestrator{
		Schemas: schemas,
		Ranker:  ranker,
		LLM:     service,
		Opts:    opts,
	}
}

// Execute runs the full pipeline for one request.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.New().String()
	log := logging.GetLogger()

	if log != nil {
		log = log.WithRequestID(requestID).WithField("conversation_id", req.ConversationID)
	}

	if o.Opts.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Opts.PipelineTimeout)

		defer cancel()
	}

	resp, err := o.execute(ctx, req, log)
	if err != nil {
		// A deadline hit anywhere inside surfaces as the pipeline bound.
		if errors.Is(err, context.DeadlineExceeded) && KindOf(err) == KindInternal {
			err = WrapError(err, KindPipelineTimeout, "pipeline exceeded its time budget")
		}

		observability.ObservePipeline(string(KindOf(err)))

		if log != nil {
			log.WithError(err).Error("pipeline failed")
		}

		return nil, err
	}

	resp.ExecutionTimeMS = time.Since(start).Milliseconds()

	outcome := "success"
	if resp.SQL == "" {
		outcome = "clarification"
	}

	observability.ObservePipeline(outcome)

	if log != nil {
		log.WithFields(map[string]any{
			"outcome":    outcome,
			"confidence": resp.Confidence,
			"elapsed_ms": resp.ExecutionTimeMS,
		}).Info("pipeline completed")
	}

	return resp, nil
}

func (o *Orchestrator) execute(ctx context.Context, req Request, log *logging.Logger) (*Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, NewError(KindInternal, "question must not be empty")
	}

	schema, err := o.Schemas.Get(ctx, req.DatabaseID)
	if err != nil {
		return nil, err
	}

	// Turns of one conversation run strictly in submission order: the write
	// at the end of this turn happens-before the next turn's history read.
	if o.Conversations != nil && req.ConversationID != "" {
		release := o.Conversations.Acquire(req.ConversationID)
		defer release()
	}

	var history []conversation.Turn
	if o.Conversations != nil && req.ConversationID != "" {
		history = o.Conversations.Get(req.ConversationID)
	}

	resolved := conversation.Resolve(req.Question, history)

	canonical := spider.Convert(schema)
	nodes := o.rankNodes(ctx, resolved, canonical)

	schemaText := o.renderSchema(schema, nodes)

	ragBlock := o.ragBlock(ctx, resolved, schema.Version, req.UseRAG)
	contextBlock := o.contextBlock(history)

	basePrompt := prompt.BuildIRPrompt(schemaText, resolved, ragBlock, contextBlock)

	if log != nil {
		log.WithField("prompt_bytes", len(basePrompt)).Debug("prompt assembled")
	}

	query, err := o.generateValidIR(ctx, schema, basePrompt)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		OriginalQuestion: req.Question,
		ResolvedQuestion: resolved,
		IR:               query,
		Confidence:       query.Confidence,
		Ambiguities:      query.Ambiguities,
		Questions:        query.Questions,
	}

	// Clarification gate: low confidence or open questions stop before
	// compilation; the caller gets questions instead of SQL.
	if query.Confidence < o.Opts.ClarifyBelow || len(query.Questions) > 0 {
		if len(resp.Questions) == 0 {
			resp.Questions = []string{
				fmt.Sprintf("The question %q is ambiguous (confidence %.2f); can you rephrase it or name the tables you mean?",
					req.Question, query.Confidence),
			}
		}

		return resp, nil
	}

	compiled, err := ir.Compile(query, o.Opts.Dialect)
	if err != nil {
		// Unreachable on a validated IR; keep the full IR in the error for
		// debugging.
		return nil, WrapError(err, KindCompilerError, "failed to compile validated IR")
	}

	resp.SQL = compiled.SQL
	resp.Params = compiled.Params

	metrics := analysis.Analyze(query)
	resp.Complexity = metrics.Level

	for _, w := range metrics.Warnings {
		resp.Explanations = append(resp.Explanations, "Performance note: "+w)
	}

	resp.SuggestedFixes = append(resp.SuggestedFixes, analysis.Suggestions(query, metrics)...)

	for _, hint := range analysis.Check(compiled.SQL, query, schema) {
		resp.SuggestedFixes = append(resp.SuggestedFixes, hint.Message)
	}

	// History is written only for fully successful turns; a cancelled task
	// leaves no partial state behind.
	if o.Conversations != nil && req.ConversationID != "" && ctx.Err() == nil {
		o.Conversations.Append(req.ConversationID, conversation.Turn{
			Question:         req.Question,
			ResolvedQuestion: resolved,
			SQL:              compiled.SQL,
			TablesUsed:       query.Tables(),
			CreatedAt:        time.Now(),
		})
	}

	return resp, nil
}

// rankNodes runs the GAT ranker best-effort and augments its output. Any
// ranker failure means no pruning.
func (o *Orchestrator) rankNodes(ctx context.Context, question string, canonical *spider.Schema) []gat.RankedNode {
	if o.Ranker == nil || !o.Ranker.Available() {
		observability.ObserveRankerFallback()
		return nil
	}

	rankCtx := ctx

	if o.Opts.RankerTimeout > 0 {
		var cancel context.CancelFunc
		rankCtx, cancel = context.WithTimeout(ctx, o.Opts.RankerTimeout)

		defer cancel()
	}

	stageStart := time.Now()

	ranked, err := o.Ranker.ScoreNodes(rankCtx, question, canonical, o.Opts.TopK)

	observability.ObserveStage("ranker", time.Since(stageStart))

	if err != nil {
		logging.Warnf("schema ranking unavailable, using full schema: %v", err)
		observability.ObserveRankerFallback()

		return nil
	}

	return gat.Augment(question, canonical, ranked)
}

func (o *Orchestrator) renderSchema(schema *types.Schema, nodes []gat.RankedNode) string {
	if len(nodes) == 0 {
		return prompt.RenderCompactSchema(schema, o.Opts.MaxPromptColumns)
	}

	return prompt.RenderPrunedSchema(schema, nodes)
}

func (o *Orchestrator) ragBlock(ctx context.Context, question, fingerprint string, useRAG bool) string {
	if !useRAG || o.Feedback == nil {
		return ""
	}

	examples, err := o.Feedback.Similar(ctx, question, fingerprint, o.Opts.MaxRAGExamples)
	if err != nil {
		logging.Warnf("feedback retrieval failed: %v", err)
		return ""
	}

	promptExamples := make([]prompt.Example, 0, len(examples))
	for _, ex := range examples {
		promptExamples = append(promptExamples, prompt.Example{Question: ex.Question, SQL: ex.SQL})
	}

	return prompt.RenderExamples(promptExamples)
}

func (o *Orchestrator) contextBlock(history []conversation.Turn) string {
	if len(history) == 0 || o.Opts.ContextTurns <= 0 {
		return ""
	}

	recent := history
	if len(recent) > o.Opts.ContextTurns {
		recent = recent[len(recent)-o.Opts.ContextTurns:]
	}

	turns := make([]prompt.Turn, 0, len(recent))
	for _, t := range recent {
		turns = append(turns, prompt.Turn{Question: t.Question, SQL: t.SQL})
	}

	return prompt.RenderContext(turns)
}

// generateValidIR calls the LLM, absorbs drift, validates, and runs at most
// one correction round on validator failure plus one nudge on parse failure.
func (o *Orchestrator) generateValidIR(ctx context.Context, schema *types.Schema, basePrompt string) (*ir.Query, error) {
	raw, err := o.callLLM(ctx, basePrompt)
	if err != nil {
		if errors.Is(err, llm.ErrParse) {
			// One "return valid JSON" nudge.
			raw, err = o.callLLM(ctx, prompt.BuildRepairNudge(basePrompt))
		}

		if err != nil {
			return nil, classifyLLMError(err)
		}
	}

	query, diags := o.decodeAndValidate(schema, raw)
	if len(diags) == 0 {
		return query, nil
	}

	// One correction round with the diagnostics spelled out.
	observability.ObserveCorrectionRound()

	messages := make([]string, len(diags))
	for i, d := range diags {
		messages[i] = d.String()
	}

	raw, err = o.callLLM(ctx, prompt.BuildCorrectionPrompt(basePrompt, messages))
	if err != nil {
		return nil, classifyLLMError(err)
	}

	query, diags = o.decodeAndValidate(schema, raw)
	if len(diags) > 0 {
		return nil, NewError(KindIRInvalid, "generated IR failed validation after one correction round").
			WithDiagnostics(diags)
	}

	return query, nil
}

func (o *Orchestrator) callLLM(ctx context.Context, promptText string) (map[string]any, error) {
	stageStart := time.Now()
	defer func() { observability.ObserveStage("llm", time.Since(stageStart)) }()

	return o.LLM.GenerateJSON(ctx, promptText, o.Opts.LLMOptions)
}

// decodeAndValidate sanitizes, decodes, and validates raw LLM output. Decode
// failures count as invalid IR, not parse errors; the JSON itself was fine.
func (o *Orchestrator) decodeAndValidate(schema *types.Schema, raw map[string]any) (*ir.Query, []ir.Diagnostic) {
	sanitized := ir.Sanitize(raw)

	query, err := ir.Decode(sanitized)
	if err != nil {
		return nil, []ir.Diagnostic{{
			Kind:    "Shape",
			Message: err.Error(),
			Path:    "$",
		}}
	}

	return query, ir.Validate(schema, query)
}

func classifyLLMError(err error) error {
	switch {
	case errors.Is(err, llm.ErrParse):
		return WrapError(err, KindLLMParseError, "the model did not return parseable JSON")
	case errors.Is(err, llm.ErrRefusal):
		return WrapError(err, KindLLMRefusal, "the model declined to answer")
	case errors.Is(err, llm.ErrUnavailable):
		return WrapError(err, KindLLMUnavailable, "the model provider is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(err, KindPipelineTimeout, "the model call exceeded the time budget")
	default:
		return WrapError(err, KindInternal, "unexpected LLM failure")
	}
}
