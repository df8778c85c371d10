// Package resolver wires the pipeline stages together: it reads a request,
// binds it to the schema snapshot, plans and renders SQL, and executes it
// through the fallback chain.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/executor"
	"nlq-resolver/internal/resolver/extractor"
	"nlq-resolver/internal/resolver/heuristics"
	"nlq-resolver/internal/resolver/matcher"
	"nlq-resolver/internal/resolver/optimizer"
	"nlq-resolver/internal/resolver/planner"
	"nlq-resolver/internal/resolver/sqlgen"
)

const tracerName = "nlq-resolver/resolver"

const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "exhausted"
)

// MetadataSource hands out the current schema snapshot.
type MetadataSource interface {
	Load(ctx context.Context) (*models.SemanticMetadata, error)
}

// ResolutionRecorder observes finished resolutions.
type ResolutionRecorder interface {
	RecordResolution(intent, outcome string, planConfidence float64)
}

type Config struct {
	MinConfidence         float64
	MaxAlternativePlans   int
	SemanticSearchTimeout time.Duration
}

// Response is everything learned while resolving one request.
type Response struct {
	RequestID    string                       `json:"requestId"`
	Query        string                       `json:"query"`
	Context      models.QueryContext          `json:"context"`
	Matches      []models.MetadataMatch       `json:"matches"`
	Plan         models.QueryPlan             `json:"plan"`
	SQL          string                       `json:"sql"`
	Execution    models.ExecutionPlan         `json:"execution"`
	Validation   optimizer.ValidationReport   `json:"validation"`
	Optimization optimizer.OptimizationResult `json:"optimization"`
	Result       models.ExecutionResult       `json:"result"`
	Attempts     []models.FallbackAttempt     `json:"attempts"`
	Warnings     []*apperrors.StandardError   `json:"warnings"`
	DurationMs   int64                        `json:"durationMs"`
}

// Outcome is "success" unless every execution attempt failed.
func (r *Response) Outcome() string {
	if r.Result.Success {
		return OutcomeSuccess
	}
	return OutcomeExhausted
}

// HasWarning reports whether a warning with code was attached.
func (r *Response) HasWarning(code apperrors.ErrorCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Resolver is safe for concurrent use. Every call builds its own pipeline
// values; only the heuristics tables and the engine are shared.
type Resolver struct {
	tables   *heuristics.Tables
	source   MetadataSource
	storage  matcher.EmbeddingStorage
	matcher  *matcher.Matcher
	planner  *planner.Planner
	engine   *executor.Engine
	cfg      Config
	recorder ResolutionRecorder
	log      logger.Logger
}

type Option func(*Resolver)

func WithRecorder(r ResolutionRecorder) Option { return func(res *Resolver) { res.recorder = r } }

// WithEmbeddingStorage enables the semantic matching tier.
func WithEmbeddingStorage(s matcher.EmbeddingStorage) Option {
	return func(res *Resolver) { res.storage = s }
}

func WithHeuristics(t *heuristics.Tables) Option { return func(res *Resolver) { res.tables = t } }

func New(source MetadataSource, engine *executor.Engine, cfg Config, log logger.Logger, opts ...Option) (*Resolver, error) {
	if source == nil {
		return nil, apperrors.NewInvalidConfigurationError("metadata source is required")
	}
	if engine == nil {
		return nil, apperrors.NewInvalidConfigurationError("execution engine is required")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return nil, apperrors.NewInvalidConfigurationError(fmt.Sprintf("min_confidence must be within [0,1], got %.2f", cfg.MinConfidence))
	}

	r := &Resolver{
		source: source,
		engine: engine,
		cfg:    cfg,
		log:    logger.ForComponent(log, "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tables == nil {
		r.tables = heuristics.MustLoad()
	}
	r.matcher = matcher.New(r.tables, r.storage, cfg.SemanticSearchTimeout, log)
	r.planner = planner.New(r.tables, cfg.MaxAlternativePlans, log)
	return r, nil
}

// Resolve runs the whole pipeline for query. Understanding, matching and
// planning problems come back as warnings on the response; an error is
// returned only for an empty query or when no schema snapshot is available.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Response, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewInvalidInputError("query must not be empty")
	}

	md, err := r.source.Load(ctx)
	if err != nil {
		return nil, apperrors.NewMetadataUnavailableError("metadata source", err)
	}
	if md == nil || len(md.Tables) == 0 {
		return nil, apperrors.NewMetadataUnavailableError("metadata source", fmt.Errorf("snapshot has no tables"))
	}

	resp := &Response{
		RequestID: uuid.New().String(),
		Query:     query,
		Warnings:  []*apperrors.StandardError{},
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.Resolver.Resolve",
		trace.WithAttributes(
			attribute.String("request.id", resp.RequestID),
			attribute.Int("metadata.tables", len(md.Tables)),
		),
	)
	defer span.End()

	log := r.log.WithFields(map[string]interface{}{"requestId": resp.RequestID})

	r.understand(ctx, resp, md)
	r.match(ctx, resp, md)
	r.plan(ctx, resp, md)
	r.generate(ctx, resp, md)
	r.execute(ctx, resp, md)

	resp.DurationMs = time.Since(start).Milliseconds()
	outcome := resp.Outcome()
	if r.recorder != nil {
		r.recorder.RecordResolution(string(resp.Context.BusinessIntent), outcome, resp.Plan.ConfidenceScore)
	}

	span.SetAttributes(
		attribute.String("resolver.outcome", outcome),
		attribute.Int("resolver.attempts", len(resp.Attempts)),
		attribute.Int("resolver.warnings", len(resp.Warnings)),
	)
	if !resp.Result.Success {
		span.SetStatus(codes.Error, resp.Result.ErrorMessage)
	}

	log.Info("Query resolved", map[string]interface{}{
		"outcome":        outcome,
		"intent":         resp.Context.BusinessIntent,
		"planConfidence": resp.Plan.ConfidenceScore,
		"attempts":       len(resp.Attempts),
		"warnings":       len(resp.Warnings),
		"rowCount":       resp.Result.RowCount,
		"durationMs":     resp.DurationMs,
	})
	return resp, nil
}

func (r *Resolver) understand(ctx context.Context, resp *Response, md *models.SemanticMetadata) {
	_, span := otel.Tracer(tracerName).Start(ctx, "resolver.ContextExtractor.Extract")
	defer span.End()

	resp.Context = extractor.New(r.tables, md, r.log).Extract(resp.Query)
	span.SetAttributes(
		attribute.Float64("context.confidence", resp.Context.ConfidenceScore),
		attribute.StringSlice("context.entities", resp.Context.EntitiesMentioned),
	)

	if resp.Context.ConfidenceScore < r.cfg.MinConfidence {
		resp.Warnings = append(resp.Warnings, apperrors.NewLowConfidenceError(resp.Context.ConfidenceScore, r.cfg.MinConfidence))
	}
}

func (r *Resolver) match(ctx context.Context, resp *Response, md *models.SemanticMetadata) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.EntityMatcher.Match")
	defer span.End()

	resp.Matches = r.matcher.Match(ctx, resp.Context, md)
	span.SetAttributes(attribute.Int("matches", len(resp.Matches)))

	if len(resp.Matches) == 0 {
		resp.Warnings = append(resp.Warnings, apperrors.NewNoMatchFoundError(resp.Context.EntitiesMentioned))
	}
}

func (r *Resolver) plan(ctx context.Context, resp *Response, md *models.SemanticMetadata) {
	_, span := otel.Tracer(tracerName).Start(ctx, "resolver.QueryPlanner.Plan")
	defer span.End()

	resp.Plan = r.planner.Plan(resp.Context, resp.Matches, md)
	span.SetAttributes(
		attribute.StringSlice("plan.tables", resp.Plan.PrimaryTables),
		attribute.Float64("plan.confidence", resp.Plan.ConfidenceScore),
		attribute.Int("plan.alternatives", len(resp.Plan.AlternativePlans)),
	)
}

func (r *Resolver) generate(ctx context.Context, resp *Response, md *models.SemanticMetadata) {
	_, span := otel.Tracer(tracerName).Start(ctx, "resolver.SQLGenerator.Generate")
	defer span.End()

	if !resp.Plan.IsEmpty() {
		if err := sqlgen.CheckPlan(resp.Plan); err != nil {
			span.RecordError(err)
			resp.Warnings = append(resp.Warnings, apperrors.NewSQLGenerationFailedError(err.Error()))
		}
	}
	resp.SQL = sqlgen.Generate(resp.Plan, r.engine.MaxRows())

	resp.Validation = optimizer.ValidateSQL(resp.SQL, md)
	if !resp.Validation.Valid {
		msgs := make([]string, 0, len(resp.Validation.Errors))
		for _, d := range resp.Validation.Errors {
			msgs = append(msgs, d.Message)
		}
		resp.Warnings = append(resp.Warnings, apperrors.NewValidationFailedError(strings.Join(msgs, "; ")))
	}
	resp.Optimization = optimizer.OptimizeQuery(resp.SQL, md, r.engine.MaxRows())

	rules := make([]string, 0, len(resp.Validation.Errors)+len(resp.Validation.Warnings))
	for _, d := range append(append([]optimizer.Diagnostic(nil), resp.Validation.Errors...), resp.Validation.Warnings...) {
		rules = append(rules, d.RuleID)
	}
	strategies := r.engine.Strategies()
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.String())
	}
	resp.Execution = models.ExecutionPlan{
		PrimarySQL:         resp.SQL,
		FallbackStrategies: names,
		TimeoutSeconds:     int(r.engine.Timeout() / time.Second),
		MaxRows:            r.engine.MaxRows(),
		ValidationRules:    rules,
	}
	span.SetAttributes(
		attribute.String("sql", resp.SQL),
		attribute.Bool("sql.valid", resp.Validation.Valid),
	)
}

func (r *Resolver) execute(ctx context.Context, resp *Response, md *models.SemanticMetadata) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.ExecutionEngine.ExecuteWithFallbacks")
	defer span.End()

	resp.Result, resp.Attempts = r.engine.ForMetadata(md).ExecuteWithFallbacks(ctx, resp.SQL, resp.Plan)
	span.SetAttributes(
		attribute.Bool("execution.success", resp.Result.Success),
		attribute.Int("execution.rows", resp.Result.RowCount),
		attribute.Int("execution.attempts", len(resp.Attempts)),
	)
	if !resp.Result.Success {
		span.SetStatus(codes.Error, resp.Result.ErrorMessage)
		resp.Warnings = append(resp.Warnings, apperrors.NewExhaustedFallbacksError(len(resp.Attempts), resp.Result.ErrorMessage))
	}
}
