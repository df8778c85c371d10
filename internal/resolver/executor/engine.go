// Package executor runs generated SQL and walks the fallback chain when a
// statement fails or times out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
)

// Database runs one statement under a deadline.
type Database interface {
	Execute(ctx context.Context, sql string, timeout time.Duration) (*models.QueryRows, error)
}

// Recorder observes every statement the engine issues.
type Recorder interface {
	RecordAttempt(strategy string, success bool, duration time.Duration)
}

// Alerter is told when every strategy has failed.
type Alerter interface {
	PublishExhausted(ctx context.Context, sql string, attempts []models.FallbackAttempt) error
}

type Config struct {
	Timeout    time.Duration
	MaxRows    int
	Strategies []string
}

type Engine struct {
	db         Database
	timeout    time.Duration
	maxRows    int
	strategies []Strategy
	metadata   *models.SemanticMetadata
	recorder   Recorder
	alerter    Alerter
	log        logger.Logger
}

type Option func(*Engine)

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithAlerter(a Alerter) Option { return func(e *Engine) { e.alerter = a } }

func WithMetadata(md *models.SemanticMetadata) Option {
	return func(e *Engine) { e.metadata = md }
}

// NewEngine validates cfg and translates the strategy names once. An empty
// strategy list means DefaultStrategies.
func NewEngine(db Database, cfg Config, log logger.Logger, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, apperrors.NewInvalidConfigurationError("database is required")
	}
	if cfg.Timeout <= 0 {
		return nil, apperrors.NewInvalidConfigurationError(fmt.Sprintf("max_execution_time must be > 0, got %s", cfg.Timeout))
	}
	if cfg.MaxRows <= 0 {
		return nil, apperrors.NewInvalidConfigurationError(fmt.Sprintf("max_rows must be > 0, got %d", cfg.MaxRows))
	}

	strategies := DefaultStrategies
	if len(cfg.Strategies) > 0 {
		strategies = ParseStrategies(cfg.Strategies)
	}

	e := &Engine{
		db:         db,
		timeout:    cfg.Timeout,
		maxRows:    cfg.MaxRows,
		strategies: strategies,
		log:        logger.ForComponent(log, "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Strategies returns the translated chain in configured order.
func (e *Engine) Strategies() []Strategy {
	return append([]Strategy(nil), e.strategies...)
}

// ForMetadata returns a copy of the engine that resolves columns against md.
func (e *Engine) ForMetadata(md *models.SemanticMetadata) *Engine {
	c := *e
	c.metadata = md
	return &c
}

// ExecuteWithFallbacks runs sql and, on failure, each fallback strategy in
// order until one succeeds. A primary success returns no attempts; otherwise
// the history starts with the failed primary attempt. Strategies that have no
// statement to offer, or that repeat an earlier statement, are skipped
// without recording an attempt. Cancellation of ctx is honoured between
// attempts only.
func (e *Engine) ExecuteWithFallbacks(ctx context.Context, sql string, plan models.QueryPlan) (models.ExecutionResult, []models.FallbackAttempt) {
	result, err := e.run(ctx, PrimaryAttempt, sql)
	if err == nil {
		return result, []models.FallbackAttempt{}
	}

	attempts := []models.FallbackAttempt{failedAttempt(1, PrimaryAttempt, result, err)}
	tried := map[string]bool{sql: true}
	last, lastErr := sql, err

	for _, strategy := range e.strategies {
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.log.Warn("Fallback chain cancelled", map[string]interface{}{
				"attempts": len(attempts),
				"error":    ctxErr,
			})
			lastErr = ctxErr
			break
		}
		if strategy == StrategyUnknown {
			e.log.Debug("Skipping unknown fallback strategy", map[string]interface{}{"position": len(attempts)})
			continue
		}

		next := apply(strategy, attemptInput{
			SQL:       last,
			Plan:      plan,
			LastError: lastErr.Error(),
			MaxRows:   e.maxRows,
			Metadata:  e.metadata,
			Tried:     func(s string) bool { return tried[s] },
		})
		if next == "" || tried[next] {
			e.log.Debug("Fallback strategy produced nothing new", map[string]interface{}{"strategy": strategy.String()})
			continue
		}
		tried[next] = true

		result, err = e.run(ctx, strategy.String(), next)
		if err == nil {
			attempts = append(attempts, models.FallbackAttempt{
				AttemptNumber:   len(attempts) + 1,
				Strategy:        strategy.String(),
				SQLAttempted:    next,
				Success:         true,
				ExecutionTimeMs: result.ExecutionTimeMs,
			})
			e.log.Info("Fallback succeeded", map[string]interface{}{
				"strategy": strategy.String(),
				"attempts": len(attempts),
				"rows":     result.RowCount,
			})
			return result, attempts
		}
		attempts = append(attempts, failedAttempt(len(attempts)+1, strategy.String(), result, err))
		last, lastErr = next, err
	}

	exhausted := apperrors.NewExhaustedFallbacksError(len(attempts), lastErr.Error())
	e.log.Error("Fallback strategies exhausted", map[string]interface{}{
		"attempts":  len(attempts),
		"lastError": lastErr.Error(),
		"errorCode": string(exhausted.Code),
	})
	if e.alerter != nil {
		if err := e.alerter.PublishExhausted(context.WithoutCancel(ctx), sql, attempts); err != nil {
			e.log.Warn("Failed to publish exhausted-fallback alert", map[string]interface{}{"error": err})
		}
	}

	return models.ExecutionResult{
		Success:      false,
		Data:         []models.Row{},
		ColumnNames:  []string{},
		SQLExecuted:  last,
		ErrorMessage: lastErr.Error(),
	}, attempts
}

// run issues one statement under its own deadline.
func (e *Engine) run(parent context.Context, strategy, sql string) (models.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.Execute(ctx, sql, e.timeout)
	elapsed := time.Since(start)
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		err = ctx.Err()
	}

	if e.recorder != nil {
		e.recorder.RecordAttempt(strategy, err == nil, elapsed)
	}

	result := models.ExecutionResult{
		SQLExecuted:     sql,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			timeoutErr := apperrors.NewSQLExecutionTimeoutError(strategy, e.timeout)
			e.log.Warn("Statement timed out", map[string]interface{}{"strategy": strategy, "errorCode": string(timeoutErr.Code)})
			err = fmt.Errorf("statement timed out after %s: %w", e.timeout, err)
		} else {
			e.log.Warn("Statement failed", map[string]interface{}{
				"strategy": strategy,
				"error":    err,
			})
		}
		result.ErrorMessage = err.Error()
		return result, err
	}

	if rows != nil && rows.Truncated {
		e.log.Warn("Result truncated at row cap", map[string]interface{}{"strategy": strategy, "rows": len(rows.Rows)})
	}
	data := rows.ToRows()
	result.Success = true
	result.Data = data
	result.ColumnNames = columnsOf(rows)
	result.RowCount = len(data)
	return result, nil
}

func columnsOf(rows *models.QueryRows) []string {
	if rows == nil || rows.Columns == nil {
		return []string{}
	}
	return rows.Columns
}

func failedAttempt(n int, strategy string, result models.ExecutionResult, err error) models.FallbackAttempt {
	return models.FallbackAttempt{
		AttemptNumber:   n,
		Strategy:        strategy,
		SQLAttempted:    result.SQLExecuted,
		Success:         false,
		ExecutionTimeMs: result.ExecutionTimeMs,
		ErrorMessage:    err.Error(),
	}
}

// MaxRows is the row cap used by LIMIT-producing strategies.
func (e *Engine) MaxRows() int { return e.maxRows }

// Timeout is the budget of a single attempt.
func (e *Engine) Timeout() time.Duration { return e.timeout }
