// internal/workers/resolution/resolve-nl-query/handler.go
package resolvenlquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/common/metrics"
	"nlq-resolver/internal/common/validation"
	"nlq-resolver/internal/resolver"
)

const (
	TaskType = "resolve-nl-query"
)

// QueryResolver is the part of *resolver.Resolver the handler needs.
type QueryResolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Response, error)
}

type Handler struct {
	config       *Config
	resolver     QueryResolver
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, res QueryResolver, log logger.Logger) (*Handler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("resolver is required")
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		resolver:     res,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.GetKey(),
		"workflowKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables := job.GetVariables()

	result, err := validation.ValidateJobVariables(TaskType, variables)
	if err != nil {
		return nil, errors.NewInvalidConfigurationError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute resolves the query and shapes the response for job variables. An
// exhausted fallback chain still completes the job unless FailOnExhausted
// is set.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}

	resp, err := h.resolver.Resolve(ctx, input.Query)
	if err != nil {
		return nil, err
	}

	if !resp.Result.Success && h.config.FailOnExhausted {
		return nil, errors.NewExhaustedFallbacksError(len(resp.Attempts), resp.Result.ErrorMessage)
	}

	output := &Output{
		RequestID:      resp.RequestID,
		Success:        resp.Result.Success,
		SQL:            resp.SQL,
		SQLExecuted:    resp.Result.SQLExecuted,
		Intent:         string(resp.Context.BusinessIntent),
		PlanConfidence: resp.Plan.ConfidenceScore,
		ColumnNames:    resp.Result.ColumnNames,
		RowCount:       resp.Result.RowCount,
		Attempts:       resp.Attempts,
		Warnings:       make([]string, 0, len(resp.Warnings)),
		ErrorMessage:   resp.Result.ErrorMessage,
		DurationMs:     resp.DurationMs,
	}
	for _, w := range resp.Warnings {
		output.Warnings = append(output.Warnings, string(w.Code))
	}

	if h.includeRows(input) {
		limit := h.rowLimit(input)
		rows := resp.Result.Data
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
			output.Truncated = true
		}
		output.Rows = rows
	}

	h.logger.Info("query resolved", map[string]interface{}{
		"requestId": output.RequestID,
		"success":   output.Success,
		"rowCount":  output.RowCount,
		"attempts":  len(output.Attempts),
		"warnings":  output.Warnings,
	})
	return output, nil
}

func (h *Handler) includeRows(input *Input) bool {
	if input.IncludeRows != nil {
		return *input.IncludeRows
	}
	return h.config.IncludeRows
}

// rowLimit is the smaller of the job's maxRows and the configured cap.
func (h *Handler) rowLimit(input *Input) int {
	limit := h.config.MaxOutputRows
	if input.MaxRows > 0 && (limit == 0 || input.MaxRows < limit) {
		limit = input.MaxRows
	}
	return limit
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, err)
}
