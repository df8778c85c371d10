// internal/workers/resolution/validate-sql/handler.go
package validatesql

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
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/optimizer"
)

const (
	TaskType = "validate-sql"
)

// MetadataSource hands out the schema snapshot statements are checked against.
type MetadataSource interface {
	Load(ctx context.Context) (*models.SemanticMetadata, error)
}

type Handler struct {
	config       *Config
	source       MetadataSource
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, source MetadataSource, log logger.Logger) (*Handler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("metadata source is required")
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		source:       source,
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

// Execute checks the statement against the current snapshot and runs the
// optimizer over it. Nothing is sent to the database.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	if strings.TrimSpace(input.SQL) == "" {
		return nil, errors.NewInvalidInputError("sql must not be empty")
	}

	md, err := h.source.Load(ctx)
	if err != nil {
		return nil, errors.NewMetadataUnavailableError("metadata source", err)
	}

	maxRows := h.config.MaxRows
	if input.MaxRows > 0 {
		maxRows = input.MaxRows
	}

	report := optimizer.ValidateSQL(input.SQL, md)
	if !report.Valid && h.config.FailOnInvalid {
		msgs := make([]string, 0, len(report.Errors))
		for _, d := range report.Errors {
			msgs = append(msgs, d.Message)
		}
		return nil, errors.NewValidationFailedError(strings.Join(msgs, "; "))
	}

	optimized := optimizer.OptimizeQuery(input.SQL, md, maxRows)
	output := &Output{
		Valid:                report.Valid,
		Errors:               report.Errors,
		Warnings:             report.Warnings,
		Tables:               report.Tables,
		Columns:              report.Columns,
		OptimizedSQL:         optimized.OptimizedSQL,
		OptimizationsApplied: optimized.OptimizationsApplied,
		PerformanceIssues:    optimizer.CheckPerformanceIssues(optimized.OptimizedSQL),
		IndexSuggestions:     optimizer.SuggestIndexes(optimized.OptimizedSQL, md),
	}

	h.logger.Info("sql validated", map[string]interface{}{
		"valid":    output.Valid,
		"errors":   len(output.Errors),
		"warnings": len(output.Warnings),
		"issues":   len(output.PerformanceIssues),
	})
	return output, nil
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
