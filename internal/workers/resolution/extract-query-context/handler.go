// internal/workers/resolution/extract-query-context/handler.go
package extractquerycontext

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
	"nlq-resolver/internal/resolver/extractor"
	"nlq-resolver/internal/resolver/heuristics"
)

const (
	TaskType = "extract-query-context"
)

// MetadataSource supplies table names so schema-specific nouns are
// recognised. It is optional.
type MetadataSource interface {
	Load(ctx context.Context) (*models.SemanticMetadata, error)
}

type Handler struct {
	config       *Config
	tables       *heuristics.Tables
	source       MetadataSource
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, tables *heuristics.Tables, source MetadataSource, log logger.Logger) (*Handler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if tables == nil {
		var err error
		if tables, err = heuristics.Load(); err != nil {
			return nil, fmt.Errorf("load heuristics: %w", err)
		}
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		tables:       tables,
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

// Execute reads the request without touching the database. A snapshot that
// cannot be loaded only costs schema-specific nouns.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidInputError("query must not be empty")
	}

	var md *models.SemanticMetadata
	if h.source != nil {
		loaded, err := h.source.Load(ctx)
		if err != nil {
			h.logger.Warn("metadata unavailable, using built-in nouns only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			md = loaded
		}
	}

	minConfidence := h.config.MinConfidence
	if input.MinConfidence != nil {
		minConfidence = *input.MinConfidence
	}

	qc := extractor.New(h.tables, md, h.logger).Extract(query)
	output := &Output{
		Context:       qc,
		LowConfidence: qc.ConfidenceScore < minConfidence,
		SchemaAware:   md != nil,
	}

	h.logger.Info("query context extracted", map[string]interface{}{
		"intent":        string(qc.BusinessIntent),
		"confidence":    qc.ConfidenceScore,
		"lowConfidence": output.LowConfidence,
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
