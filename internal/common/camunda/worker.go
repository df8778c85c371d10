// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"nlq-resolver/internal/common/config"
	"nlq-resolver/internal/common/logger"
)

// JobHandler matches the signature the Zeebe job worker expects. Handlers
// complete or fail the job themselves.
type JobHandler func(client worker.JobClient, job entities.Job)

// JobRecorder observes every handled job. *observability.Observability
// satisfies it.
type JobRecorder interface {
	RecordJobProcessed(ctx context.Context, taskType, status string)
	RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string)
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// StartWorker opens a job worker for taskType. It returns nil when the
// worker is disabled in configuration.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler JobHandler, recorder JobRecorder, log logger.Logger) *CamundaWorker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("worker disabled", nil)
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(Instrument(taskType, handler, recorder))).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeoutMs":     wcfg.Timeout,
	})

	return &CamundaWorker{
		worker:   jobWorker,
		logger:   log,
		taskType: taskType,
	}
}

// Instrument wraps handler so every job is counted and timed.
func Instrument(taskType string, handler JobHandler, recorder JobRecorder) JobHandler {
	if recorder == nil {
		return handler
	}
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		handler(client, job)
		ctx := context.Background()
		recorder.RecordJobProcessed(ctx, taskType, "handled")
		recorder.RecordJobDuration(ctx, taskType, time.Since(start), "handled")
	}
}

// Stop closes the job worker and waits for in-flight jobs.
func (w *CamundaWorker) Stop() {
	if w == nil {
		return
	}
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
