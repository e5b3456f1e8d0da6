package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/client"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
)

// Task types
const (
	TaskTypeMarkGenerated = "script:mark-generated"
	QueueScripts          = "scripts"
)

type markGeneratedPayload struct {
	Filename string `json:"filename"`
}

// NewMarkGeneratedTask builds the task that flags a saved script as rendered
func NewMarkGeneratedTask(filename string) (*asynq.Task, error) {
	data, err := json.Marshal(markGeneratedPayload{Filename: filename})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMarkGenerated, data), nil
}

// TaskEnqueuer is the part of *asynq.Client the enqueuer needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer marks scripts as generated through the task queue, so the update
// is retried when the script store is down
type Enqueuer struct {
	client TaskEnqueuer
}

func NewEnqueuer(c TaskEnqueuer) *Enqueuer {
	return &Enqueuer{client: c}
}

func (e *Enqueuer) MarkGenerated(ctx context.Context, filename string) error {
	task, err := NewMarkGeneratedTask(filename)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueScripts),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// StatusUpdater updates the generated flag of a saved script
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, filename string, update model.ScriptStatusUpdate) (*model.ScriptFileInfo, error)
}

// StatusWorker processes mark-generated tasks
type StatusWorker struct {
	store StatusUpdater
	log   logrus.FieldLogger
}

func NewStatusWorker(store StatusUpdater, log logrus.FieldLogger) *StatusWorker {
	return &StatusWorker{store: store, log: log.WithField("component", "worker")}
}

// ProcessTask flags the script named in the payload. A script that no longer
// exists is not retried.
func (w *StatusWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload markGeneratedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Filename == "" {
		return fmt.Errorf("task payload has no filename: %w", asynq.SkipRetry)
	}

	log := w.log.WithField("file", payload.Filename)
	if _, err := w.store.UpdateStatus(ctx, payload.Filename, model.ScriptStatusUpdate{IsGenerated: true}); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			log.Warn("script gone, not marking as generated")
			return fmt.Errorf("script %s not found: %w", payload.Filename, asynq.SkipRetry)
		}
		log.WithError(err).Warn("failed to mark script as generated")
		return err
	}

	log.Info("script marked as generated")
	return nil
}
