package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/store"
)

// Recorder applies inbound step-completion notifications to the store. It is
// the only component invoked by the event consumer; every notification goes
// through RecordStep regardless of which worker produced it.
type Recorder struct {
	store  store.ProcessStore
	logger *slog.Logger
}

func NewRecorder(st store.ProcessStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: st, logger: logger}
}

// RecordStep applies one notification. The first notification for a
// (datasetKey, attempt) pair or execution key we have not seen creates the
// process and execution records before the step is applied, so ingests started
// outside this service still show up in history. Redelivered and out-of-order
// notifications are normal: the store's forward-only transition rules absorb
// them, so calling this twice with the same record is safe.
//
// Malformed records are logged and dropped with a nil return. Redelivery will
// not make them valid, and an error here would leave the message unacked and
// re-drained on every worker restart. Only store failures propagate.
func (r *Recorder) RecordStep(ctx context.Context, rec pipelines.StepRecord) error {
	if err := validateRecord(rec); err != nil {
		r.logger.Warn("discarding invalid step event",
			slog.String("error", err.Error()),
			slog.String("dataset_key", rec.DatasetKey.String()),
			slog.Int64("execution_key", rec.ExecutionKey),
			slog.String("step_type", string(rec.Type)))
		return nil
	}

	err := r.store.RecordStep(ctx, rec.ExecutionKey, rec)
	if errors.Is(err, store.ErrNotFound) {
		// The producing system issues its own execution keys; an execution with
		// no declared step set is never auto-finished.
		if cerr := r.store.CreateExecutionIfAbsent(ctx, rec.DatasetKey, rec.Attempt, rec.ExecutionKey, pipelines.NewExecution{}); cerr != nil {
			return fmt.Errorf("create execution from event: %w", cerr)
		}
		r.logger.Info("execution created from step event",
			slog.Int64("execution_key", rec.ExecutionKey),
			slog.String("dataset_key", rec.DatasetKey.String()),
			slog.Int("attempt", rec.Attempt))
		err = r.store.RecordStep(ctx, rec.ExecutionKey, rec)
	}
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}

	r.logger.Info("step recorded",
		slog.Int64("execution_key", rec.ExecutionKey),
		slog.String("step_type", string(rec.Type)),
		slog.String("status", string(rec.Status)))
	return nil
}

func validateRecord(rec pipelines.StepRecord) error {
	if rec.DatasetKey == uuid.Nil {
		return errors.New("missing dataset key")
	}
	if rec.Attempt <= 0 {
		return fmt.Errorf("invalid attempt %d", rec.Attempt)
	}
	if rec.ExecutionKey <= 0 {
		return fmt.Errorf("invalid execution key %d", rec.ExecutionKey)
	}
	if !rec.Type.Supported() {
		return fmt.Errorf("unsupported step type %q", rec.Type)
	}
	if _, err := pipelines.ParseStatus(string(rec.Status)); err != nil {
		return err
	}
	return nil
}

// AbortExecution marks every non-terminal step of the execution ABORTED and
// the execution finished. Operator recovery for executions whose workers died
// without reporting.
func (r *Recorder) AbortExecution(ctx context.Context, executionKey int64) error {
	if err := r.store.MarkExecutionAborted(ctx, executionKey); err != nil {
		return err
	}
	r.logger.Info("execution aborted", slog.Int64("execution_key", executionKey))
	return nil
}

// FinishAllExecutions marks every unfinished execution finished and returns
// how many were updated. Blunt operator recovery after a cluster-wide outage.
func (r *Recorder) FinishAllExecutions(ctx context.Context) (int64, error) {
	n, err := r.store.MarkAllExecutionsFinished(ctx)
	if err != nil {
		return 0, err
	}
	r.logger.Info("executions force-finished", slog.Int64("count", n))
	return n, nil
}
