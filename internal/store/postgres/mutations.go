package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/store"
)

// AppendExecution performs the check-and-create atomically. The upsert on the
// process row takes a row lock, so concurrent rerun requests for the same
// (datasetKey, attempt) serialize here and only one can observe "no running
// execution".
func (s *Store) AppendExecution(ctx context.Context, datasetKey uuid.UUID, attempt int, exec pipelines.NewExecution) (int64, error) {
	var execKey int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var processKey int64
		err := tx.QueryRow(ctx,
			`INSERT INTO pipeline_process (dataset_key, attempt, created)
			 VALUES ($1, $2, now())
			 ON CONFLICT (dataset_key, attempt) DO UPDATE SET dataset_key = EXCLUDED.dataset_key
			 RETURNING key`,
			datasetKey, attempt).Scan(&processKey)
		if err != nil {
			return fmt.Errorf("upsert process: %w", err)
		}

		var running bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM pipeline_execution
			   WHERE process_key = $1 AND finished IS NULL)`,
			processKey).Scan(&running)
		if err != nil {
			return fmt.Errorf("check running execution: %w", err)
		}
		if running {
			return store.ErrExecutionRunning
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO pipeline_execution (process_key, created, steps_to_run, rerun_reason)
			 VALUES ($1, now(), $2, $3)
			 RETURNING key`,
			processKey, fromStepTypes(exec.StepsToRun), exec.RerunReason).Scan(&execKey)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return execKey, nil
}

// CreateExecutionIfAbsent records an execution first seen on the event stream.
// The key comes from the message, since the producing system issued it; the
// serial generator is advanced past imported keys so later AppendExecution
// calls never collide.
func (s *Store) CreateExecutionIfAbsent(ctx context.Context, datasetKey uuid.UUID, attempt int, executionKey int64, exec pipelines.NewExecution) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var processKey int64
		err := tx.QueryRow(ctx,
			`INSERT INTO pipeline_process (dataset_key, attempt, created)
			 VALUES ($1, $2, now())
			 ON CONFLICT (dataset_key, attempt) DO UPDATE SET dataset_key = EXCLUDED.dataset_key
			 RETURNING key`,
			datasetKey, attempt).Scan(&processKey)
		if err != nil {
			return fmt.Errorf("upsert process: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO pipeline_execution (key, process_key, created, steps_to_run, rerun_reason)
			 VALUES ($1, $2, now(), $3, $4)
			 ON CONFLICT (key) DO NOTHING`,
			executionKey, processKey, fromStepTypes(exec.StepsToRun), exec.RerunReason)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}

		_, err = tx.Exec(ctx,
			`SELECT setval(pg_get_serial_sequence('pipeline_execution', 'key'),
			        GREATEST($1::bigint, (SELECT COALESCE(max(key), 1) FROM pipeline_execution)))`,
			executionKey)
		if err != nil {
			return fmt.Errorf("advance execution key sequence: %w", err)
		}
		return nil
	})
}

// RecordStep applies a notification and re-evaluates the execution's finished
// state in one transaction. The execution row is locked first, so concurrent
// notifications for the same execution serialize and the all-terminal check
// always sees the full current step set.
func (s *Store) RecordStep(ctx context.Context, executionKey int64, rec pipelines.StepRecord) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var stepsToRun []string
		var ex pipelines.Execution
		err := tx.QueryRow(ctx,
			`SELECT key, steps_to_run, finished
			 FROM pipeline_execution
			 WHERE key = $1
			 FOR UPDATE`,
			executionKey).Scan(&ex.Key, &stepsToRun, &ex.Finished)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock execution: %w", err)
		}
		ex.StepsToRun = toStepTypes(stepsToRun)

		var existing pipelines.Step
		err = tx.QueryRow(ctx,
			`SELECT key, type, status, started, finished, COALESCE(message, ''), COALESCE(pipelines_version, '')
			 FROM pipeline_step
			 WHERE execution_key = $1 AND type = $2`,
			executionKey, rec.Type).Scan(&existing.Key, &existing.Type, &existing.Status,
			&existing.Started, &existing.Finished, &existing.Message, &existing.Version)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			st := pipelines.NewStep(rec)
			_, err = tx.Exec(ctx,
				`INSERT INTO pipeline_step (execution_key, type, status, started, finished, message, pipelines_version)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				executionKey, st.Type, st.Status, st.Started, st.Finished, st.Message, st.Version)
			if err != nil {
				return fmt.Errorf("insert step: %w", err)
			}
		case err != nil:
			return fmt.Errorf("get step: %w", err)
		default:
			updated, changed := pipelines.ApplyStep(existing, rec)
			if changed {
				_, err = tx.Exec(ctx,
					`UPDATE pipeline_step
					 SET status = $1, finished = $2, message = $3, pipelines_version = $4
					 WHERE key = $5`,
					updated.Status, updated.Finished, updated.Message, updated.Version, existing.Key)
				if err != nil {
					return fmt.Errorf("update step: %w", err)
				}
			}
		}

		if ex.Finished != nil {
			return nil
		}

		steps, err := s.listSteps(ctx, tx, executionKey)
		if err != nil {
			return err
		}
		if finishedAt, done := pipelines.FinishTime(ex.StepsToRun, steps); done {
			_, err = tx.Exec(ctx,
				`UPDATE pipeline_execution SET finished = $1 WHERE key = $2`,
				finishedAt, executionKey)
			if err != nil {
				return fmt.Errorf("mark execution finished: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) MarkExecutionAborted(ctx context.Context, executionKey int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var key int64
		err := tx.QueryRow(ctx,
			`SELECT key FROM pipeline_execution WHERE key = $1 FOR UPDATE`,
			executionKey).Scan(&key)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock execution: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE pipeline_step
			 SET status = $1, finished = now()
			 WHERE execution_key = $2 AND status = $3`,
			pipelines.StatusAborted, executionKey, pipelines.StatusRunning)
		if err != nil {
			return fmt.Errorf("abort steps: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE pipeline_execution
			 SET finished = now()
			 WHERE key = $1 AND finished IS NULL`,
			executionKey)
		if err != nil {
			return fmt.Errorf("finish execution: %w", err)
		}
		return nil
	})
}

func (s *Store) MarkAllExecutionsFinished(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_execution SET finished = now() WHERE finished IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("finish all executions: %w", err)
	}
	return tag.RowsAffected(), nil
}
