package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/store"
)

// Store is the Postgres-backed ProcessStore. Its atomicity obligations are met
// with row locks: AppendExecution and RecordStep run in transactions that lock
// the process (respectively execution) row before deciding, so concurrent
// callers for the same key serialize on the database.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) CreateProcessIfAbsent(ctx context.Context, datasetKey uuid.UUID, attempt int) (int64, error) {
	var key int64
	// The no-op update makes ON CONFLICT return the existing key.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pipeline_process (dataset_key, attempt, created)
		 VALUES ($1, $2, now())
		 ON CONFLICT (dataset_key, attempt) DO UPDATE SET dataset_key = EXCLUDED.dataset_key
		 RETURNING key`,
		datasetKey, attempt).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("create process: %w", err)
	}
	return key, nil
}

func (s *Store) GetProcess(ctx context.Context, datasetKey uuid.UUID, attempt int) (*pipelines.Process, error) {
	var p pipelines.Process
	err := s.pool.QueryRow(ctx,
		`SELECT key, dataset_key, attempt, created
		 FROM pipeline_process
		 WHERE dataset_key = $1 AND attempt = $2`,
		datasetKey, attempt).Scan(&p.Key, &p.DatasetKey, &p.Attempt, &p.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}

	procs := []pipelines.Process{p}
	if err := s.loadExecutions(ctx, procs); err != nil {
		return nil, err
	}
	return &procs[0], nil
}

func (s *Store) GetExecution(ctx context.Context, executionKey int64) (*pipelines.Execution, error) {
	var ex pipelines.Execution
	var stepsToRun []string
	err := s.pool.QueryRow(ctx,
		`SELECT key, created, steps_to_run, COALESCE(rerun_reason, ''), finished
		 FROM pipeline_execution
		 WHERE key = $1`,
		executionKey).Scan(&ex.Key, &ex.Created, &stepsToRun, &ex.RerunReason, &ex.Finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	ex.StepsToRun = toStepTypes(stepsToRun)

	steps, err := s.listSteps(ctx, s.pool, executionKey)
	if err != nil {
		return nil, err
	}
	ex.Steps = steps
	return &ex, nil
}

func (s *Store) ListProcesses(ctx context.Context, f store.ListFilter) ([]pipelines.Process, error) {
	query := `SELECT p.key, p.dataset_key, p.attempt, p.created FROM pipeline_process p`
	where, args := processFilter(f)
	query += where + ` ORDER BY p.created DESC, p.key DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var procs []pipelines.Process
	for rows.Next() {
		var p pipelines.Process
		if err := rows.Scan(&p.Key, &p.DatasetKey, &p.Attempt, &p.Created); err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadExecutions(ctx, procs); err != nil {
		return nil, err
	}
	return procs, nil
}

func (s *Store) CountProcesses(ctx context.Context, f store.ListFilter) (int64, error) {
	query := `SELECT count(*) FROM pipeline_process p`
	where, args := processFilter(f)

	var count int64
	if err := s.pool.QueryRow(ctx, query+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processes: %w", err)
	}
	return count, nil
}

func processFilter(f store.ListFilter) (string, []any) {
	var args []any
	where := ""
	if f.DatasetKey != nil {
		args = append(args, *f.DatasetKey)
		where = fmt.Sprintf(` WHERE p.dataset_key = $%d`, len(args))
	}
	if f.Running {
		clause := ` WHERE `
		if where != "" {
			clause = ` AND `
		}
		where += clause + `EXISTS (
			SELECT 1 FROM pipeline_execution e
			WHERE e.process_key = p.key AND e.finished IS NULL)`
	}
	return where, args
}

// loadExecutions attaches executions and steps to the given processes with two
// batched queries instead of one pair per process.
func (s *Store) loadExecutions(ctx context.Context, procs []pipelines.Process) error {
	if len(procs) == 0 {
		return nil
	}

	keys := make([]int64, len(procs))
	index := make(map[int64]*pipelines.Process, len(procs))
	for i := range procs {
		keys[i] = procs[i].Key
		index[procs[i].Key] = &procs[i]
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key, process_key, created, steps_to_run, COALESCE(rerun_reason, ''), finished
		 FROM pipeline_execution
		 WHERE process_key = ANY($1::bigint[])
		 ORDER BY created, key`,
		keys)
	if err != nil {
		return fmt.Errorf("load executions: %w", err)
	}
	defer rows.Close()

	type owned struct {
		processKey int64
		ex         pipelines.Execution
	}
	var execs []owned
	var execKeys []int64
	for rows.Next() {
		var o owned
		var stepsToRun []string
		if err := rows.Scan(&o.ex.Key, &o.processKey, &o.ex.Created, &stepsToRun, &o.ex.RerunReason, &o.ex.Finished); err != nil {
			return err
		}
		o.ex.StepsToRun = toStepTypes(stepsToRun)
		execs = append(execs, o)
		execKeys = append(execKeys, o.ex.Key)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(execs) == 0 {
		return nil
	}

	stepRows, err := s.pool.Query(ctx,
		`SELECT key, execution_key, type, status, started, finished,
		        COALESCE(message, ''), COALESCE(pipelines_version, '')
		 FROM pipeline_step
		 WHERE execution_key = ANY($1::bigint[])
		 ORDER BY started, key`,
		execKeys)
	if err != nil {
		return fmt.Errorf("load steps: %w", err)
	}
	defer stepRows.Close()

	stepsByExec := make(map[int64][]pipelines.Step)
	for stepRows.Next() {
		var st pipelines.Step
		var executionKey int64
		if err := stepRows.Scan(&st.Key, &executionKey, &st.Type, &st.Status,
			&st.Started, &st.Finished, &st.Message, &st.Version); err != nil {
			return err
		}
		stepsByExec[executionKey] = append(stepsByExec[executionKey], st)
	}
	if err := stepRows.Err(); err != nil {
		return err
	}

	for _, o := range execs {
		o.ex.Steps = stepsByExec[o.ex.Key]
		p := index[o.processKey]
		p.Executions = append(p.Executions, o.ex)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) listSteps(ctx context.Context, q querier, executionKey int64) ([]pipelines.Step, error) {
	rows, err := q.Query(ctx,
		`SELECT key, type, status, started, finished, COALESCE(message, ''), COALESCE(pipelines_version, '')
		 FROM pipeline_step
		 WHERE execution_key = $1
		 ORDER BY started, key`,
		executionKey)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []pipelines.Step
	for rows.Next() {
		var st pipelines.Step
		if err := rows.Scan(&st.Key, &st.Type, &st.Status, &st.Started, &st.Finished, &st.Message, &st.Version); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func toStepTypes(in []string) []pipelines.StepType {
	out := make([]pipelines.StepType, len(in))
	for i, s := range in {
		out[i] = pipelines.StepType(s)
	}
	return out
}

func fromStepTypes(in []pipelines.StepType) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

var _ store.ProcessStore = (*Store)(nil)
