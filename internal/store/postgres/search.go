package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/maraichr/pipetrack/internal/store"
)

const searchSelect = `
	SELECT p.dataset_key, p.attempt, e.key,
	       COALESCE(e.rerun_reason, ''),
	       s.key, s.type, s.status, s.started, s.finished,
	       COALESCE(s.message, ''), COALESCE(s.pipelines_version, '')
	FROM pipeline_step s
	JOIN pipeline_execution e ON e.key = s.execution_key
	JOIN pipeline_process p ON p.key = e.process_key`

func (s *Store) SearchSteps(ctx context.Context, f store.SearchFilter) ([]store.SearchResult, error) {
	where, args := searchFilter(f)
	query := searchSelect + where + ` ORDER BY s.started DESC, s.key DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search steps: %w", err)
	}
	defer rows.Close()

	var results []store.SearchResult
	for rows.Next() {
		var r store.SearchResult
		if err := rows.Scan(&r.DatasetKey, &r.Attempt, &r.ExecutionKey, &r.RerunReason,
			&r.Step.Key, &r.Step.Type, &r.Step.Status, &r.Step.Started, &r.Step.Finished,
			&r.Step.Message, &r.Step.Version); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) CountSteps(ctx context.Context, f store.SearchFilter) (int64, error) {
	where, args := searchFilter(f)
	query := `SELECT count(*)
	FROM pipeline_step s
	JOIN pipeline_execution e ON e.key = s.execution_key
	JOIN pipeline_process p ON p.key = e.process_key` + where

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count steps: %w", err)
	}
	return count, nil
}

func searchFilter(f store.SearchFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.DatasetKey != nil {
		add(`p.dataset_key = $%d`, *f.DatasetKey)
	}
	if f.Status != nil {
		add(`s.status = $%d`, *f.Status)
	}
	if f.StepType != nil {
		add(`s.type = $%d`, *f.StepType)
	}
	if f.StartedMin != nil {
		add(`s.started >= $%d`, *f.StartedMin)
	}
	if f.StartedMax != nil {
		add(`s.started <= $%d`, *f.StartedMax)
	}
	if f.FinishedMin != nil {
		add(`s.finished >= $%d`, *f.FinishedMin)
	}
	if f.FinishedMax != nil {
		add(`s.finished <= $%d`, *f.FinishedMax)
	}
	if f.RerunReason != "" {
		add(`e.rerun_reason = $%d`, f.RerunReason)
	}
	if f.Version != "" {
		add(`s.pipelines_version = $%d`, f.Version)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}
