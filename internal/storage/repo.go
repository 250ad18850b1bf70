package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

func (s *Store) UpsertToken(ctx context.Context, token, label string) error {
	q := s.sql.Insert("api_tokens").
		Columns("token", "label").
		Values(token, label).
		Suffix("ON CONFLICT(token) DO UPDATE SET label=excluded.label")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert token query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *Store) LookupToken(ctx context.Context, token string) (string, error) {
	q := s.sql.Select("label").From("api_tokens").Where(sq.Eq{"token": token})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", fmt.Errorf("build lookup token query: %w", err)
	}

	var label string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	return label, nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	q := s.sql.Delete("api_tokens").Where(sq.Eq{"token": token})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete token query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (s *Store) InsertGuidanceRecord(ctx context.Context, rec GuidanceRecord) error {
	q := s.sql.Insert("guidance_log").
		Columns("user_label", "provider", "model", "preferred", "outcome", "elapsed_ms", "attachments").
		Values(rec.UserLabel, rec.Provider, rec.Model, rec.Preferred, rec.Outcome, rec.ElapsedMillis, rec.Attachments)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert guidance query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert guidance record: %w", err)
	}
	return nil
}

func (s *Store) RecentGuidanceRecords(ctx context.Context, limit uint64) ([]GuidanceRecord, error) {
	if limit == 0 || limit > 200 {
		limit = 50
	}
	q := s.sql.Select("id", "user_label", "provider", "model", "preferred", "outcome", "elapsed_ms", "attachments", "created_at").
		From("guidance_log").
		OrderBy("created_at DESC", "id DESC").
		Limit(limit)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent guidance query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("recent guidance records: %w", err)
	}
	defer rows.Close()

	out := []GuidanceRecord{}
	for rows.Next() {
		var rec GuidanceRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserLabel,
			&rec.Provider,
			&rec.Model,
			&rec.Preferred,
			&rec.Outcome,
			&rec.ElapsedMillis,
			&rec.Attachments,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan guidance record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
