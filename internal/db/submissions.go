package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/anpr.dashboard/internal/upload"
)

var stateNames = map[string]upload.State{
	upload.Idle.String():       upload.Idle,
	upload.Selected.String():   upload.Selected,
	upload.Submitting.String(): upload.Submitting,
	upload.Succeeded.String():  upload.Succeeded,
	upload.Failed.String():     upload.Failed,
}

// RecordSubmission stores a settled submission.
func (db *DB) RecordSubmission(ctx context.Context, s upload.Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO submissions (
			submission_id, kind, file_name, state, result_id, item_count, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), string(s.Kind), s.FileName, s.State.String(),
		nullString(s.ResultID), s.ItemCount, nullString(s.Error),
		s.StartedAt.UnixNano(), s.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// RecentSubmissions returns up to limit submissions, newest first.
func (db *DB) RecentSubmissions(ctx context.Context, limit int) ([]upload.Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT submission_id, kind, file_name, state, result_id, item_count, error, started_at, finished_at
		FROM submissions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []upload.Submission
	for rows.Next() {
		var (
			id, kind, name, state string
			resultID, errMsg      sql.NullString
			count                 int
			started, finished     int64
		)
		if err := rows.Scan(&id, &kind, &name, &state, &resultID, &count, &errMsg, &started, &finished); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("submission id %q: %w", id, err)
		}
		out = append(out, upload.Submission{
			ID:         parsed,
			Kind:       upload.Kind(kind),
			FileName:   name,
			State:      stateNames[state],
			ResultID:   resultID.String,
			ItemCount:  count,
			Error:      errMsg.String,
			StartedAt:  time.Unix(0, started).UTC(),
			FinishedAt: time.Unix(0, finished).UTC(),
		})
	}
	return out, rows.Err()
}

// SubmissionCounts tallies submissions by kind and outcome.
type SubmissionCounts struct {
	Images    int
	Videos    int
	Succeeded int
	Failed    int
	Items     int
}

func (db *DB) SubmissionCounts(ctx context.Context) (SubmissionCounts, error) {
	var c SubmissionCounts
	err := db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(kind = 'image'), 0),
			COALESCE(SUM(kind = 'video'), 0),
			COALESCE(SUM(state = ?), 0),
			COALESCE(SUM(state = ?), 0),
			COALESCE(SUM(item_count), 0)
		FROM submissions`,
		upload.Succeeded.String(), upload.Failed.String(),
	).Scan(&c.Images, &c.Videos, &c.Succeeded, &c.Failed, &c.Items)
	return c, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
