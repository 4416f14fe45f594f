package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callaudit/internal/types"
)

const jobColumns = `file_name, url, call_type, agent, status, transcript_json,
    voicelog_id, errors_json, score, completed_checks, failed_checks,
    created_at, updated_at`

// UpsertJob creates the job row for fileName, or resets an existing one to a
// clean starting state: empty transcript, empty error log, null voicelog id,
// zeroed score. Retried submissions must not observe data from a previous
// attempt with the same identifier.
func (s *Store) UpsertJob(ctx context.Context, fileName, url, callType, agent string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithRetry(ctx,
		`INSERT INTO jobs (file_name, url, call_type, agent, status, transcript_json,
             voicelog_id, errors_json, score, completed_checks, failed_checks, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, '[]', NULL, '[]', 0, 0, 0, ?, ?)
         ON CONFLICT(file_name) DO UPDATE SET
             url = excluded.url,
             call_type = excluded.call_type,
             agent = excluded.agent,
             status = excluded.status,
             transcript_json = '[]',
             voicelog_id = NULL,
             errors_json = '[]',
             score = 0,
             completed_checks = 0,
             failed_checks = 0,
             updated_at = excluded.updated_at`,
		fileName, url, callType, agent, types.StatusSubmitted, now, now,
	); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// SetStatus records a state-machine transition.
func (s *Store) SetStatus(ctx context.Context, fileName string, status types.Status) error {
	if err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE file_name = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), fileName,
	); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// SaveTranscript persists the job's ordered transcript.
func (s *Store) SaveTranscript(ctx context.Context, fileName string, lines []types.TranscriptLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := s.execWithRetry(ctx,
		`UPDATE jobs SET transcript_json = ?, updated_at = ? WHERE file_name = ?`,
		string(data), time.Now().UTC().Format(time.RFC3339Nano), fileName,
	); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// SetVoicelogID persists the detected voicelog line id; nil clears it.
func (s *Store) SetVoicelogID(ctx context.Context, fileName string, id *int) error {
	var val any
	if id != nil {
		val = *id
	}
	if err := s.execWithRetry(ctx,
		`UPDATE jobs SET voicelog_id = ?, updated_at = ? WHERE file_name = ?`,
		val, time.Now().UTC().Format(time.RFC3339Nano), fileName,
	); err != nil {
		return fmt.Errorf("set voicelog id: %w", err)
	}
	return nil
}

// SaveScore flushes the analysis tally to the job row.
func (s *Store) SaveScore(ctx context.Context, fileName string, summary types.ScoreSummary) error {
	if err := s.execWithRetry(ctx,
		`UPDATE jobs SET score = ?, completed_checks = ?, failed_checks = ?, updated_at = ?
         WHERE file_name = ?`,
		summary.Score, summary.CompletedChecks, summary.FailedChecks,
		time.Now().UTC().Format(time.RFC3339Nano), fileName,
	); err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	return nil
}

// AppendError atomically appends a message to the job's error log. The
// read-modify-write runs inside one transaction so concurrent writers for the
// same job cannot lose entries.
func (s *Store) AppendError(ctx context.Context, fileName, message string) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin append tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var raw string
		err = tx.QueryRowContext(ctx,
			`SELECT errors_json FROM jobs WHERE file_name = ?`, fileName,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("append error: job %q not found", fileName)
		}
		if err != nil {
			return fmt.Errorf("read error log: %w", err)
		}

		var log []string
		if unmarshalErr := json.Unmarshal([]byte(raw), &log); unmarshalErr != nil {
			log = nil
		}
		log = append(log, message)
		data, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("marshal error log: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET errors_json = ?, updated_at = ? WHERE file_name = ?`,
			string(data), time.Now().UTC().Format(time.RFC3339Nano), fileName,
		); err != nil {
			return fmt.Errorf("write error log: %w", err)
		}
		return tx.Commit()
	})
}

// GetJob fetches a job by file name. Returns nil when no row exists.
func (s *Store) GetJob(ctx context.Context, fileName string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE file_name = ?`, fileName)

	var (
		job            types.Job
		transcriptJSON string
		errorsJSON     string
		voicelogID     sql.NullInt64
	)
	err := row.Scan(
		&job.FileName, &job.URL, &job.CallType, &job.Agent, &job.Status,
		&transcriptJSON, &voicelogID, &errorsJSON,
		&job.Score, &job.CompletedChecks, &job.FailedChecks,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := json.Unmarshal([]byte(transcriptJSON), &job.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &job.Errors); err != nil {
		return nil, fmt.Errorf("decode error log: %w", err)
	}
	if voicelogID.Valid {
		id := int(voicelogID.Int64)
		job.VoicelogID = &id
	}
	return &job, nil
}
