package store

import (
	"context"
	"fmt"
	"time"

	"callaudit/internal/types"
)

// UpsertComplianceRecord inserts the judgment for one (job, element type)
// pair, or updates the existing row in place. Never duplicates.
func (s *Store) UpsertComplianceRecord(ctx context.Context, rec types.ComplianceRecord) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithRetry(ctx,
		`INSERT INTO compliance_records (file_name, element_type, verdict, timestamp, matched_text, remark, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(file_name, element_type) DO UPDATE SET
             verdict = excluded.verdict,
             timestamp = excluded.timestamp,
             matched_text = excluded.matched_text,
             remark = excluded.remark,
             updated_at = excluded.updated_at`,
		rec.FileName, rec.ElementType, rec.Verdict, rec.Timestamp, rec.MatchedText, rec.Remark, now,
	); err != nil {
		return fmt.Errorf("upsert compliance record: %w", err)
	}
	return nil
}

// RecordsForJob returns all compliance records for a job in element order.
func (s *Store) RecordsForJob(ctx context.Context, fileName string) ([]types.ComplianceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name, element_type, verdict, timestamp, matched_text, remark
         FROM compliance_records WHERE file_name = ? ORDER BY element_type`, fileName)
	if err != nil {
		return nil, fmt.Errorf("query compliance records: %w", err)
	}
	defer rows.Close()

	var records []types.ComplianceRecord
	for rows.Next() {
		var rec types.ComplianceRecord
		if err := rows.Scan(&rec.FileName, &rec.ElementType, &rec.Verdict, &rec.Timestamp, &rec.MatchedText, &rec.Remark); err != nil {
			return nil, fmt.Errorf("scan compliance record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
