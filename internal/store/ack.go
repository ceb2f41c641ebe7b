package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avenalabs/regsub/internal/submission"
)

// HasAck reports whether a remote acknowledgment filename has already been
// recorded for a sequence. The poller's idempotency hinges on this local
// presence check (never on a remote delete).
func (s *Store) HasAck(ctx context.Context, seqID int64, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM acks WHERE sequence_id = ? AND filename = ?
	`, seqID, filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has ack %s: %w", filename, err)
	}
	return n > 0, nil
}

// PutAck records one acknowledgment. ON CONFLICT DO NOTHING keeps the
// write idempotent: re-recording the same remote filename is silently
// ignored.
func (s *Store) PutAck(ctx context.Context, seqID int64, filename string, rec submission.AckRecord) error {
	anomalous := 0
	if rec.Anomalous {
		anomalous = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acks (sequence_id, stage, filename, artifact_path, status, received_at, anomalous)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sequence_id, filename) DO NOTHING
	`, seqID, rec.Stage, filename, rec.ArtifactPath, rec.Status,
		rec.ReceivedAt.UTC().Format(time.RFC3339), anomalous)
	if err != nil {
		return fmt.Errorf("put ack %s for sequence %d: %w", filename, seqID, err)
	}
	return nil
}

// ListAcks returns a sequence's acknowledgment records in stage order.
func (s *Store) ListAcks(ctx context.Context, seqID int64) ([]submission.AckRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, artifact_path, status, received_at, anomalous
		FROM acks WHERE sequence_id = ?
		ORDER BY CASE stage
			WHEN 'receipt' THEN 1
			WHEN 'processing' THEN 2
			WHEN 'centre' THEN 3
		END ASC, filename ASC
	`, seqID)
	if err != nil {
		return nil, fmt.Errorf("list acks for sequence %d: %w", seqID, err)
	}
	defer rows.Close()

	var recs []submission.AckRecord
	for rows.Next() {
		var rec submission.AckRecord
		var receivedAt string
		var anomalous int
		if err := rows.Scan(&rec.Stage, &rec.ArtifactPath, &rec.Status, &receivedAt, &anomalous); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339, receivedAt); err == nil {
			rec.ReceivedAt = ts
		}
		rec.Anomalous = anomalous != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// HasAckStage reports whether any acknowledgment for the given stage is on
// file for a sequence. Used for out-of-order detection.
func (s *Store) HasAckStage(ctx context.Context, seqID int64, stage submission.AckStage) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM acks WHERE sequence_id = ? AND stage = ?
	`, seqID, stage).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has ack stage %s: %w", stage, err)
	}
	return n > 0, nil
}
