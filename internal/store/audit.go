package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avenalabs/regsub/internal/submission"
)

// AuditEntry is one append-only audit trail record. Entries carry enough
// context (sequence id, action, timestamp, details) to replay a failure.
type AuditEntry struct {
	EntryID    string
	SequenceID int64
	Actor      string
	Action     string
	Details    string
	CreatedAt  time.Time
}

// AppendAudit writes one audit entry. The trail is append-only: there is
// no update or delete path anywhere in this package.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.Must(uuid.NewV7()).String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (entry_id, sequence_id, actor, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.EntryID, entry.SequenceID, entry.Actor, entry.Action, entry.Details,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditTrail returns a sequence's audit entries in insertion order.
func (s *Store) AuditTrail(ctx context.Context, seqID int64) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, sequence_id, actor, action, details, created_at
		FROM audit_log WHERE sequence_id = ?
		ORDER BY id ASC
	`, seqID)
	if err != nil {
		return nil, fmt.Errorf("audit trail for sequence %d: %w", seqID, err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.EntryID, &e.SequenceID, &e.Actor, &e.Action, &e.Details, &createdAt); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Audit appends one audit entry from its parts. This is the form consumed
// through the lifecycle manager's AuditSink interface.
func (s *Store) Audit(ctx context.Context, seqID int64, actor, action, details string) error {
	return s.AppendAudit(ctx, AuditEntry{
		SequenceID: seqID,
		Actor:      actor,
		Action:     action,
		Details:    details,
	})
}

// AuditAnomaly is a convenience wrapper recording a flagged anomaly (e.g.
// an out-of-order acknowledgment) against a sequence.
func (s *Store) AuditAnomaly(ctx context.Context, seqID int64, code submission.ErrorCode, details string) error {
	return s.AppendAudit(ctx, AuditEntry{
		SequenceID: seqID,
		Actor:      "system",
		Action:     string(code),
		Details:    details,
	})
}
