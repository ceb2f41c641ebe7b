package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/avenalabs/regsub/internal/submission"
)

// CreateSequence allocates the next region-scoped sequence number and
// inserts the row in Draft. The MAX(number)+1 read and the insert share a
// transaction, so concurrent creates for the same region cannot collide
// (the UNIQUE(region, number) constraint backs this up).
//
// baseRoot is the storage root; the sequence directory becomes
// baseRoot/<region>/<number>.
func (s *Store) CreateSequence(ctx context.Context, region submission.Region, baseRoot string) (*submission.Sequence, error) {
	var seq *submission.Sequence
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(number), 0) + 1 FROM sequences WHERE region = ?
		`, region).Scan(&next); err != nil {
			return fmt.Errorf("next number for %s: %w", region, err)
		}

		baseDir := filepath.Join(baseRoot, string(region), submission.FormatNumber(next))
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sequences (region, number, status, base_dir)
			VALUES (?, ?, ?, ?)
		`, region, next, submission.StatusDraft, baseDir)
		if err != nil {
			return fmt.Errorf("insert sequence %s/%04d: %w", region, next, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		seq = &submission.Sequence{
			ID:      id,
			Region:  region,
			Number:  next,
			Status:  submission.StatusDraft,
			BaseDir: baseDir,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// GetSequence fetches one sequence with its latest validation result and
// acknowledgment slots.
func (s *Store) GetSequence(ctx context.Context, id int64) (*submission.Sequence, error) {
	var seq submission.Sequence
	err := s.db.QueryRowContext(ctx, `
		SELECT id, region, number, status, base_dir, backbone_path, annex_path, manifest_path, remote_dir
		FROM sequences WHERE id = ?
	`, id).Scan(&seq.ID, &seq.Region, &seq.Number, &seq.Status,
		&seq.BaseDir, &seq.BackbonePath, &seq.AnnexPath, &seq.ManifestPath, &seq.RemoteDir)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sequence %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence %d: %w", id, err)
	}

	findings, err := s.readFindings(ctx, id)
	if err != nil {
		return nil, err
	}
	if findings != nil {
		seq.Validation = &submission.ValidationResult{Findings: findings}
	}

	acks, err := s.ListAcks(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range acks {
		rec := acks[i]
		switch rec.Stage {
		case submission.StageReceipt:
			seq.Ack1 = &rec
		case submission.StageProcessing:
			seq.Ack2 = &rec
		case submission.StageCentre:
			seq.Ack3 = &rec
		}
	}
	return &seq, nil
}

// ListSequencesByStatus returns sequences whose status is in the given
// set, ordered by id for deterministic iteration.
func (s *Store) ListSequencesByStatus(ctx context.Context, statuses ...submission.Status) ([]*submission.Sequence, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT id FROM sequences WHERE status IN (?` +
		repeat(",?", len(statuses)-1) + `) ORDER BY id ASC`
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seqs := make([]*submission.Sequence, 0, len(ids))
	for _, id := range ids {
		seq, err := s.GetSequence(ctx, id)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

// UpdateSequenceStatus moves a sequence to a new status, enforcing the
// state machine edge in the same statement: the update only applies when
// the row still holds the expected prior status, so two concurrent callers
// cannot both win a transition.
func (s *Store) UpdateSequenceStatus(ctx context.Context, id int64, from, to submission.Status) error {
	if err := submission.CheckTransition(id, from, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sequences SET status = ? WHERE id = ? AND status = ?
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("update sequence %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &submission.StateError{SequenceID: id, From: from, To: to}
	}
	return nil
}

// SetSequencePaths records the generated artifact paths after assembly.
func (s *Store) SetSequencePaths(ctx context.Context, id int64, backbone, annex, manifest string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sequences SET backbone_path = ?, annex_path = ?, manifest_path = ?
		WHERE id = ?
	`, backbone, annex, manifest, id)
	if err != nil {
		return fmt.Errorf("set paths for sequence %d: %w", id, err)
	}
	return nil
}

// SetSequenceRemoteDir records the gateway folder used on first successful
// transport so later polls and resubmissions reuse it.
func (s *Store) SetSequenceRemoteDir(ctx context.Context, id int64, remoteDir string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sequences SET remote_dir = ? WHERE id = ?
	`, remoteDir, id)
	if err != nil {
		return fmt.Errorf("set remote dir for sequence %d: %w", id, err)
	}
	return nil
}

// PutSequenceDocuments replaces the planned leaves for a sequence.
func (s *Store) PutSequenceDocuments(ctx context.Context, seqID int64, docs []submission.SequenceDocument) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sequence_documents WHERE sequence_id = ?`, seqID); err != nil {
			return fmt.Errorf("clear sequence %d documents: %w", seqID, err)
		}
		for _, d := range docs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sequence_documents
				(sequence_id, document_id, module_path, operation, file_path, content_hash, title, leaf_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, seqID, d.DocumentID, d.ModulePath, d.Operation, d.FilePath,
				d.ContentHash, d.Title, d.LeafID); err != nil {
				return fmt.Errorf("insert sequence %d leaf %s: %w", seqID, d.ModulePath, err)
			}
		}
		return nil
	})
}

// GetSequenceDocuments returns a sequence's planned leaves in canonical
// order.
func (s *Store) GetSequenceDocuments(ctx context.Context, seqID int64) ([]submission.SequenceDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence_id, document_id, module_path, operation, file_path, content_hash, title, leaf_id
		FROM sequence_documents WHERE sequence_id = ?
		ORDER BY module_path ASC, file_path ASC, operation ASC
	`, seqID)
	if err != nil {
		return nil, fmt.Errorf("get sequence %d documents: %w", seqID, err)
	}
	defer rows.Close()

	var docs []submission.SequenceDocument
	for rows.Next() {
		var d submission.SequenceDocument
		if err := rows.Scan(&d.SequenceID, &d.DocumentID, &d.ModulePath, &d.Operation,
			&d.FilePath, &d.ContentHash, &d.Title, &d.LeafID); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// FindLeafID resolves the element identifier a replace/delete leaf must
// reference: the identifier used when that destination was last introduced
// in an earlier sequence for the same region. Returns ErrNotFound when no
// prior sequence placed a leaf there.
func (s *Store) FindLeafID(ctx context.Context, region submission.Region, modulePath, filePath string) (string, error) {
	var leafID string
	err := s.db.QueryRowContext(ctx, `
		SELECT sd.leaf_id
		FROM sequence_documents sd
		JOIN sequences sq ON sq.id = sd.sequence_id
		WHERE sq.region = ? AND sd.module_path = ? AND sd.file_path = ?
		  AND sd.operation IN ('new', 'append', 'replace')
		ORDER BY sq.number DESC
		LIMIT 1
	`, region, modulePath, filePath).Scan(&leafID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("leaf %s/%s in region %s: %w", modulePath, filePath, region, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find leaf id: %w", err)
	}
	return leafID, nil
}

// PutValidationResult replaces the stored findings for a sequence.
// Validation is idempotent: each run's findings replace the previous run's.
func (s *Store) PutValidationResult(ctx context.Context, seqID int64, result *submission.ValidationResult) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM validation_findings WHERE sequence_id = ?`, seqID); err != nil {
			return fmt.Errorf("clear findings for sequence %d: %w", seqID, err)
		}
		for i, f := range result.Findings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO validation_findings (sequence_id, ord, rule_id, severity, message, path)
				VALUES (?, ?, ?, ?, ?, ?)
			`, seqID, i, f.RuleID, f.Severity, f.Message, f.Path); err != nil {
				return fmt.Errorf("insert finding %d for sequence %d: %w", i, seqID, err)
			}
		}
		return nil
	})
}

func (s *Store) readFindings(ctx context.Context, seqID int64) ([]submission.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, severity, message, path
		FROM validation_findings WHERE sequence_id = ?
		ORDER BY ord ASC
	`, seqID)
	if err != nil {
		return nil, fmt.Errorf("read findings for sequence %d: %w", seqID, err)
	}
	defer rows.Close()

	var findings []submission.Finding
	for rows.Next() {
		var f submission.Finding
		if err := rows.Scan(&f.RuleID, &f.Severity, &f.Message, &f.Path); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
