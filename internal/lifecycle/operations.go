package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/avenalabs/regsub/internal/backbone"
	"github.com/avenalabs/regsub/internal/store"
	"github.com/avenalabs/regsub/internal/submission"
)

// PlanItem is one requested leaf in an assembly plan.
type PlanItem struct {
	DocumentID int64
	// ModulePath is the slash-separated destination in the submission tree.
	ModulePath string
	Operation  submission.Operation
}

// Create opens a new sequence in Draft for a region. The region-scoped
// number is allocated by the store; the sequence directory is created
// immediately so later steps can assume it exists.
func (m *Manager) Create(ctx context.Context, region submission.Region) (*submission.Sequence, error) {
	if _, err := m.profiles.Get(region); err != nil {
		return nil, err
	}
	seq, err := m.seqs.CreateSequence(ctx, region, m.cfg.BaseRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(seq.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sequence dir: %w", err)
	}
	m.auditLog(ctx, seq.ID, "sequence.created",
		fmt.Sprintf("region=%s number=%s", seq.Region, submission.FormatNumber(seq.Number)))
	return seq, nil
}

// Get returns a sequence with its validation result and acknowledgment
// slots hydrated.
func (m *Manager) Get(ctx context.Context, seqID int64) (*submission.Sequence, error) {
	return m.seqs.GetSequence(ctx, seqID)
}

// ListPollable returns the sequences the acknowledgment poller should
// still watch.
func (m *Manager) ListPollable(ctx context.Context) ([]*submission.Sequence, error) {
	return m.seqs.ListSequencesByStatus(ctx,
		submission.StatusSubmitted, submission.StatusAcked1,
		submission.StatusAcked2Success, submission.StatusAcked2Error)
}

// Assemble gates the plan, copies approved artifacts into the sequence
// directory, and generates the backbone, region annex, manifest and
// archive. The sequence ends in Assembling, ready for validation.
//
// The plan is checked in full before the sequence leaves Draft: a
// rejected plan lists every offending document and the sequence stays in
// Draft so the caller can fix the plan and retry.
func (m *Manager) Assemble(ctx context.Context, seqID int64, plan []PlanItem) (*submission.Sequence, error) {
	l := m.lockFor(seqID)
	l.Lock()
	defer l.Unlock()

	seq, err := m.seqs.GetSequence(ctx, seqID)
	if err != nil {
		return nil, err
	}
	if seq.Status != submission.StatusDraft {
		return nil, &submission.StateError{SequenceID: seqID, From: seq.Status, To: submission.StatusAssembling}
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("sequence %d: empty assembly plan", seqID)
	}

	docs, err := m.resolvePlan(ctx, seq, plan)
	if err != nil {
		return nil, err
	}

	if err := m.seqs.UpdateSequenceStatus(ctx, seqID, submission.StatusDraft, submission.StatusAssembling); err != nil {
		return nil, err
	}

	if err := m.materialize(ctx, seq, docs); err != nil {
		// The sequence stays in Assembling; re-running Assemble is not
		// possible, but validation will surface the incomplete tree.
		m.auditLog(ctx, seqID, "sequence.assembly_failed", err.Error())
		return nil, err
	}

	m.auditLog(ctx, seqID, "sequence.assembled", fmt.Sprintf("leaves=%d", len(docs)))
	return m.seqs.GetSequence(ctx, seqID)
}

// resolvePlan checks every plan item against the document registry and
// prior sequences, returning the fully resolved leaf set. All offenders
// of one category are collected before rejecting.
func (m *Manager) resolvePlan(ctx context.Context, seq *submission.Sequence, plan []PlanItem) ([]submission.SequenceDocument, error) {
	var notApproved, qcFailed []int64
	destDocs := make(map[string][]int64)
	resolved := make([]submission.SequenceDocument, 0, len(plan))

	for _, item := range plan {
		if !submission.ValidOperations[item.Operation] {
			return nil, fmt.Errorf("sequence %d: unknown operation %q for document %d",
				seq.ID, item.Operation, item.DocumentID)
		}
		modPath := submission.CanonicalPath(item.ModulePath)
		if modPath == "" || modPath == "." {
			return nil, fmt.Errorf("sequence %d: empty module path for document %d", seq.ID, item.DocumentID)
		}

		doc, err := m.docs.GetDocument(ctx, item.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc.Approval != submission.ApprovalApproved {
			notApproved = append(notApproved, doc.ID)
			continue
		}
		if doc.QC != submission.QCPassed {
			qcFailed = append(qcFailed, doc.ID)
			continue
		}

		fileName := filepath.Base(doc.ArtifactPath)
		filePath := submission.CanonicalPath(path.Join(modPath, fileName))

		destDocs[filePath] = append(destDocs[filePath], doc.ID)
		if len(destDocs[filePath]) > 1 {
			// Clashing destination; offenders collected below.
			continue
		}

		sd := submission.SequenceDocument{
			SequenceID:  seq.ID,
			DocumentID:  doc.ID,
			ModulePath:  modPath,
			Operation:   item.Operation,
			FilePath:    filePath,
			ContentHash: doc.ContentHash,
			Title:       submission.CanonicalTitle(doc.Title),
		}

		switch {
		case item.Operation.NeedsLeafRef():
			leafID, err := m.seqs.FindLeafID(ctx, seq.Region, modPath, filePath)
			if err != nil {
				return nil, fmt.Errorf("sequence %d: %s %s: %w", seq.ID, item.Operation, filePath, err)
			}
			sd.LeafID = leafID
		case item.Operation == submission.OpNew:
			_, err := m.seqs.FindLeafID(ctx, seq.Region, modPath, filePath)
			if err == nil {
				return nil, fmt.Errorf("sequence %d: new leaf %s/%s already introduced in a prior sequence",
					seq.ID, modPath, fileName)
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			sd.LeafID = m.ids.Generate()
		default: // append
			sd.LeafID = m.ids.Generate()
		}
		resolved = append(resolved, sd)
	}

	if len(notApproved) > 0 {
		e := submission.NewError(submission.ErrCodeDocumentNotApproved,
			"%d document(s) not approved", len(notApproved))
		e.SequenceID = seq.ID
		e.DocumentIDs = notApproved
		return nil, e
	}
	if len(qcFailed) > 0 {
		e := submission.NewError(submission.ErrCodeQCFailure,
			"%d document(s) without a passing quality check", len(qcFailed))
		e.SequenceID = seq.ID
		e.DocumentIDs = qcFailed
		return nil, e
	}
	var clashing []int64
	for _, ids := range destDocs {
		if len(ids) > 1 {
			clashing = append(clashing, ids...)
		}
	}
	if len(clashing) > 0 {
		slices.Sort(clashing)
		e := submission.NewError(submission.ErrCodeDuplicateLeafPath,
			"%d document(s) resolve to the same destination path", len(clashing))
		e.SequenceID = seq.ID
		e.DocumentIDs = clashing
		return nil, e
	}
	return resolved, nil
}

// materialize copies artifacts into the sequence directory and generates
// every derived artifact: backbone, region annex, manifest, archive.
func (m *Manager) materialize(ctx context.Context, seq *submission.Sequence, docs []submission.SequenceDocument) error {
	for _, sd := range docs {
		if sd.Operation == submission.OpDelete {
			continue
		}
		doc, err := m.docs.GetDocument(ctx, sd.DocumentID)
		if err != nil {
			return err
		}
		dst := filepath.Join(seq.BaseDir, filepath.FromSlash(sd.FilePath))
		if err := copyFile(doc.ArtifactPath, dst); err != nil {
			return err
		}
	}

	if err := m.seqs.PutSequenceDocuments(ctx, seq.ID, docs); err != nil {
		return err
	}

	backbonePath, err := backbone.GenerateBackbone(seq, docs)
	if err != nil {
		return err
	}
	p, err := m.profiles.Get(seq.Region)
	if err != nil {
		return err
	}
	annexPath, err := backbone.GenerateAnnex(p, seq, docs, backbone.Meta{
		Applicant:    m.cfg.Applicant,
		SubmissionID: m.cfg.SubmissionID,
	})
	if err != nil {
		return err
	}
	manifestPath, err := m.manifests.BuildManifest(seq.BaseDir)
	if err != nil {
		return err
	}
	if _, err := m.manifests.Archive(seq.BaseDir); err != nil {
		return err
	}
	return m.seqs.SetSequencePaths(ctx, seq.ID, backbonePath, annexPath, manifestPath)
}

// Validate runs the validation pipeline against an assembled sequence and
// moves it to ValidatedPass or ValidatedFail. An unreachable external
// validator leaves the sequence in Assembling so validation can be
// retried; unreachability is never a pass.
func (m *Manager) Validate(ctx context.Context, seqID int64) (*submission.ValidationResult, error) {
	l := m.lockFor(seqID)
	l.Lock()
	defer l.Unlock()

	seq, err := m.seqs.GetSequence(ctx, seqID)
	if err != nil {
		return nil, err
	}
	if seq.Status != submission.StatusAssembling {
		return nil, &submission.StateError{SequenceID: seqID, From: seq.Status, To: submission.StatusValidatedPass}
	}

	result, err := m.validator.Validate(ctx, seq)
	if err != nil {
		m.auditLog(ctx, seqID, "sequence.validation_error", err.Error())
		return nil, err
	}
	if err := m.seqs.PutValidationResult(ctx, seqID, result); err != nil {
		return nil, err
	}

	to := submission.StatusValidatedFail
	if result.Passed() {
		to = submission.StatusValidatedPass
	}
	if err := m.seqs.UpdateSequenceStatus(ctx, seqID, submission.StatusAssembling, to); err != nil {
		return nil, err
	}
	m.auditLog(ctx, seqID, "sequence.validated",
		fmt.Sprintf("status=%s findings=%d errors=%d", to, len(result.Findings), result.ErrorCount()))
	return result, nil
}

// Submit pushes a validated sequence to the gateway and moves it to
// Submitted. The network call runs outside the per-sequence lock; a
// mid-submit flag keeps a second Submit from racing it. A transport
// failure leaves the sequence in ValidatedPass for retry.
func (m *Manager) Submit(ctx context.Context, seqID int64) (string, error) {
	if m.submitter == nil {
		return "", fmt.Errorf("sequence %d: no transport gateway configured", seqID)
	}

	l := m.lockFor(seqID)
	l.Lock()
	seq, err := m.seqs.GetSequence(ctx, seqID)
	if err != nil {
		l.Unlock()
		return "", err
	}
	if seq.Status != submission.StatusValidatedPass {
		l.Unlock()
		return "", &submission.StateError{SequenceID: seqID, From: seq.Status, To: submission.StatusSubmitted}
	}
	m.mu.Lock()
	if m.submitting[seqID] {
		m.mu.Unlock()
		l.Unlock()
		return "", fmt.Errorf("sequence %d: submission already in flight", seqID)
	}
	m.submitting[seqID] = true
	m.mu.Unlock()
	l.Unlock()

	remoteDir, submitErr := m.submitter.Submit(ctx, seq)

	l.Lock()
	defer l.Unlock()
	m.mu.Lock()
	delete(m.submitting, seqID)
	m.mu.Unlock()

	if submitErr != nil {
		m.auditLog(ctx, seqID, "sequence.submit_failed", submitErr.Error())
		return "", submitErr
	}
	if err := m.seqs.SetSequenceRemoteDir(ctx, seqID, remoteDir); err != nil {
		return "", err
	}
	if err := m.seqs.UpdateSequenceStatus(ctx, seqID, submission.StatusValidatedPass, submission.StatusSubmitted); err != nil {
		return "", err
	}
	m.auditLog(ctx, seqID, "sequence.submitted", "remote="+remoteDir)
	return remoteDir, nil
}

// RecordAck stores one acknowledgment artifact and advances the sequence
// when the stage drives a forward transition. Re-recording a known
// filename is a no-op. An out-of-order stage (its predecessor not yet on
// file) is recorded with the Anomalous flag and audited, and the sequence
// never moves backward for it.
func (m *Manager) RecordAck(ctx context.Context, seqID int64, filename string, rec submission.AckRecord) (*submission.SequenceUpdate, error) {
	l := m.lockFor(seqID)
	l.Lock()
	defer l.Unlock()

	known, err := m.acks.HasAck(ctx, seqID, filename)
	if err != nil {
		return nil, err
	}
	if known {
		return nil, nil
	}

	target, err := submission.AckTarget(rec.Stage, rec.Status)
	if err != nil {
		return nil, err
	}

	if prior, ok := priorStage(rec.Stage); ok {
		have, err := m.acks.HasAckStage(ctx, seqID, prior)
		if err != nil {
			return nil, err
		}
		if !have {
			rec.Anomalous = true
			m.auditLog(ctx, seqID, string(submission.ErrCodeOutOfOrderAck),
				fmt.Sprintf("stage=%s arrived before %s (file=%s)", rec.Stage, prior, filename))
		}
	}

	if err := m.acks.PutAck(ctx, seqID, filename, rec); err != nil {
		return nil, err
	}

	seq, err := m.seqs.GetSequence(ctx, seqID)
	if err != nil {
		return nil, err
	}
	update := &submission.SequenceUpdate{
		SequenceID: seqID,
		From:       seq.Status,
		To:         seq.Status,
		Stage:      rec.Stage,
		Anomalous:  rec.Anomalous,
	}

	// Only strictly forward moves apply; a late-arriving earlier stage is
	// kept as an artifact without touching the state.
	if target.Rank() > seq.Status.Rank() && submission.CanTransition(seq.Status, target) {
		if err := m.seqs.UpdateSequenceStatus(ctx, seqID, seq.Status, target); err != nil {
			return nil, err
		}
		update.To = target
	}

	m.auditLog(ctx, seqID, "ack.recorded",
		fmt.Sprintf("stage=%s status=%s file=%s state=%s", rec.Stage, rec.Status, filename, update.To))
	return update, nil
}

// priorStage returns the stage expected before the given one.
func priorStage(stage submission.AckStage) (submission.AckStage, bool) {
	switch stage {
	case submission.StageProcessing:
		return submission.StageReceipt, true
	case submission.StageCentre:
		return submission.StageProcessing, true
	}
	return "", false
}

// auditLog appends to the audit trail, never failing the operation it
// documents. Audit persistence errors surface through the store's own log.
func (m *Manager) auditLog(ctx context.Context, seqID int64, action, details string) {
	_ = m.audit.Audit(ctx, seqID, m.cfg.Actor, action, details)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
