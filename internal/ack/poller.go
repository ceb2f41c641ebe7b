package ack

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/avenalabs/regsub/internal/submission"
)

// Lifecycle is the slice of the lifecycle manager the poller drives.
type Lifecycle interface {
	ListPollable(ctx context.Context) ([]*submission.Sequence, error)
	RecordAck(ctx context.Context, seqID int64, filename string, rec submission.AckRecord) (*submission.SequenceUpdate, error)
}

// Index answers whether an acknowledgment filename is already on record,
// so the poller never re-downloads a known file. Implemented by
// *store.Store.
type Index interface {
	HasAck(ctx context.Context, seqID int64, filename string) (bool, error)
}

// Anomalies records non-fatal poll problems to the audit trail.
// Implemented by *store.Store.
type Anomalies interface {
	AuditAnomaly(ctx context.Context, seqID int64, code submission.ErrorCode, details string) error
}

// Fetcher lists and downloads remote acknowledgment files. Implemented by
// *transport.Client.
type Fetcher interface {
	ListAcks(ctx context.Context, seq *submission.Sequence) ([]string, error)
	FetchAck(ctx context.Context, seq *submission.Sequence, filename string) (string, error)
}

// Poller retrieves new acknowledgment files for every watchable sequence
// and records them. Polling is idempotent: a second run over an unchanged
// remote folder produces no updates.
type Poller struct {
	lifecycle Lifecycle
	index     Index
	anomalies Anomalies
	fetcher   Fetcher

	// Now stamps ReceivedAt on recorded acknowledgments. Defaults to
	// time.Now.
	Now func() time.Time
}

// NewPoller wires a Poller.
func NewPoller(lc Lifecycle, index Index, anomalies Anomalies, fetcher Fetcher) *Poller {
	return &Poller{lifecycle: lc, index: index, anomalies: anomalies, fetcher: fetcher, Now: time.Now}
}

// Poll runs one pass over every pollable sequence and returns the status
// changes it produced.
//
// Per-sequence failures (gateway outage, malformed acknowledgment) are
// logged and skipped so one bad sequence never starves the rest; only a
// failure to enumerate sequences aborts the pass.
func (p *Poller) Poll(ctx context.Context) ([]submission.SequenceUpdate, error) {
	seqs, err := p.lifecycle.ListPollable(ctx)
	if err != nil {
		return nil, err
	}

	var updates []submission.SequenceUpdate
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return updates, err
		}
		seqUpdates, err := p.pollSequence(ctx, seq)
		if err != nil {
			slog.Warn("acknowledgment poll failed for sequence",
				"sequence", seq.ID, "error", err)
			continue
		}
		updates = append(updates, seqUpdates...)
	}
	return updates, nil
}

func (p *Poller) pollSequence(ctx context.Context, seq *submission.Sequence) ([]submission.SequenceUpdate, error) {
	names, err := p.fetcher.ListAcks(ctx, seq)
	if err != nil {
		return nil, err
	}
	sortByStage(names)

	var updates []submission.SequenceUpdate
	for _, name := range names {
		known, err := p.index.HasAck(ctx, seq.ID, name)
		if err != nil {
			return updates, err
		}
		if known {
			continue
		}

		stage, ok := StageFromFilename(name)
		if !ok {
			p.skipUnparseable(ctx, seq.ID, name, "unrecognized stage prefix")
			continue
		}

		localPath, err := p.fetcher.FetchAck(ctx, seq, name)
		if err != nil {
			return updates, err
		}
		doc, err := ParseFile(localPath)
		if err != nil {
			p.skipUnparseable(ctx, seq.ID, name, err.Error())
			continue
		}

		update, err := p.lifecycle.RecordAck(ctx, seq.ID, name, submission.AckRecord{
			Stage:        stage,
			ArtifactPath: localPath,
			Status:       doc.Status,
			ReceivedAt:   p.Now().UTC(),
		})
		if err != nil {
			return updates, err
		}
		if update != nil {
			updates = append(updates, *update)
			slog.Info("acknowledgment recorded",
				"sequence", seq.ID, "file", name, "stage", stage,
				"status", doc.Status, "state", update.To)
		}
	}
	return updates, nil
}

// skipUnparseable logs and audits a bad acknowledgment file without
// failing the poll. The remote file stays put; an operator inspects it.
func (p *Poller) skipUnparseable(ctx context.Context, seqID int64, name, reason string) {
	slog.Warn("skipping unparseable acknowledgment",
		"sequence", seqID, "file", name, "reason", reason)
	if err := p.anomalies.AuditAnomaly(ctx, seqID, submission.ErrCodeAckParse,
		name+": "+reason); err != nil {
		slog.Error("audit append failed", "sequence", seqID, "error", err)
	}
}

// sortByStage orders filenames so earlier stages are recorded before
// later ones when a single poll picks up several at once. Within a stage
// the lexicographic filename order is kept.
func sortByStage(names []string) {
	rank := func(name string) int {
		stage, ok := StageFromFilename(name)
		if !ok {
			return len(submission.StageOrder) + 1
		}
		return submission.StageOrder[stage]
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
}
