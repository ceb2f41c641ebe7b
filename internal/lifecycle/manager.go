// Package lifecycle owns the sequence state machine. The Manager is the
// only component that mutates sequences: it enforces the approval/QC gate
// on assembly, coordinates generation and validation, delegates transport,
// and records every transition to the append-only audit trail.
//
// Transitions on one sequence are serialized by a per-sequence mutex;
// transitions on different sequences proceed concurrently. The transport
// call deliberately runs outside the per-sequence lock, holding only a
// mid-submit flag, because it is a long blocking network operation.
package lifecycle

import (
	"context"
	"sync"

	"github.com/avenalabs/regsub/internal/manifest"
	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/submission"
)

// SequenceStore is the sequence repository consumed by the Manager.
// Implemented by *store.Store.
type SequenceStore interface {
	CreateSequence(ctx context.Context, region submission.Region, baseRoot string) (*submission.Sequence, error)
	GetSequence(ctx context.Context, id int64) (*submission.Sequence, error)
	UpdateSequenceStatus(ctx context.Context, id int64, from, to submission.Status) error
	SetSequencePaths(ctx context.Context, id int64, backbone, annex, manifest string) error
	SetSequenceRemoteDir(ctx context.Context, id int64, remoteDir string) error
	PutSequenceDocuments(ctx context.Context, seqID int64, docs []submission.SequenceDocument) error
	GetSequenceDocuments(ctx context.Context, seqID int64) ([]submission.SequenceDocument, error)
	FindLeafID(ctx context.Context, region submission.Region, modulePath, filePath string) (string, error)
	PutValidationResult(ctx context.Context, seqID int64, result *submission.ValidationResult) error
	ListSequencesByStatus(ctx context.Context, statuses ...submission.Status) ([]*submission.Sequence, error)
}

// DocumentStore reads the registry's reference copies of documents.
// Implemented by *store.Store.
type DocumentStore interface {
	GetDocument(ctx context.Context, id int64) (*submission.Document, error)
}

// AckStore records acknowledgment artifacts. Implemented by *store.Store.
type AckStore interface {
	HasAck(ctx context.Context, seqID int64, filename string) (bool, error)
	HasAckStage(ctx context.Context, seqID int64, stage submission.AckStage) (bool, error)
	PutAck(ctx context.Context, seqID int64, filename string, rec submission.AckRecord) error
}

// AuditSink appends to the audit trail. Implemented by *store.Store.
type AuditSink interface {
	Audit(ctx context.Context, seqID int64, actor, action, details string) error
}

// Validator runs the validation orchestrator against an assembled
// sequence. Implemented by *validation.Orchestrator.
type Validator interface {
	Validate(ctx context.Context, seq *submission.Sequence) (*submission.ValidationResult, error)
}

// Submitter pushes an assembled sequence to the regulatory gateway and
// returns the remote folder used. Implemented by *transport.Client.
type Submitter interface {
	Submit(ctx context.Context, seq *submission.Sequence) (string, error)
}

// Config holds the Manager's construction-time settings.
type Config struct {
	// BaseRoot is the storage root under which sequence directories are
	// created.
	BaseRoot string
	// Applicant is stamped into generated region annexes.
	Applicant string
	// SubmissionID is stamped into generated region annexes.
	SubmissionID string
	// Actor is recorded on audit entries the Manager writes. Defaults to
	// "system".
	Actor string
}

// Manager drives the sequence lifecycle.
type Manager struct {
	cfg       Config
	seqs      SequenceStore
	docs      DocumentStore
	acks      AckStore
	audit     AuditSink
	profiles  profile.Set
	validator Validator
	submitter Submitter
	ids       IDGenerator
	manifests *manifest.Builder

	mu         sync.Mutex
	seqLocks   map[int64]*sync.Mutex
	submitting map[int64]bool
}

// NewManager wires a Manager. submitter may be nil when transport is not
// configured (validation-only deployments); Submit then fails cleanly.
func NewManager(cfg Config, seqs SequenceStore, docs DocumentStore, acks AckStore,
	audit AuditSink, profiles profile.Set, validator Validator, submitter Submitter,
	ids IDGenerator) *Manager {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	if cfg.Actor == "" {
		cfg.Actor = "system"
	}
	return &Manager{
		cfg:        cfg,
		seqs:       seqs,
		docs:       docs,
		acks:       acks,
		audit:      audit,
		profiles:   profiles,
		validator:  validator,
		submitter:  submitter,
		ids:        ids,
		manifests:  manifest.NewBuilder(),
		seqLocks:   make(map[int64]*sync.Mutex),
		submitting: make(map[int64]bool),
	}
}

// lockFor returns the mutex serializing transitions for one sequence.
func (m *Manager) lockFor(seqID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.seqLocks[seqID]
	if !ok {
		l = &sync.Mutex{}
		m.seqLocks[seqID] = l
	}
	return l
}
