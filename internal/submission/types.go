package submission

import "time"

// ApprovalStatus is the registry-side approval state of a document.
type ApprovalStatus string

const (
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalInReview ApprovalStatus = "in_review"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// QCStatus is the quality-control state of a document.
type QCStatus string

const (
	QCPending QCStatus = "pending"
	QCPassed  QCStatus = "passed"
	QCFailed  QCStatus = "failed"
	QCSkipped QCStatus = "skipped"
)

// Document is the reference copy of a registry document that this core
// gates on. The registry owns the document lifecycle; this subsystem only
// reads approval/QC state and updates QC results.
//
// Invariant: a document may be referenced by a sequence only if
// ApprovalStatus == ApprovalApproved and QCStatus == QCPassed.
type Document struct {
	ID         int64
	Title      string
	SourcePath string
	Approval   ApprovalStatus
	QC         QCStatus
	// ContentHash is the SHA-256 of the QC-normalized artifact, set when
	// QC passes.
	ContentHash string
	// ArtifactPath is the QC-corrected artifact written next to the
	// original source file.
	ArtifactPath string
}

// Submittable reports whether the document may enter a sequence.
func (d Document) Submittable() bool {
	return d.Approval == ApprovalApproved && d.QC == QCPassed
}

// Operation is the lifecycle operation a leaf represents relative to prior
// sequences.
type Operation string

const (
	OpNew     Operation = "new"
	OpReplace Operation = "replace"
	OpAppend  Operation = "append"
	OpDelete  Operation = "delete"
)

// ValidOperations defines the allowed lifecycle operations.
var ValidOperations = map[Operation]bool{
	OpNew:     true,
	OpReplace: true,
	OpAppend:  true,
	OpDelete:  true,
}

// NeedsLeafRef reports whether the operation must carry the element
// identifier of the leaf it modifies (assigned when the leaf was first
// introduced in a prior sequence).
func (op Operation) NeedsLeafRef() bool {
	return op == OpReplace || op == OpDelete
}

// SequenceDocument is one planned leaf in a sequence. It holds IDs only so
// that the object graph stays acyclic.
type SequenceDocument struct {
	SequenceID int64
	DocumentID int64
	// ModulePath is the slash-separated destination inside the submission
	// tree, e.g. "m1/us/cover".
	ModulePath string
	Operation  Operation
	// FilePath is the resolved artifact path relative to the sequence
	// directory.
	FilePath    string
	ContentHash string
	Title       string
	// LeafID is the stable element identifier. For OpNew it is assigned at
	// assembly time; for OpReplace/OpDelete it references the identifier
	// originally used when the leaf was introduced.
	LeafID string
}

// Region identifies the receiving authority.
type Region string

const (
	RegionUS Region = "us"
	RegionEU Region = "eu"
	RegionJP Region = "jp"
)

// ValidRegions defines the supported authorities.
var ValidRegions = map[Region]bool{
	RegionUS: true,
	RegionEU: true,
	RegionJP: true,
}

// Sequence is one versioned submission attempt. Sequences are never
// deleted; a failed attempt is superseded by a later sequence with a fresh,
// never-reused number.
type Sequence struct {
	ID     int64
	Region Region
	// Number is region-scoped and monotonically increasing. Presented
	// zero-padded to four digits ("0007").
	Number int
	Status Status
	// BaseDir is the on-disk root for this sequence.
	BaseDir      string
	BackbonePath string
	AnnexPath    string
	ManifestPath string
	// RemoteDir is the gateway folder the sequence was submitted to, set on
	// first successful transport and reused by later polls.
	RemoteDir  string
	Validation *ValidationResult
	// Acknowledgment artifact slots, one per stage.
	Ack1 *AckRecord
	Ack2 *AckRecord
	Ack3 *AckRecord
}

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one validation observation, ordered within its result.
type Finding struct {
	RuleID   string
	Severity Severity
	Message  string
	// Path is the offending file or leaf path, relative to the sequence
	// directory, when one applies.
	Path string
}

// ValidationResult is the ordered list of findings from one validation run.
//
// Invariant: a sequence may transport only if ErrorCount() == 0.
type ValidationResult struct {
	Findings []Finding
	RanAt    time.Time
}

// ErrorCount returns the number of error-severity findings.
func (r *ValidationResult) ErrorCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Passed reports whether the result permits transport.
func (r *ValidationResult) Passed() bool {
	return r != nil && r.ErrorCount() == 0
}

// AckStage is one of the three gateway receipt stages.
type AckStage string

const (
	StageReceipt    AckStage = "receipt"
	StageProcessing AckStage = "processing"
	StageCentre     AckStage = "centre"
)

// StageOrder gives the expected arrival order of acknowledgment stages.
// A later stage arriving without the earlier ones on file is a detectable
// anomaly (recorded and audited, never silently accepted).
var StageOrder = map[AckStage]int{
	StageReceipt:    1,
	StageProcessing: 2,
	StageCentre:     3,
}

// AckRecord is one parsed gateway acknowledgment.
type AckRecord struct {
	Stage AckStage
	// ArtifactPath is the local copy of the raw acknowledgment file under
	// the sequence's acks/ folder.
	ArtifactPath string
	// Status is the parsed status code ("success", "error", ...).
	Status     string
	ReceivedAt time.Time
	// Anomalous marks an out-of-order arrival.
	Anomalous bool
}

// SequenceUpdate describes one status change produced by a poll run.
type SequenceUpdate struct {
	SequenceID int64
	From       Status
	To         Status
	Stage      AckStage
	Anomalous  bool
}
