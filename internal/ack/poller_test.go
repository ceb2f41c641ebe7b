package ack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/avenalabs/regsub/internal/lifecycle"
	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/store"
	"github.com/avenalabs/regsub/internal/submission"
	"github.com/avenalabs/regsub/internal/transport"
	"github.com/avenalabs/regsub/internal/validation"
)

// pollFixture wires the full submitted-sequence pipeline against a
// directory-backed gateway, so the poller is exercised end to end.
type pollFixture struct {
	store      *store.Store
	manager    *lifecycle.Manager
	poller     *Poller
	remoteRoot string
	seq        *submission.Sequence
}

func newPollFixture(t *testing.T) *pollFixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	profiles, err := profile.LoadDefaults()
	if err != nil {
		t.Fatal(err)
	}

	remoteRoot := t.TempDir()
	client := transport.NewClient(func() (transport.Gateway, error) {
		return transport.NewDirGateway(remoteRoot), nil
	})

	baseRoot := t.TempDir()
	m := lifecycle.NewManager(lifecycle.Config{
		BaseRoot:  baseRoot,
		Applicant: "Avena Labs",
	}, s, s, s, s, profiles, validation.New(profiles, validation.StaticValidator{}), client, nil)

	// Walk one sequence to Submitted.
	seq, err := m.Create(ctx, submission.RegionUS)
	if err != nil {
		t.Fatal(err)
	}
	artifact := filepath.Join(baseRoot, "cover.pdf")
	content := []byte("cover body")
	if err := os.WriteFile(artifact, content, 0o644); err != nil {
		t.Fatal(err)
	}
	doc := submission.Document{
		ID:           1,
		Title:        "Cover Letter",
		SourcePath:   artifact,
		Approval:     submission.ApprovalApproved,
		QC:           submission.QCPassed,
		ContentHash:  submission.HashBytes(content),
		ArtifactPath: artifact,
	}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Assemble(ctx, seq.ID, []lifecycle.PlanItem{
		{DocumentID: doc.ID, ModulePath: "m1/us/cover", Operation: submission.OpNew},
	}); err != nil {
		t.Fatalf("Assemble() failed: %v", err)
	}
	if _, err := m.Validate(ctx, seq.ID); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if _, err := m.Submit(ctx, seq.ID); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	seq, err = m.Get(ctx, seq.ID)
	if err != nil {
		t.Fatal(err)
	}

	return &pollFixture{
		store:      s,
		manager:    m,
		poller:     NewPoller(m, s, s, client),
		remoteRoot: remoteRoot,
		seq:        seq,
	}
}

// dropAck writes one acknowledgment file into the remote acks/ folder.
func (f *pollFixture) dropAck(t *testing.T, filename, body string) {
	t.Helper()
	dir := filepath.Join(f.remoteRoot, f.seq.RemoteDir, transport.AckDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func ackBody(stage, status string) string {
	return fmt.Sprintf(`<acknowledgment stage=%q status=%q/>`, stage, status)
}

func (f *pollFixture) status(t *testing.T) submission.Status {
	t.Helper()
	seq, err := f.manager.Get(context.Background(), f.seq.ID)
	if err != nil {
		t.Fatal(err)
	}
	return seq.Status
}

func TestPoll_NoAcksNoUpdates(t *testing.T) {
	f := newPollFixture(t)

	updates, err := f.poller.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("updates = %v, want none", updates)
	}
}

func TestPoll_RecordsStagesInOrder(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	// Both files appear in one poll window; the receipt must be applied
	// before the processing result.
	f.dropAck(t, "receipt_0001.xml", ackBody("receipt", "success"))
	f.dropAck(t, "processing_0001.xml", ackBody("processing", "success"))

	updates, err := f.poller.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0].To != submission.StatusAcked1 || updates[1].To != submission.StatusAcked2Success {
		t.Errorf("update states = %s, %s; want %s, %s",
			updates[0].To, updates[1].To, submission.StatusAcked1, submission.StatusAcked2Success)
	}
	for _, u := range updates {
		if u.Anomalous {
			t.Errorf("in-order stage %s flagged anomalous", u.Stage)
		}
	}
	if got := f.status(t); got != submission.StatusAcked2Success {
		t.Errorf("status = %s, want %s", got, submission.StatusAcked2Success)
	}

	// The raw artifacts are archived under the sequence's acks/ folder.
	for _, name := range []string{"receipt_0001.xml", "processing_0001.xml"} {
		if _, err := os.Stat(filepath.Join(f.seq.BaseDir, transport.AckDirName, name)); err != nil {
			t.Errorf("local ack copy %s missing: %v", name, err)
		}
	}
}

func TestPoll_SecondRunIsIdempotent(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	f.dropAck(t, "receipt_0001.xml", ackBody("receipt", "success"))
	if _, err := f.poller.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	updates, err := f.poller.Poll(ctx)
	if err != nil {
		t.Fatalf("second Poll() failed: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("second poll produced %d updates, want 0", len(updates))
	}
	if got := f.status(t); got != submission.StatusAcked1 {
		t.Errorf("status = %s, want %s", got, submission.StatusAcked1)
	}
}

func TestPoll_OutOfOrderStageFlagged(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	f.dropAck(t, "centre_0001.xml", ackBody("centre", "success"))

	updates, err := f.poller.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if len(updates) != 1 || !updates[0].Anomalous {
		t.Fatalf("updates = %+v, want one anomalous centre update", updates)
	}
	if got := f.status(t); got != submission.StatusAcked3 {
		t.Errorf("status = %s, want %s", got, submission.StatusAcked3)
	}
}

func TestPoll_UnparseableAckSkippedNotFatal(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	f.dropAck(t, "receipt_0001.xml", "not xml at all {")
	f.dropAck(t, "processing_0001.xml", ackBody("processing", "success"))

	updates, err := f.poller.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	// The good file is still applied; the bad one is audited and skipped.
	if len(updates) != 1 {
		t.Fatalf("updates = %+v, want 1", updates)
	}

	trail, err := f.store.AuditTrail(ctx, f.seq.ID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range trail {
		if e.Action == string(submission.ErrCodeAckParse) {
			found = true
		}
	}
	if !found {
		t.Error("parse failure missing from audit trail")
	}

	// Once the gateway rewrites the file, a later poll picks it up.
	f.dropAck(t, "receipt_0001.xml", ackBody("receipt", "success"))
	updates, err = f.poller.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].Stage != submission.StageReceipt {
		t.Errorf("retry updates = %+v, want the repaired receipt", updates)
	}
}

func TestPoll_TerminalSequencesNotPolled(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	f.dropAck(t, "receipt_0001.xml", ackBody("receipt", "success"))
	f.dropAck(t, "processing_0001.xml", ackBody("processing", "success"))
	f.dropAck(t, "centre_0001.xml", ackBody("centre", "success"))
	if _, err := f.poller.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.status(t); got != submission.StatusAcked3 {
		t.Fatalf("status = %s, want %s", got, submission.StatusAcked3)
	}

	seqs, err := f.manager.ListPollable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 0 {
		t.Errorf("terminal sequence still pollable: %+v", seqs)
	}
}

func TestPoll_CentreReceiptAfterProcessingError(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	f.dropAck(t, "receipt_0001.xml", ackBody("receipt", "success"))
	f.dropAck(t, "processing_0001.xml", ackBody("processing", "error"))
	if _, err := f.poller.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.status(t); got != submission.StatusAcked2Error {
		t.Fatalf("status = %s, want %s", got, submission.StatusAcked2Error)
	}

	// A processing error does not close the exchange: the sequence stays
	// on the poll list and the centre receipt is still fetched.
	f.dropAck(t, "centre_0001.xml", ackBody("centre", "success"))
	updates, err := f.poller.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].Stage != submission.StageCentre {
		t.Errorf("updates = %+v, want only the centre receipt", updates)
	}
	if got := f.status(t); got != submission.StatusAcked3 {
		t.Errorf("status = %s, want %s", got, submission.StatusAcked3)
	}
}
