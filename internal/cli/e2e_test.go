package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avenalabs/regsub/internal/store"
	"github.com/avenalabs/regsub/internal/submission"
)

// cliFixture provides a config file wired to a directory gateway, plus a
// registered, approved document ready for assembly.
type cliFixture struct {
	configPath string
	planPath   string
	remoteRoot string
	dbPath     string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	baseRoot := t.TempDir()
	remoteRoot := t.TempDir()
	dbPath := filepath.Join(baseRoot, "regsub.db")

	configPath := filepath.Join(t.TempDir(), "regsub.yaml")
	configBody := fmt.Sprintf(`
base_root: %s
db_path: %s
applicant: Avena Labs
submission_id: AVN-2026-001
gateway:
  local_dir: %s
`, baseRoot, dbPath, remoteRoot)
	require.NoError(t, os.WriteFile(configPath, []byte(configBody), 0o644))

	// Register an approved, QC-passed document directly; registry sync is
	// outside the CLI surface.
	artifact := filepath.Join(baseRoot, "cover.pdf")
	content := []byte("cover body")
	require.NoError(t, os.WriteFile(artifact, content, 0o644))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.PutDocument(context.Background(), submission.Document{
		ID:           1,
		Title:        "Cover Letter",
		SourcePath:   artifact,
		Approval:     submission.ApprovalApproved,
		QC:           submission.QCPassed,
		ContentHash:  submission.HashBytes(content),
		ArtifactPath: artifact,
	}))
	require.NoError(t, st.Close())

	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	planBody := `
region: us
documents:
  - id: 1
    module: m1/us/cover
`
	require.NoError(t, os.WriteFile(planPath, []byte(planBody), 0o644))

	return &cliFixture{
		configPath: configPath,
		planPath:   planPath,
		remoteRoot: remoteRoot,
		dbPath:     dbPath,
	}
}

// run executes one CLI invocation and returns its combined output.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_FullSubmissionFlow(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "create", "--plan", f.planPath)
	require.NoError(t, err, "create output: %s", out)
	assert.Contains(t, out, "us/0001")
	assert.Contains(t, out, "assembling")

	out, err = f.run(t, "validate", "1")
	require.NoError(t, err, "validate output: %s", out)
	assert.Contains(t, out, "PASS")

	out, err = f.run(t, "submit", "1")
	require.NoError(t, err, "submit output: %s", out)
	assert.Contains(t, out, "submitted")

	// The remote folder now holds archive and manifest.
	st, err := store.Open(f.dbPath)
	require.NoError(t, err)
	seq, err := st.GetSequence(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.Equal(t, submission.StatusSubmitted, seq.Status)
	require.NotEmpty(t, seq.RemoteDir)
	for _, name := range []string{"sequence.zip", "manifest.txt"} {
		_, statErr := os.Stat(filepath.Join(f.remoteRoot, seq.RemoteDir, name))
		assert.NoError(t, statErr, "remote %s should exist", name)
	}

	// Drop an acknowledgment and poll once.
	ackDir := filepath.Join(f.remoteRoot, seq.RemoteDir, "acks")
	require.NoError(t, os.MkdirAll(ackDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ackDir, "receipt_0001.xml"),
		[]byte(`<acknowledgment stage="receipt" status="success"/>`), 0o644))

	out, err = f.run(t, "poll", "--once")
	require.NoError(t, err, "poll output: %s", out)
	assert.Contains(t, out, "acked1")

	out, err = f.run(t, "status", "1")
	require.NoError(t, err, "status output: %s", out)
	assert.Contains(t, out, "acked1")
	assert.Contains(t, out, "ack receipt")
}

func TestCLI_CreateRejectsUnapprovedPlan(t *testing.T) {
	f := newCLIFixture(t)

	// Knock the document back to review.
	st, err := store.Open(f.dbPath)
	require.NoError(t, err)
	doc, err := st.GetDocument(context.Background(), 1)
	require.NoError(t, err)
	doc.Approval = submission.ApprovalInReview
	require.NoError(t, st.PutDocument(context.Background(), *doc))
	require.NoError(t, st.Close())

	out, err := f.run(t, "create", "--plan", f.planPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, string(submission.ErrCodeDocumentNotApproved))
}

func TestCLI_ValidateFailureExitsOne(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "create", "--plan", f.planPath)
	require.NoError(t, err, "create output: %s", out)

	// Tamper with the copied leaf so the checksum check fails.
	st, err := store.Open(f.dbPath)
	require.NoError(t, err)
	seq, err := st.GetSequence(context.Background(), 1)
	require.NoError(t, err)
	docs, err := st.GetSequenceDocuments(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	leaf := filepath.Join(seq.BaseDir, filepath.FromSlash(docs[0].FilePath))
	require.NoError(t, os.WriteFile(leaf, []byte("tampered"), 0o644))

	out, err = f.run(t, "validate", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL")
}

func TestCLI_SubmitWithoutGatewayFails(t *testing.T) {
	f := newCLIFixture(t)

	// Rewrite the config without a gateway block.
	body := fmt.Sprintf("base_root: %s\ndb_path: %s\napplicant: Avena Labs\n",
		filepath.Dir(f.dbPath), f.dbPath)
	require.NoError(t, os.WriteFile(f.configPath, []byte(body), 0o644))

	out, err := f.run(t, "create", "--plan", f.planPath)
	require.NoError(t, err, "create output: %s", out)
	_, err = f.run(t, "validate", "1")
	require.NoError(t, err)

	_, err = f.run(t, "submit", "1", "--retry", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transport gateway configured")
}

func TestCLI_QCCommand(t *testing.T) {
	f := newCLIFixture(t)

	dir := t.TempDir()
	good := filepath.Join(dir, "readable.txt")
	require.NoError(t, os.WriteFile(good, []byte("1. Introduction\nplain searchable text\n"), 0o644))

	out, err := f.run(t, "qc", good)
	require.NoError(t, err, "qc output: %s", out)
	assert.Contains(t, out, "1 file(s) checked, 0 failed")
}

func TestCLI_QCUpdatesRegisteredDocument(t *testing.T) {
	f := newCLIFixture(t)

	// The registered document's source grows past any reasonable size cap.
	st, err := store.Open(f.dbPath)
	require.NoError(t, err)
	doc, err := st.GetDocument(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	big := bytes.Repeat([]byte("x"), 128)
	require.NoError(t, os.WriteFile(doc.SourcePath, big, 0o644))

	// Tighten the cap below the file size via config.
	body, err := os.ReadFile(f.configPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.configPath,
		append(body, []byte("qc:\n  max_size_bytes: 64\n")...), 0o644))

	out, runErr := f.run(t, "qc", doc.SourcePath)
	require.Error(t, runErr, "qc should fail: %s", out)
	assert.Equal(t, ExitFailure, GetExitCode(runErr))

	st, err = store.Open(f.dbPath)
	require.NoError(t, err)
	defer st.Close()
	updated, err := st.GetDocument(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, submission.QCFailed, updated.QC)
	assert.Equal(t, submission.ApprovalInReview, updated.Approval)
}
