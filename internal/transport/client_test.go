package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avenalabs/regsub/internal/submission"
	"github.com/avenalabs/regsub/internal/testutil"
)

// recordingGateway wraps another Gateway and records Put order.
type recordingGateway struct {
	Gateway
	puts []string
}

func (g *recordingGateway) Put(remotePath string, r io.Reader) error {
	g.puts = append(g.puts, remotePath)
	return g.Gateway.Put(remotePath, r)
}

func assembledDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"sequence.zip": "archive bytes",
		"manifest.txt": "# generated 2026-08-31T00:00:00Z\nindex.xml | abc\n",
		"index.xml":    "<doc/>",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testSequence(t *testing.T) *submission.Sequence {
	return &submission.Sequence{
		ID:      1,
		Region:  submission.RegionUS,
		Number:  7,
		Status:  submission.StatusValidatedPass,
		BaseDir: assembledDir(t),
	}
}

var clock = testutil.NewFrozenClock(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))

func fixedNow() time.Time { return clock.Now() }

func TestRemoteDir_Naming(t *testing.T) {
	got := RemoteDir(fixedNow(), submission.RegionEU, 12)
	if got != "20260831_eu_0012" {
		t.Errorf("RemoteDir() = %s, want 20260831_eu_0012", got)
	}
}

func TestSubmit_UploadsArchiveThenManifest(t *testing.T) {
	root := t.TempDir()
	rec := &recordingGateway{Gateway: NewDirGateway(root)}
	c := NewClient(func() (Gateway, error) { return rec, nil })
	c.Now = fixedNow

	seq := testSequence(t)
	remote, err := c.Submit(context.Background(), seq)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if remote != "20260831_us_0007" {
		t.Errorf("remote dir = %s, want 20260831_us_0007", remote)
	}

	// Manifest last: its arrival is the completion signal.
	want := []string{
		"20260831_us_0007/sequence.zip",
		"20260831_us_0007/manifest.txt",
	}
	if len(rec.puts) != len(want) {
		t.Fatalf("uploads = %v, want %v", rec.puts, want)
	}
	for i, p := range want {
		if rec.puts[i] != p {
			t.Errorf("upload %d = %s, want %s", i, rec.puts[i], p)
		}
	}
	for _, p := range want {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err != nil {
			t.Errorf("remote file %s missing: %v", p, err)
		}
	}
}

func TestSubmit_ReusesAssignedRemoteDir(t *testing.T) {
	root := t.TempDir()
	c := NewClient(func() (Gateway, error) { return NewDirGateway(root), nil })
	c.Now = fixedNow

	seq := testSequence(t)
	seq.RemoteDir = "20260830_us_0007"
	remote, err := c.Submit(context.Background(), seq)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if remote != "20260830_us_0007" {
		t.Errorf("remote dir = %s, want reused 20260830_us_0007", remote)
	}
}

func TestSubmit_RequiresAssembledArtifacts(t *testing.T) {
	c := NewClient(func() (Gateway, error) { return NewDirGateway(t.TempDir()), nil })
	seq := testSequence(t)
	if err := os.Remove(filepath.Join(seq.BaseDir, "sequence.zip")); err != nil {
		t.Fatal(err)
	}

	_, err := c.Submit(context.Background(), seq)
	if submission.CodeOf(err) != submission.ErrCodeManifestIO {
		t.Fatalf("Submit() error = %v, want %s", err, submission.ErrCodeManifestIO)
	}
}

func TestSubmit_DialFailurePropagates(t *testing.T) {
	wantErr := submission.NewError(submission.ErrCodeTransportAuth, "bad credentials")
	c := NewClient(func() (Gateway, error) { return nil, wantErr })

	_, err := c.Submit(context.Background(), testSequence(t))
	if submission.CodeOf(err) != submission.ErrCodeTransportAuth {
		t.Fatalf("Submit() error = %v, want %s", err, submission.ErrCodeTransportAuth)
	}
}

func TestListAcks_AbsentFolderMeansNone(t *testing.T) {
	root := t.TempDir()
	c := NewClient(func() (Gateway, error) { return NewDirGateway(root), nil })

	seq := testSequence(t)
	seq.RemoteDir = "20260831_us_0007"
	names, err := c.ListAcks(context.Background(), seq)
	if err != nil {
		t.Fatalf("ListAcks() failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want none", names)
	}
}

func TestFetchAck_DownloadsIntoLocalAcksFolder(t *testing.T) {
	root := t.TempDir()
	c := NewClient(func() (Gateway, error) { return NewDirGateway(root), nil })

	seq := testSequence(t)
	seq.RemoteDir = "20260831_us_0007"
	remoteAck := filepath.Join(root, seq.RemoteDir, AckDirName, "receipt_0007.xml")
	if err := os.MkdirAll(filepath.Dir(remoteAck), 0o755); err != nil {
		t.Fatal(err)
	}
	body := `<acknowledgment stage="receipt" status="success"/>`
	if err := os.WriteFile(remoteAck, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := c.ListAcks(context.Background(), seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "receipt_0007.xml" {
		t.Fatalf("names = %v, want [receipt_0007.xml]", names)
	}

	local, err := c.FetchAck(context.Background(), seq, "receipt_0007.xml")
	if err != nil {
		t.Fatalf("FetchAck() failed: %v", err)
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("ack body = %q, want %q", got, body)
	}
	if filepath.Dir(local) != filepath.Join(seq.BaseDir, AckDirName) {
		t.Errorf("ack stored at %s, want under %s", local, filepath.Join(seq.BaseDir, AckDirName))
	}
}

func TestClassifyDialError(t *testing.T) {
	authErr := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [password]")
	if code := submission.CodeOf(classifyDialError("gw:22", authErr)); code != submission.ErrCodeTransportAuth {
		t.Errorf("auth rejection classified as %s", code)
	}

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if code := submission.CodeOf(classifyDialError("gw:22", netErr)); code != submission.ErrCodeTransportNetwork {
		t.Errorf("network failure classified as %s", code)
	}
}
