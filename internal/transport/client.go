package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/avenalabs/regsub/internal/manifest"
	"github.com/avenalabs/regsub/internal/submission"
)

// AckDirName is the folder inside a sequence's remote directory where the
// gateway drops acknowledgment files.
const AckDirName = "acks"

// Client submits sequences to the gateway and fetches acknowledgments.
//
// Submit-side protocol: one remote folder per sequence, archive first,
// manifest last. The remote side treats the manifest's arrival as the
// upload-complete signal, so a crashed upload never looks finished.
type Client struct {
	dial Dialer

	// Now supplies the date for remote folder names. Defaults to time.Now;
	// tests inject a fixed clock.
	Now func() time.Time
}

// NewClient creates a Client that dials a fresh gateway session per
// operation.
func NewClient(dial Dialer) *Client {
	return &Client{dial: dial, Now: time.Now}
}

// RemoteDir returns the gateway folder name for a sequence submitted on
// the given date: YYYYMMDD_<region>_<number>.
func RemoteDir(now time.Time, region submission.Region, number int) string {
	return fmt.Sprintf("%s_%s_%s", now.UTC().Format("20060102"), region, submission.FormatNumber(number))
}

// Submit uploads an assembled sequence and returns the remote folder. A
// previously assigned remote folder is reused so a retried submission
// lands where the first attempt started.
func (c *Client) Submit(ctx context.Context, seq *submission.Sequence) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", submission.NewError(submission.ErrCodeTransportNetwork, "submit cancelled: %v", err)
	}

	archivePath := filepath.Join(seq.BaseDir, manifest.ArchiveName)
	manifestPath := filepath.Join(seq.BaseDir, manifest.FileName)
	for _, p := range []string{archivePath, manifestPath} {
		if _, err := os.Stat(p); err != nil {
			return "", submission.NewError(submission.ErrCodeManifestIO,
				"sequence %d not fully assembled: %v", seq.ID, err)
		}
	}

	remoteDir := seq.RemoteDir
	if remoteDir == "" {
		remoteDir = RemoteDir(c.Now(), seq.Region, seq.Number)
	}

	gw, err := c.dial()
	if err != nil {
		return "", err
	}
	defer gw.Close()

	if err := gw.MkdirAll(remoteDir); err != nil {
		return "", err
	}
	if err := c.upload(gw, archivePath, path.Join(remoteDir, manifest.ArchiveName)); err != nil {
		return "", err
	}
	if err := c.upload(gw, manifestPath, path.Join(remoteDir, manifest.FileName)); err != nil {
		return "", err
	}

	slog.Info("sequence uploaded to gateway",
		"sequence", seq.ID, "region", seq.Region, "remote", remoteDir)
	return remoteDir, nil
}

func (c *Client) upload(gw Gateway, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return submission.NewError(submission.ErrCodeManifestIO, "open %s: %v", localPath, err)
	}
	defer f.Close()
	return gw.Put(remotePath, f)
}

// ListAcks returns the acknowledgment file names currently present in a
// sequence's remote acks/ folder. An absent folder means no
// acknowledgments yet.
func (c *Client) ListAcks(ctx context.Context, seq *submission.Sequence) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, submission.NewError(submission.ErrCodeTransportNetwork, "poll cancelled: %v", err)
	}
	if seq.RemoteDir == "" {
		return nil, fmt.Errorf("sequence %d has no remote directory on record", seq.ID)
	}

	gw, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer gw.Close()

	return gw.List(path.Join(seq.RemoteDir, AckDirName))
}

// FetchAck downloads one acknowledgment file into the sequence's local
// acks/ folder and returns the local path. The remote copy is left in
// place; idempotency lives in the local record, never in a remote delete.
func (c *Client) FetchAck(ctx context.Context, seq *submission.Sequence, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", submission.NewError(submission.ErrCodeTransportNetwork, "fetch cancelled: %v", err)
	}

	gw, err := c.dial()
	if err != nil {
		return "", err
	}
	defer gw.Close()

	return fetchAck(gw, seq, filename)
}

// fetchAck downloads one acknowledgment over an already-open session.
func fetchAck(gw Gateway, seq *submission.Sequence, filename string) (string, error) {
	src, err := gw.Get(path.Join(seq.RemoteDir, AckDirName, filename))
	if err != nil {
		return "", err
	}
	defer src.Close()

	localDir := filepath.Join(seq.BaseDir, AckDirName)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "create acks dir: %v", err)
	}
	localPath := filepath.Join(localDir, filename)
	out, err := os.Create(localPath)
	if err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "write ack %s: %v", filename, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", submission.NewError(submission.ErrCodeTransportNetwork, "download ack %s: %v", filename, err)
	}
	if err := out.Close(); err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "write ack %s: %v", filename, err)
	}
	return localPath, nil
}
