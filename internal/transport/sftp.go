package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/avenalabs/regsub/internal/submission"
)

// SFTPConfig holds gateway connection settings.
type SFTPConfig struct {
	Host string
	Port int
	User string

	// Password and PrivateKeyPath are alternative credentials; when both
	// are set the key is offered first.
	Password       string
	PrivateKeyPath string

	// KnownHostsKey is the gateway's expected public host key in
	// authorized_keys format. Empty skips host verification (local
	// development only).
	KnownHostsKey string

	// Timeout bounds the TCP dial. Zero means 30 seconds.
	Timeout time.Duration
}

// SFTPGateway is the production Gateway over an SSH file transfer session.
type SFTPGateway struct {
	conn *ssh.Client
	sftp *sftp.Client
}

// DialSFTP opens an authenticated gateway session. Authentication
// rejections and network failures are reported under distinct error codes
// so callers can tell a credential problem from an outage.
func DialSFTP(cfg SFTPConfig) (*SFTPGateway, error) {
	var methods []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, submission.NewError(submission.ErrCodeTransportAuth,
				"read private key %s: %v", cfg.PrivateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, submission.NewError(submission.ErrCodeTransportAuth,
				"parse private key %s: %v", cfg.PrivateKeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, submission.NewError(submission.ErrCodeTransportAuth,
			"no credentials configured for gateway %s", cfg.Host)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.KnownHostsKey))
		if err != nil {
			return nil, submission.NewError(submission.ErrCodeTransportAuth,
				"parse gateway host key: %v", err)
		}
		hostKeyCallback = ssh.FixedHostKey(key)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, submission.NewError(submission.ErrCodeTransportNetwork,
			"open sftp session on %s: %v", addr, err)
	}
	return &SFTPGateway{conn: conn, sftp: client}, nil
}

// classifyDialError separates credential rejections from connectivity
// failures. The ssh package reports a failed handshake with every offered
// method as "unable to authenticate"; anything else (refused connection,
// timeout, DNS) is a network problem.
func classifyDialError(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return submission.NewError(submission.ErrCodeTransportNetwork,
			"dial gateway %s: %v", addr, err)
	}
	if strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "handshake failed: ssh: ") {
		return submission.NewError(submission.ErrCodeTransportAuth,
			"authenticate to gateway %s: %v", addr, err)
	}
	return submission.NewError(submission.ErrCodeTransportNetwork,
		"dial gateway %s: %v", addr, err)
}

func (g *SFTPGateway) MkdirAll(dir string) error {
	if err := g.sftp.MkdirAll(dir); err != nil {
		return submission.NewError(submission.ErrCodeTransportNetwork,
			"mkdir %s: %v", dir, err)
	}
	return nil
}

func (g *SFTPGateway) Put(remotePath string, r io.Reader) error {
	f, err := g.sftp.Create(remotePath)
	if err != nil {
		return submission.NewError(submission.ErrCodeTransportNetwork,
			"create %s: %v", remotePath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return submission.NewError(submission.ErrCodeTransportNetwork,
			"upload %s: %v", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return submission.NewError(submission.ErrCodeTransportNetwork,
			"finalize %s: %v", remotePath, err)
	}
	return nil
}

func (g *SFTPGateway) Get(remotePath string) (io.ReadCloser, error) {
	f, err := g.sftp.Open(remotePath)
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeTransportNetwork,
			"open %s: %v", remotePath, err)
	}
	return f, nil
}

func (g *SFTPGateway) List(dir string) ([]string, error) {
	infos, err := g.sftp.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, submission.NewError(submission.ErrCodeTransportNetwork,
			"list %s: %v", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		names = append(names, path.Base(fi.Name()))
	}
	return names, nil
}

func (g *SFTPGateway) Close() error {
	sftpErr := g.sftp.Close()
	connErr := g.conn.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return connErr
}
