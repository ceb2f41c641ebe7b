// Package transport pushes assembled sequences to the regulatory gateway
// and retrieves acknowledgment artifacts from it.
//
// The gateway protocol is file-drop over SFTP: the client creates one
// remote folder per sequence, uploads the archive, and uploads the
// manifest last. The manifest's arrival is the completion signal the
// remote side keys on, so upload order is part of the protocol.
package transport

import (
	"io"
)

// Gateway is the minimal remote filesystem surface the subsystem needs.
// SFTPGateway talks to a real gateway; DirGateway serves tests and local
// development against a directory.
type Gateway interface {
	// MkdirAll creates a remote directory and any missing parents.
	MkdirAll(dir string) error

	// Put uploads one file to the remote path, creating or truncating it.
	Put(remotePath string, r io.Reader) error

	// Get opens a remote file for reading.
	Get(remotePath string) (io.ReadCloser, error)

	// List returns the file names (not paths) inside a remote directory.
	// A missing directory returns an empty list, not an error: the ack
	// folder legitimately appears only once the gateway first writes to it.
	List(dir string) ([]string, error)

	Close() error
}

// Dialer opens a fresh Gateway connection. The client dials per
// operation; gateway sessions are not held across the long gaps between
// submissions and polls.
type Dialer func() (Gateway, error)
