// Package ack polls the gateway for acknowledgment files and feeds them
// into the sequence lifecycle.
//
// The gateway drops small XML acknowledgment files into each sequence's
// remote acks/ folder; the stage is carried in the filename prefix
// (receipt_, processing_, centre_) and the outcome in the document body.
package ack

import (
	"encoding/xml"
	"os"
	"strings"

	"github.com/avenalabs/regsub/internal/submission"
)

// Document is one parsed acknowledgment body.
type Document struct {
	XMLName  xml.Name  `xml:"acknowledgment"`
	Stage    string    `xml:"stage,attr"`
	Status   string    `xml:"status,attr"`
	Messages []Message `xml:"message"`
}

// Message is one free-text note attached by the gateway.
type Message struct {
	Severity string `xml:"severity,attr"`
	Text     string `xml:",chardata"`
}

// StageFromFilename derives the acknowledgment stage from the remote
// filename prefix. The prefix is authoritative: the gateway names files
// before writing bodies, so a truncated body still lands in the right
// stage bucket.
func StageFromFilename(name string) (submission.AckStage, bool) {
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return "", false
	}
	stage := submission.AckStage(prefix)
	if _, ok := submission.StageOrder[stage]; !ok {
		return "", false
	}
	return stage, true
}

// Parse decodes an acknowledgment body.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, submission.NewError(submission.ErrCodeAckParse,
			"malformed acknowledgment: %v", err)
	}
	if doc.Status == "" {
		return nil, submission.NewError(submission.ErrCodeAckParse,
			"acknowledgment carries no status")
	}
	return &doc, nil
}

// ParseFile decodes an acknowledgment file on disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeAckParse,
			"read acknowledgment %s: %v", path, err)
	}
	return Parse(data)
}
