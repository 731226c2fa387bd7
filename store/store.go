// Package store keeps the audit trail of issued certificates.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrMultipleRecord = errors.New("unexpected multiple records")
)

// Record one issued certificate
type Record struct {
	ID          string
	Serial      string
	CommonName  string
	Fingerprint string
	Slot        string
	DNSNames    []string
	Cert        []byte // certificate as PEM
	NotBefore   time.Time
	NotAfter    time.Time
	Created     time.Time
}

type RecordListOpt struct {
	ID         string
	Serial     string
	CommonName string
}

type Interface interface {
	CreateRecord(ctx context.Context, record *Record) (*Record, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListRecord(ctx context.Context, opts RecordListOpt) ([]*Record, error)
}
