// Package signer defines the raw signing capability the issuance core
// delegates to. The device behind a KeyHandle performs only the bare
// private key operation; the caller is responsible for handing it a
// fully formatted message.
package signer

import (
	"context"

	"github.com/pkg/errors"
)

// Algorithm key algorithm of a signing slot
type Algorithm int

const (
	RSA Algorithm = iota + 1
	ECDSA
)

func (a Algorithm) String() string {
	switch a {
	case RSA:
		return "RSA"
	case ECDSA:
		return "ECDSA"
	default:
		return "unknown"
	}
}

// KeyHandle opaque reference to a private key held by the signer; carries
// no key material. Valid for the duration of a single issuance.
type KeyHandle struct {
	Algorithm   Algorithm `validate:"required"`
	KeySizeBits int       `validate:"required"`
	Slot        string    `validate:"required"`
}

// KeySizeBytes the width in bytes of the raw operation for this key
func (h KeyHandle) KeySizeBytes() int { return (h.KeySizeBits + 7) / 8 }

// Interface raw signing capability
//
// SignRaw signs an already formatted message with the key in the given
// slot and returns the raw signature bytes. The call may block for a
// human timescale: a physical touch confirmation or PIN prompt happens
// behind it. Cancellation via ctx is forwarded to the device layer, the
// core imposes no timeout of its own.
type Interface interface {
	SignRaw(ctx context.Context, key KeyHandle, formatted []byte) ([]byte, error)
}

var (
	ErrDeviceUnavailable = errors.New("signing device unavailable")
	ErrUserDeclined      = errors.New("signing declined by user")
	ErrDeviceError       = errors.New("signing device error")
	ErrUnknownSlot       = errors.New("unknown slot")
)
