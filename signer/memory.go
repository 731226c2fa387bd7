package signer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"sync"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"
)

// Memory software signer holding keys in process memory. It exposes the
// same raw operations a hardware slot does, so it doubles as the test
// double for the issuance core and as a software-only signing backend.
type Memory struct {
	mu   sync.Mutex
	keys map[string]crypto.PrivateKey
}

var _ Interface = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]crypto.PrivateKey)}
}

// Generate create new key in slot and returns its handle
func (m *Memory) Generate(slot string, algorithm Algorithm, bits int) (KeyHandle, error) {
	var key crypto.PrivateKey
	var err error

	switch algorithm {
	case RSA:
		key, err = rsa.GenerateKey(rand.Reader, bits)
	case ECDSA:
		var curve elliptic.Curve
		switch bits {
		case 256:
			curve = elliptic.P256()
		case 384:
			curve = elliptic.P384()
		default:
			return KeyHandle{}, errors.Errorf("unsupported curve size: %d", bits)
		}
		key, err = ecdsa.GenerateKey(curve, rand.Reader)
	default:
		return KeyHandle{}, errors.Errorf("unsupported algorithm: %s", algorithm)
	}

	if err != nil {
		return KeyHandle{}, errors.Wrap(err, "fail to generate key")
	}

	return m.Put(slot, key)
}

// Put store an existing private key into slot
func (m *Memory) Put(slot string, key crypto.PrivateKey) (KeyHandle, error) {
	handle := KeyHandle{Slot: slot}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		handle.Algorithm = RSA
		handle.KeySizeBits = k.N.BitLen()
	case *ecdsa.PrivateKey:
		handle.Algorithm = ECDSA
		handle.KeySizeBits = k.Curve.Params().BitSize
	default:
		return KeyHandle{}, errors.Errorf("unsupported private key: %T", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[slot] = key

	return handle, nil
}

// Public returns the public key of the slot
func (m *Memory) Public(key KeyHandle) (crypto.PublicKey, error) {
	priv, err := m.get(key)
	if err != nil {
		return nil, err
	}

	return priv.(crypto.Signer).Public(), nil
}

func (m *Memory) get(key KeyHandle) (crypto.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	priv, ok := m.keys[key.Slot]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSlot, "slot %s", key.Slot)
	}
	return priv, nil
}

// SignRaw performs the bare private key operation over formatted, which
// must already carry the digest/padding layout the key expects.
func (m *Memory) SignRaw(ctx context.Context, key KeyHandle, formatted []byte) ([]byte, error) {
	log.Debugf("SignRaw(): slot=%s, algorithm=%s, %d bytes", key.Slot, key.Algorithm, len(formatted))

	priv, err := m.get(key)
	if err != nil {
		return nil, err
	}

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		if key.Algorithm != RSA {
			return nil, errors.Wrapf(ErrDeviceError, "slot %s holds RSA key", key.Slot)
		}
		return rsaRawSign(k, formatted)

	case *ecdsa.PrivateKey:
		if key.Algorithm != ECDSA {
			return nil, errors.Wrapf(ErrDeviceError, "slot %s holds ECDSA key", key.Slot)
		}
		if len(formatted) != key.KeySizeBytes() {
			return nil, errors.Wrapf(ErrDeviceError, "message must be %d bytes, got %d", key.KeySizeBytes(), len(formatted))
		}
		return ecdsa.SignASN1(rand.Reader, k, formatted)

	default:
		return nil, errors.Wrapf(ErrDeviceError, "unsupported key: %T", priv)
	}
}

// rsaRawSign computes m^d mod n over the padded message; the modular
// exponentiation a hardware token performs when handed a formatted block.
func rsaRawSign(key *rsa.PrivateKey, formatted []byte) ([]byte, error) {
	k := (key.N.BitLen() + 7) / 8
	if len(formatted) != k {
		return nil, errors.Wrapf(ErrDeviceError, "message must be %d bytes, got %d", k, len(formatted))
	}

	m := new(big.Int).SetBytes(formatted)
	if m.Cmp(key.N) >= 0 {
		return nil, errors.Wrap(ErrDeviceError, "message representative out of range")
	}

	sig := new(big.Int).Exp(m, key.D, key.N)

	out := make([]byte, k)
	sig.FillBytes(out)
	return out, nil
}
