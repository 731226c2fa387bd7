// Package sigfmt formats to-be-signed byte streams into the exact
// digest/padding layout a raw private key operation expects. The signer
// behind the slot performs only the bare modular or curve operation, so
// everything up to that point happens here.
package sigfmt

import (
	"crypto"
	"crypto/rand"
	"io"
	"strings"

	"github.com/pkg/errors"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// Scheme closed set of supported signature paddings
type Scheme int

const (
	RSAPKCS1 Scheme = iota + 1 // PKCS#1 v1.5 signature envelope
	RSAPSS                     // RSASSA-PSS, salted
	ECDSA                      // fixed width digest, no envelope
)

func (s Scheme) String() string {
	switch s {
	case RSAPKCS1:
		return "rsa-pkcs1"
	case RSAPSS:
		return "rsa-pss"
	case ECDSA:
		return "ecdsa"
	default:
		return "unknown"
	}
}

func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "rsa-pkcs1", "pkcs1", "pkcs1v15":
		return RSAPKCS1, nil
	case "rsa-pss", "pss":
		return RSAPSS, nil
	case "ecdsa":
		return ECDSA, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedAlgorithm, "scheme %q", s)
	}
}

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnsupportedDigest    = errors.New("unsupported digest")
	ErrUnsupportedKeySize   = errors.New("unsupported key size")
)

var hashByName = map[string]crypto.Hash{
	"SHA1":   crypto.SHA1,
	"SHA256": crypto.SHA256,
	"SHA384": crypto.SHA384,
	"SHA512": crypto.SHA512,
}

// ParseHash resolve hash algorithm by name; never substitutes a default
func ParseHash(name string) (crypto.Hash, error) {
	h, ok := hashByName[strings.ToUpper(name)]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedDigest, "digest %q", name)
	}
	return h, nil
}

var randReader io.Reader = rand.Reader

// Formatter prepares messages for one key: a scheme, a digest and the
// key width are fixed at construction.
type Formatter struct {
	scheme  Scheme
	hash    crypto.Hash
	keyBits int
	saltLen int // PSS only
}

type Option func(*Formatter)

// WithSaltLength override the PSS salt length; defaults to the digest size
func WithSaltLength(n int) Option { return func(f *Formatter) { f.saltLen = n } }

func New(scheme Scheme, hashName string, keySizeBits int, opts ...Option) (*Formatter, error) {
	hash, err := ParseHash(hashName)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case RSAPKCS1, RSAPSS, ECDSA:
	default:
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "scheme %d", scheme)
	}

	f := &Formatter{
		scheme:  scheme,
		hash:    hash,
		keyBits: keySizeBits,
		saltLen: hash.Size(),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Formatter) Scheme() Scheme    { return f.scheme }
func (f *Formatter) Hash() crypto.Hash { return f.hash }

func (f *Formatter) keyBytes() int { return (f.keyBits + 7) / 8 }

func (f *Formatter) digest(message []byte) []byte {
	h := f.hash.New()
	h.Write(message)
	return h.Sum(nil)
}

// Format produce the exact byte sequence to hand to the raw signer for
// the given to-be-signed stream.
func (f *Formatter) Format(message []byte) ([]byte, error) {
	switch f.scheme {
	case RSAPKCS1:
		return f.formatPKCS1(message)
	case RSAPSS:
		return f.formatPSS(message)
	case ECDSA:
		return f.formatECDSA(message)
	default:
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "scheme %d", f.scheme)
	}
}
