// Package assembler builds and signs certificates. It owns the issuance
// state machine: a draft accumulates subject, key, extensions and the
// encoded unsigned certificate, then the external signer provides the raw
// signature. A failed step aborts the draft; a partially signed
// certificate never leaves this package.
package assembler

import (
	"context"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"slotca/issuer/linkage"
	"slotca/issuer/policy"
	"slotca/pkg/helper"
	"slotca/pkg/helper/x509x"
	"slotca/sigfmt"
	"slotca/signer"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
)

// Request certificate create request
//
// CSR carries subject, public key and the requested extension set for
// CA signed issuance; for self-signed CA creation CSR is nil and
// Subject/PublicKey are set directly.
type Request struct {
	CSR       *x509.CertificateRequest
	Subject   pkix.Name
	PublicKey crypto.PublicKey

	Key    signer.KeyHandle `validate:"required"`
	Scheme sigfmt.Scheme    `validate:"required"`
	Hash   string           `validate:"required"`

	Policy *policy.Policy

	NotBefore time.Time `validate:"required"`
	NotAfter  time.Time `validate:"required"`

	IsCA bool

	CAIssuersURL string `validate:"omitempty,url"`
	CRLURL       string `validate:"omitempty,url"`
}

// Certificate issued certificate, immutable
type Certificate struct {
	Raw          []byte // DER encoded, signature included
	Fingerprint  string
	SerialNumber *big.Int
}

type Assembler struct {
	signer signer.Interface
}

func New(s signer.Interface) *Assembler {
	return &Assembler{signer: s}
}

type state int

const (
	stateDraft state = iota + 1
	stateExtensionsApplied
	stateTBSEncoded
	stateSigned
	stateFinalized
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateDraft:
		return "draft"
	case stateExtensionsApplied:
		return "extensions-applied"
	case stateTBSEncoded:
		return "tbs-encoded"
	case stateSigned:
		return "signed"
	case stateFinalized:
		return "finalized"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// draft mutable accumulator; lives for one issuance call
type draft struct {
	state state

	req       *Request
	formatter *sigfmt.Formatter
	sigAlg    pkix.AlgorithmIdentifier

	serial     *big.Int
	rawSubject []byte
	rawIssuer  []byte
	spkiDER    []byte
	issuerCtx  *linkage.IssuerContext

	extensions []pkix.Extension
	rawTBS     []byte
	signature  []byte
}

func (d *draft) transition(from, to state) error {
	if d.state != from {
		return errors.Errorf("invalid transition %s -> %s", d.state, to)
	}
	d.state = to
	return nil
}

func (d *draft) abort() {
	d.state = stateAborted
	d.rawTBS = nil
	d.signature = nil
	d.extensions = nil
}

// Issue create a signed certificate. issuerCert is the CA certificate
// for CA signed issuance, nil for self-signed CA creation. The signer
// call may block until the device operator confirms.
func (a *Assembler) Issue(ctx context.Context, req *Request, issuerCert *x509.Certificate) (*Certificate, error) {
	d, err := newDraft(req, issuerCert)
	if err != nil {
		return nil, err
	}

	cert, err := a.issue(ctx, d)
	if err != nil {
		d.abort()
		return nil, err
	}

	return cert, nil
}

func (a *Assembler) issue(ctx context.Context, d *draft) (*Certificate, error) {
	if err := d.applyExtensions(); err != nil {
		return nil, errors.Wrap(err, "fail to build extensions")
	}

	if err := d.encodeTBS(); err != nil {
		return nil, errors.Wrap(err, "fail to encode certificate")
	}

	if err := a.sign(ctx, d); err != nil {
		return nil, errors.Wrap(err, "fail to sign certificate")
	}

	return d.finalize()
}

// newDraft fix subject, public key, serial and validity; they do not
// change after this point.
func newDraft(req *Request, issuerCert *x509.Certificate) (*draft, error) {
	if err := helper.ValidateStruct(req); err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "%s", err)
	}

	if !req.NotBefore.Before(req.NotAfter) {
		return nil, errors.Wrap(ErrInvalidRequest, "empty validity window")
	}

	formatter, err := sigfmt.New(req.Scheme, req.Hash, req.Key.KeySizeBits)
	if err != nil {
		return nil, err
	}

	switch req.Scheme {
	case sigfmt.RSAPKCS1, sigfmt.RSAPSS:
		if req.Key.Algorithm != signer.RSA {
			return nil, errors.Wrapf(sigfmt.ErrUnsupportedAlgorithm, "%s scheme needs an RSA key", req.Scheme)
		}
	case sigfmt.ECDSA:
		if req.Key.Algorithm != signer.ECDSA {
			return nil, errors.Wrapf(sigfmt.ErrUnsupportedAlgorithm, "%s scheme needs an ECDSA key", req.Scheme)
		}
	}

	sigAlg, err := signatureAlgorithm(req.Scheme, formatter.Hash(), formatter.Hash().Size())
	if err != nil {
		return nil, err
	}

	d := &draft{
		state:     stateDraft,
		req:       req,
		formatter: formatter,
		sigAlg:    sigAlg,
	}

	if err := d.resolveSubject(); err != nil {
		return nil, err
	}

	if err := d.resolveIssuer(issuerCert); err != nil {
		return nil, err
	}

	if d.serial, err = x509x.RandomSerial(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *draft) resolveSubject() error {
	req := d.req

	pub := req.PublicKey
	if pub == nil && req.CSR != nil {
		pub = req.CSR.PublicKey
	}
	if pub == nil {
		return errors.Wrap(ErrInvalidRequest, "public key required")
	}

	spkiDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return errors.Wrapf(ErrInvalidRequest, "unsupported public key: %s", err)
	}
	d.spkiDER = spkiDER

	if req.CSR != nil {
		if err := req.CSR.CheckSignature(); err != nil {
			return errors.Wrapf(ErrInvalidRequest, "bad csr signature: %s", err)
		}
		if req.CSR.Subject.CommonName == "" {
			return errors.Wrap(ErrInvalidRequest, "subject common name required")
		}
		d.rawSubject = req.CSR.RawSubject
		return nil
	}

	if req.Subject.CommonName == "" {
		return errors.Wrap(ErrInvalidRequest, "subject common name required")
	}

	raw, err := asn1.Marshal(req.Subject.ToRDNSequence())
	if err != nil {
		return errors.Wrap(err, "fail to encode subject")
	}
	d.rawSubject = raw

	return nil
}

func (d *draft) resolveIssuer(issuerCert *x509.Certificate) error {
	if issuerCert != nil {
		d.rawIssuer = issuerCert.RawSubject
		d.issuerCtx = linkage.NewIssuerContext(issuerCert)
		return nil
	}

	// self-signed: issuer is the subject itself and the authority key
	// is our own, identified by the subject key id
	if !d.req.IsCA {
		return errors.Wrap(ErrInvalidRequest, "issuer certificate required for end entity issuance")
	}

	_, ski, err := subjectKeyIDExtension(d.spkiDER)
	if err != nil {
		return err
	}

	d.rawIssuer = d.rawSubject
	d.issuerCtx = &linkage.IssuerContext{
		RawSubject:   d.rawSubject,
		SubjectKeyID: ski,
	}
	return nil
}

// applyExtensions merge the policy filtered request with the authority
// linkage, in canonical order: KeyUsage, EKU, AKI, AIA, CRLDP, then CA
// extensions. The order fixes the encoded bytes, nothing more.
func (d *draft) applyExtensions() error {
	if err := d.transition(stateDraft, stateExtensionsApplied); err != nil {
		return err
	}

	req := d.req

	pol := req.Policy
	if pol == nil {
		pol = policy.Default()
	}

	var requested []pkix.Extension
	if req.CSR != nil {
		requested = req.CSR.Extensions
	}
	filtered := pol.Filter(requested)

	exts := make([]pkix.Extension, 0, 7)

	usage := filtered.KeyUsage
	hasUsage := filtered.HasKeyUsage
	if req.IsCA {
		// CA certificates always declare their signing role
		usage |= x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
		hasUsage = true
	}
	if hasUsage && usage != 0 {
		ext, err := keyUsageExtension(usage)
		if err != nil {
			return err
		}
		exts = append(exts, ext)
	}

	if len(filtered.EKU) > 0 {
		ext, err := extKeyUsageExtension(filtered.EKU)
		if err != nil {
			return err
		}
		exts = append(exts, ext)
	}

	builder := &linkage.Builder{
		Issuer:       d.issuerCtx,
		CAIssuersURL: req.CAIssuersURL,
		CRLURL:       req.CRLURL,
	}
	linked, err := builder.Build()
	if err != nil {
		return err
	}
	exts = append(exts, linked...)

	if req.IsCA {
		bc, err := basicConstraintsExtension()
		if err != nil {
			return err
		}

		ski, _, err := subjectKeyIDExtension(d.spkiDER)
		if err != nil {
			return err
		}

		exts = append(exts, bc, ski)
	}

	d.extensions = exts
	return nil
}

// encodeTBS serialize the unsigned certificate; these exact bytes are
// what gets digested.
func (d *draft) encodeTBS() error {
	if err := d.transition(stateExtensionsApplied, stateTBSEncoded); err != nil {
		return err
	}

	rawTBS, err := asn1.Marshal(tbsCertificate{
		Version:            x509v3,
		SerialNumber:       d.serial,
		SignatureAlgorithm: d.sigAlg,
		Issuer:             asn1.RawValue{FullBytes: d.rawIssuer},
		Validity:           validity{d.req.NotBefore.UTC(), d.req.NotAfter.UTC()},
		Subject:            asn1.RawValue{FullBytes: d.rawSubject},
		PublicKey:          asn1.RawValue{FullBytes: d.spkiDER},
		Extensions:         d.extensions,
	})
	if err != nil {
		return errors.Wrap(err, "fail to encode tbs certificate")
	}

	d.rawTBS = rawTBS
	return nil
}

// sign format the digest for the slot's raw operation and hand it to the
// external signer; the returned bytes are used verbatim.
func (a *Assembler) sign(ctx context.Context, d *draft) error {
	if err := d.transition(stateTBSEncoded, stateSigned); err != nil {
		return err
	}

	formatted, err := d.formatter.Format(d.rawTBS)
	if err != nil {
		return err
	}

	log.Debugf("sign(): slot=%s, serial=%s", d.req.Key.Slot, d.serial)

	signature, err := a.signer.SignRaw(ctx, d.req.Key, formatted)
	if err != nil {
		return err
	}

	d.signature = signature
	return nil
}

func (d *draft) finalize() (*Certificate, error) {
	if err := d.transition(stateSigned, stateFinalized); err != nil {
		return nil, err
	}

	derBytes, err := asn1.Marshal(certificate{
		TBS:                asn1.RawValue{FullBytes: d.rawTBS},
		SignatureAlgorithm: d.sigAlg,
		SignatureValue:     asn1.BitString{Bytes: d.signature, BitLength: len(d.signature) * 8},
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to encode certificate")
	}

	return &Certificate{
		Raw:          derBytes,
		Fingerprint:  x509x.Fingerprint(derBytes),
		SerialNumber: d.serial,
	}, nil
}
