package assembler

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"slotca/issuer/linkage"
	"slotca/issuer/policy"
	"slotca/sigfmt"
	"slotca/signer"
)

func selfSignCA(t *testing.T, mem *signer.Memory, scheme sigfmt.Scheme, algorithm signer.Algorithm, bits int) (*x509.Certificate, signer.KeyHandle) {
	handle, err := mem.Generate("9c", algorithm, bits)
	require.NoError(t, err)

	pub, err := mem.Public(handle)
	require.NoError(t, err)

	cert, err := New(mem).Issue(context.Background(), &Request{
		Subject:   pkix.Name{CommonName: "test root"},
		PublicKey: pub,
		Key:       handle,
		Scheme:    scheme,
		Hash:      "SHA256",
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().AddDate(10, 0, 0),
		IsCA:      true,
	}, nil)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(cert.Raw)
	require.NoError(t, err)

	return parsed, handle
}

func newCSR(t *testing.T, commonName string, exts ...pkix.Extension) *x509.CertificateRequest {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:         pkix.Name{CommonName: commonName},
		DNSNames:        []string{commonName},
		ExtraExtensions: exts,
	}, key)
	require.NoError(t, err)

	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)

	return csr
}

func keyUsageExt(t *testing.T, usage x509.KeyUsage) pkix.Extension {
	ext, err := keyUsageExtension(usage)
	require.NoError(t, err)
	return ext
}

func extKeyUsageExt(t *testing.T, oids ...asn1.ObjectIdentifier) pkix.Extension {
	ext, err := extKeyUsageExtension(oids)
	require.NoError(t, err)
	return ext
}

func TestIssueSelfSignedCA(t *testing.T) {
	mem := signer.NewMemory()
	ca, _ := selfSignCA(t, mem, sigfmt.ECDSA, signer.ECDSA, 256)

	require.True(t, ca.IsCA)
	require.True(t, ca.BasicConstraintsValid)
	require.Len(t, ca.SubjectKeyId, 20)
	require.Equal(t, ca.SubjectKeyId, ca.AuthorityKeyId)
	require.Equal(t, ca.RawSubject, ca.RawIssuer)
	require.NotZero(t, ca.KeyUsage&x509.KeyUsageCertSign)
	require.NotZero(t, ca.KeyUsage&x509.KeyUsageCRLSign)
	require.NoError(t, ca.CheckSignatureFrom(ca))
}

func TestIssue(t *testing.T) {
	type args struct {
		scheme    sigfmt.Scheme
		algorithm signer.Algorithm
		bits      int
		wantAlg   x509.SignatureAlgorithm
	}
	tests := [...]struct {
		name string
		args args
	}{
		{`rsa pkcs1`, args{sigfmt.RSAPKCS1, signer.RSA, 2048, x509.SHA256WithRSA}},
		{`rsa pss`, args{sigfmt.RSAPSS, signer.RSA, 2048, x509.SHA256WithRSAPSS}},
		{`ecdsa`, args{sigfmt.ECDSA, signer.ECDSA, 256, x509.ECDSAWithSHA256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := signer.NewMemory()
			ca, handle := selfSignCA(t, mem, tt.args.scheme, tt.args.algorithm, tt.args.bits)

			csr := newCSR(t, "leaf.example.com",
				keyUsageExt(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment),
				extKeyUsageExt(t, policy.OIDCodeSigning, policy.OIDServerAuth),
			)

			cert, err := New(mem).Issue(context.Background(), &Request{
				CSR:       csr,
				Key:       handle,
				Scheme:    tt.args.scheme,
				Hash:      "SHA256",
				NotBefore: time.Now(),
				NotAfter:  time.Now().AddDate(1, 0, 0),
			}, ca)
			require.NoError(t, err)
			require.NotEmpty(t, cert.Fingerprint)

			parsed, err := x509.ParseCertificate(cert.Raw)
			require.NoError(t, err)
			require.Equal(t, tt.args.wantAlg, parsed.SignatureAlgorithm)
			require.Equal(t, "leaf.example.com", parsed.Subject.CommonName)
			require.Equal(t, ca.RawSubject, parsed.RawIssuer)
			require.Equal(t, cert.SerialNumber, parsed.SerialNumber)
			require.False(t, parsed.IsCA)

			// policy filtered: encipherment dropped, serverAuth dropped
			require.Equal(t, x509.KeyUsageDigitalSignature, parsed.KeyUsage)
			require.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}, parsed.ExtKeyUsage)

			require.Equal(t, ca.SubjectKeyId, parsed.AuthorityKeyId)
			require.NoError(t, parsed.CheckSignatureFrom(ca))
		})
	}
}

func TestIssueBareCSR(t *testing.T) {
	mem := signer.NewMemory()
	ca, handle := selfSignCA(t, mem, sigfmt.ECDSA, signer.ECDSA, 256)

	cert, err := New(mem).Issue(context.Background(), &Request{
		CSR:       newCSR(t, "leaf.example.com"),
		Key:       handle,
		Scheme:    sigfmt.ECDSA,
		Hash:      "SHA256",
		NotBefore: time.Now(),
		NotAfter:  time.Now().AddDate(1, 0, 0),
	}, ca)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(cert.Raw)
	require.NoError(t, err)

	// nothing requested and no URLs configured: the AKI alone remains
	require.Zero(t, parsed.KeyUsage)
	require.Empty(t, parsed.ExtKeyUsage)
	require.Equal(t, ca.SubjectKeyId, parsed.AuthorityKeyId)
	require.Empty(t, parsed.IssuingCertificateURL)
	require.Empty(t, parsed.CRLDistributionPoints)
	require.NoError(t, parsed.CheckSignatureFrom(ca))
}

func TestIssueLinkageURLs(t *testing.T) {
	mem := signer.NewMemory()
	ca, handle := selfSignCA(t, mem, sigfmt.ECDSA, signer.ECDSA, 256)

	cert, err := New(mem).Issue(context.Background(), &Request{
		CSR:          newCSR(t, "leaf.example.com"),
		Key:          handle,
		Scheme:       sigfmt.ECDSA,
		Hash:         "SHA256",
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		CAIssuersURL: "http://ca.example.com/ca.crt",
		CRLURL:       "http://ca.example.com/ca.crl",
	}, ca)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(cert.Raw)
	require.NoError(t, err)
	require.Equal(t, []string{"http://ca.example.com/ca.crt"}, parsed.IssuingCertificateURL)
	require.Equal(t, []string{"http://ca.example.com/ca.crl"}, parsed.CRLDistributionPoints)
}

func TestIssueDistinctSerials(t *testing.T) {
	mem := signer.NewMemory()
	ca, handle := selfSignCA(t, mem, sigfmt.ECDSA, signer.ECDSA, 256)

	csr := newCSR(t, "leaf.example.com")
	req := func() *Request {
		return &Request{
			CSR:       csr,
			Key:       handle,
			Scheme:    sigfmt.ECDSA,
			Hash:      "SHA256",
			NotBefore: time.Now(),
			NotAfter:  time.Now().AddDate(1, 0, 0),
		}
	}

	cert1, err := New(mem).Issue(context.Background(), req(), ca)
	require.NoError(t, err)
	cert2, err := New(mem).Issue(context.Background(), req(), ca)
	require.NoError(t, err)

	require.NotEqual(t, cert1.SerialNumber, cert2.SerialNumber)
	require.NotEqual(t, cert1.Fingerprint, cert2.Fingerprint)
}

func TestIssueInvalidRequests(t *testing.T) {
	mem := signer.NewMemory()
	ca, handle := selfSignCA(t, mem, sigfmt.RSAPKCS1, signer.RSA, 2048)

	valid := func() *Request {
		return &Request{
			CSR:       newCSR(t, "leaf.example.com"),
			Key:       handle,
			Scheme:    sigfmt.RSAPKCS1,
			Hash:      "SHA256",
			NotBefore: time.Now(),
			NotAfter:  time.Now().AddDate(1, 0, 0),
		}
	}

	type args struct {
		tweak      func(req *Request)
		issuerCert *x509.Certificate
	}
	tests := [...]struct {
		name    string
		args    args
		wantErr error
	}{
		{`no key handle`, args{func(req *Request) { req.Key = signer.KeyHandle{} }, ca}, ErrInvalidRequest},
		{`empty validity window`, args{func(req *Request) { req.NotAfter = req.NotBefore }, ca}, ErrInvalidRequest},
		{`unknown digest`, args{func(req *Request) { req.Hash = "MD5" }, ca}, sigfmt.ErrUnsupportedDigest},
		{`scheme key mismatch`, args{func(req *Request) { req.Scheme = sigfmt.ECDSA }, ca}, sigfmt.ErrUnsupportedAlgorithm},
		{`no subject no csr`, args{func(req *Request) { req.CSR = nil }, ca}, ErrInvalidRequest},
		{`end entity needs issuer`, args{func(req *Request) {}, nil}, ErrInvalidRequest},
		{`tampered csr signature`, args{func(req *Request) { req.CSR.Signature[0] ^= 0xFF }, ca}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.args.tweak(req)

			_, err := New(mem).Issue(context.Background(), req, tt.args.issuerCert)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIssueAuthorityWithoutSKI(t *testing.T) {
	mem := signer.NewMemory()
	_, handle := selfSignCA(t, mem, sigfmt.ECDSA, signer.ECDSA, 256)

	rawSubject, err := asn1.Marshal(pkix.Name{CommonName: "legacy root"}.ToRDNSequence())
	require.NoError(t, err)

	issuerCert := &x509.Certificate{
		RawSubject:   rawSubject,
		SerialNumber: big.NewInt(0x77),
	}

	cert, err := New(mem).Issue(context.Background(), &Request{
		CSR:       newCSR(t, "leaf.example.com"),
		Key:       handle,
		Scheme:    sigfmt.ECDSA,
		Hash:      "SHA256",
		NotBefore: time.Now(),
		NotAfter:  time.Now().AddDate(1, 0, 0),
	}, issuerCert)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(cert.Raw)
	require.NoError(t, err)

	// name+serial AKI form carries no key id
	require.Empty(t, parsed.AuthorityKeyId)

	found := false
	for _, ext := range parsed.Extensions {
		if ext.Id.Equal(linkage.OIDAuthorityKeyID) {
			found = true
		}
	}
	require.True(t, found)
}

type decliningSigner struct{}

func (s *decliningSigner) SignRaw(ctx context.Context, key signer.KeyHandle, formatted []byte) ([]byte, error) {
	return nil, errors.Wrap(signer.ErrUserDeclined, "touch timeout")
}

func TestIssueUnalignedCurveRefused(t *testing.T) {
	mem := signer.NewMemory()

	// a slot may hold a P-521 key, but issuance must refuse it: padding
	// the digest to 66 bytes would make the signed integer differ from
	// the one verifiers recompute
	key, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)
	handle, err := mem.Put("9c", key)
	require.NoError(t, err)

	_, err = New(mem).Issue(context.Background(), &Request{
		Subject:   pkix.Name{CommonName: "test root"},
		PublicKey: key.Public(),
		Key:       handle,
		Scheme:    sigfmt.ECDSA,
		Hash:      "SHA512",
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().AddDate(10, 0, 0),
		IsCA:      true,
	}, nil)
	require.ErrorIs(t, err, sigfmt.ErrUnsupportedKeySize)
}

func TestIssueSignerDeclined(t *testing.T) {
	mem := signer.NewMemory()
	ca, handle := selfSignCA(t, mem, sigfmt.ECDSA, signer.ECDSA, 256)

	_, err := New(&decliningSigner{}).Issue(context.Background(), &Request{
		CSR:       newCSR(t, "leaf.example.com"),
		Key:       handle,
		Scheme:    sigfmt.ECDSA,
		Hash:      "SHA256",
		NotBefore: time.Now(),
		NotAfter:  time.Now().AddDate(1, 0, 0),
	}, ca)
	require.ErrorIs(t, err, signer.ErrUserDeclined)
}
