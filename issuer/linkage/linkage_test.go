package linkage

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testIssuerContext(t *testing.T, ski []byte) *IssuerContext {
	rawSubject, err := asn1.Marshal(pkix.Name{CommonName: "trust anchor"}.ToRDNSequence())
	require.NoError(t, err)

	return &IssuerContext{
		RawSubject:   rawSubject,
		SubjectKeyID: ski,
		SerialNumber: big.NewInt(0x1234),
	}
}

func TestAuthorityKeyIDForms(t *testing.T) {
	ski := []byte{0x01, 0x02, 0x03, 0x04}

	t.Run("ski form", func(t *testing.T) {
		b := &Builder{Issuer: testIssuerContext(t, ski)}

		ext, err := b.AuthorityKeyID()
		require.NoError(t, err)

		var aki authorityKeyID
		rest, err := asn1.Unmarshal(ext.Value, &aki)
		require.NoError(t, err)
		require.Empty(t, rest)

		require.Equal(t, ski, aki.KeyID)
		require.Empty(t, aki.CertIssuer)
		require.Nil(t, aki.CertSerial)
	})

	t.Run("issuer name and serial form", func(t *testing.T) {
		issuer := testIssuerContext(t, nil)
		b := &Builder{Issuer: issuer}

		ext, err := b.AuthorityKeyID()
		require.NoError(t, err)

		var aki authorityKeyID
		_, err = asn1.Unmarshal(ext.Value, &aki)
		require.NoError(t, err)

		require.Empty(t, aki.KeyID)
		require.Len(t, aki.CertIssuer, 1)
		require.Equal(t, issuer.RawSubject, aki.CertIssuer[0].Bytes)
		require.Equal(t, issuer.SerialNumber, aki.CertSerial)
	})
}

func TestBuildOptionalExtensions(t *testing.T) {
	type args struct {
		caIssuersURL string
		crlURL       string
	}
	tests := [...]struct {
		name    string
		args    args
		wantIDs []asn1.ObjectIdentifier
	}{
		{`aki only`, args{}, []asn1.ObjectIdentifier{OIDAuthorityKeyID}},
		{`with aia`, args{caIssuersURL: "http://ca.example.com/ca.crt"}, []asn1.ObjectIdentifier{OIDAuthorityKeyID, OIDAuthorityInfo}},
		{`with crl`, args{crlURL: "http://ca.example.com/ca.crl"}, []asn1.ObjectIdentifier{OIDAuthorityKeyID, OIDCRLDistPoints}},
		{`all`, args{caIssuersURL: "http://ca.example.com/ca.crt", crlURL: "http://ca.example.com/ca.crl"},
			[]asn1.ObjectIdentifier{OIDAuthorityKeyID, OIDAuthorityInfo, OIDCRLDistPoints}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Builder{
				Issuer:       testIssuerContext(t, []byte{0xAA}),
				CAIssuersURL: tt.args.caIssuersURL,
				CRLURL:       tt.args.crlURL,
			}

			exts, err := b.Build()
			require.NoError(t, err)
			require.Len(t, exts, len(tt.wantIDs))
			for i, id := range tt.wantIDs {
				require.True(t, exts[i].Id.Equal(id), "extension %d: got %s, want %s", i, exts[i].Id, id)
			}
		})
	}
}

// the encodings must round-trip through the standard library certificate
// parser
func TestBuildParsesWithStdlib(t *testing.T) {
	issuer := testIssuerContext(t, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	b := &Builder{
		Issuer:       issuer,
		CAIssuersURL: "http://ca.example.com/ca.crt",
		CRLURL:       "http://ca.example.com/ca.crl",
	}

	exts, err := b.Build()
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:    big.NewInt(1),
		Subject:         pkix.Name{CommonName: "leaf"},
		ExtraExtensions: exts,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	require.Equal(t, issuer.SubjectKeyID, cert.AuthorityKeyId)
	require.Equal(t, []string{"http://ca.example.com/ca.crt"}, cert.IssuingCertificateURL)
	require.Equal(t, []string{"http://ca.example.com/ca.crl"}, cert.CRLDistributionPoints)
}
