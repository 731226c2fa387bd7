// Package policy narrows a requester supplied extension set down to an
// administrator approved one. Filtering is silent: anything outside the
// policy is dropped, never rejected.
package policy

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
)

var (
	OIDKeyUsage    = asn1.ObjectIdentifier{2, 5, 29, 15}
	OIDExtKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
)

// Extended key usages the default policy knows about
var (
	OIDCodeSigning      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 3}
	OIDEmailProtection  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 4}
	OIDDocumentSigning  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 36}
	OIDServerAuth       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	OIDClientAuth       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
	OIDTimeStamping     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 8}
	OIDOCSPSigning      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 9}
	OIDAnyExtendedUsage = asn1.ObjectIdentifier{2, 5, 29, 37, 0}
)

// Policy allow rules applied to a requester's extensions
type Policy struct {
	KeyUsageMask x509.KeyUsage
	AllowedEKU   []asn1.ObjectIdentifier
}

// Default the stock policy: encipherment/signature/agreement usage plus
// signing oriented extended usages.
func Default() *Policy {
	return &Policy{
		KeyUsageMask: x509.KeyUsageDataEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageKeyAgreement,
		AllowedEKU: []asn1.ObjectIdentifier{
			OIDCodeSigning,
			OIDDocumentSigning,
			OIDEmailProtection,
		},
	}
}

// Filtered policy constrained extension request. A zero KeyUsage with
// HasKeyUsage unset means the requester asked for nothing; empty EKU and
// filtered-to-empty EKU are indistinguishable, both omit the extension.
type Filtered struct {
	KeyUsage    x509.KeyUsage
	HasKeyUsage bool
	EKU         []asn1.ObjectIdentifier
}

// Filter apply the policy to the requested extension list. Malformed or
// absent extensions count as "no constraint requested"; Filter never fails.
func (p *Policy) Filter(requested []pkix.Extension) *Filtered {
	out := &Filtered{}

	for _, ext := range requested {
		switch {
		case ext.Id.Equal(OIDKeyUsage):
			usage, err := parseKeyUsage(ext.Value)
			if err != nil {
				continue
			}
			out.KeyUsage = usage & p.KeyUsageMask
			out.HasKeyUsage = true

		case ext.Id.Equal(OIDExtKeyUsage):
			ekus, err := parseExtKeyUsage(ext.Value)
			if err != nil {
				continue
			}
			out.EKU = fx.Filter(ekus, func(oid asn1.ObjectIdentifier) bool { return p.allows(oid) })
		}
	}

	return out
}

func (p *Policy) allows(oid asn1.ObjectIdentifier) bool {
	for _, allowed := range p.AllowedEKU {
		if allowed.Equal(oid) {
			return true
		}
	}
	return false
}

func parseKeyUsage(value []byte) (x509.KeyUsage, error) {
	var bits asn1.BitString
	if rest, err := asn1.Unmarshal(value, &bits); err != nil {
		return 0, errors.Wrap(err, "fail to parse key usage")
	} else if len(rest) != 0 {
		return 0, errors.New("trailing data in key usage")
	}

	var usage x509.KeyUsage
	for i := 0; i < 9; i++ {
		if bits.At(i) != 0 {
			usage |= x509.KeyUsage(1) << uint(i)
		}
	}
	return usage, nil
}

func parseExtKeyUsage(value []byte) ([]asn1.ObjectIdentifier, error) {
	var oids []asn1.ObjectIdentifier
	if rest, err := asn1.Unmarshal(value, &oids); err != nil {
		return nil, errors.Wrap(err, "fail to parse extended key usage")
	} else if len(rest) != 0 {
		return nil, errors.New("trailing data in extended key usage")
	}
	return oids, nil
}
