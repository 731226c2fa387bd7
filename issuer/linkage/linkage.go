// Package linkage derives the extensions that tie an issued certificate
// back to its issuing authority: AKI, AIA and CRL distribution points.
package linkage

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"github.com/pkg/errors"
)

var (
	OIDAuthorityKeyID = asn1.ObjectIdentifier{2, 5, 29, 35}
	OIDAuthorityInfo  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	OIDCRLDistPoints  = asn1.ObjectIdentifier{2, 5, 29, 31}

	oidCAIssuers = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}
)

// IssuerContext read-only snapshot of the issuing certificate, taken once
// per issuance
type IssuerContext struct {
	RawSubject   []byte
	SubjectKeyID []byte
	SerialNumber *big.Int
}

func NewIssuerContext(cert *x509.Certificate) *IssuerContext {
	return &IssuerContext{
		RawSubject:   cert.RawSubject,
		SubjectKeyID: cert.SubjectKeyId,
		SerialNumber: cert.SerialNumber,
	}
}

// Builder builds the linkage extensions; the URLs are configuration and
// each is optional.
type Builder struct {
	Issuer       *IssuerContext
	CAIssuersURL string
	CRLURL       string
}

// Build returns the linkage extensions in AKI, AIA, CRLDP order; unset
// configuration omits the extension.
func (b *Builder) Build() ([]pkix.Extension, error) {
	exts := make([]pkix.Extension, 0, 3)

	aki, err := b.AuthorityKeyID()
	if err != nil {
		return nil, err
	}
	exts = append(exts, *aki)

	if aia, err := b.AuthorityInfoAccess(); err != nil {
		return nil, err
	} else if aia != nil {
		exts = append(exts, *aia)
	}

	if crldp, err := b.CRLDistributionPoints(); err != nil {
		return nil, err
	} else if crldp != nil {
		exts = append(exts, *crldp)
	}

	return exts, nil
}

// RFC 5280 4.2.1.1
type authorityKeyID struct {
	KeyID      []byte          `asn1:"optional,tag:0"`
	CertIssuer []asn1.RawValue `asn1:"optional,tag:1"`
	CertSerial *big.Int        `asn1:"optional,tag:2"`
}

// AuthorityKeyID exactly one AKI form: the issuer's SKI when it has one,
// the issuer name+serial fallback otherwise.
func (b *Builder) AuthorityKeyID() (*pkix.Extension, error) {
	var aki authorityKeyID

	if len(b.Issuer.SubjectKeyID) > 0 {
		aki.KeyID = b.Issuer.SubjectKeyID
	} else {
		// directoryName GeneralName, explicit [4]
		aki.CertIssuer = []asn1.RawValue{{
			Class:      asn1.ClassContextSpecific,
			Tag:        4,
			IsCompound: true,
			Bytes:      b.Issuer.RawSubject,
		}}
		aki.CertSerial = b.Issuer.SerialNumber
	}

	value, err := asn1.Marshal(aki)
	if err != nil {
		return nil, errors.Wrap(err, "fail to encode authority key id")
	}

	return &pkix.Extension{Id: OIDAuthorityKeyID, Value: value}, nil
}

type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

func (b *Builder) AuthorityInfoAccess() (*pkix.Extension, error) {
	if b.CAIssuersURL == "" {
		return nil, nil
	}

	value, err := asn1.Marshal([]accessDescription{{
		Method:   oidCAIssuers,
		Location: uriGeneralName(b.CAIssuersURL),
	}})
	if err != nil {
		return nil, errors.Wrap(err, "fail to encode authority info access")
	}

	return &pkix.Extension{Id: OIDAuthorityInfo, Value: value}, nil
}

type distributionPointName struct {
	FullName []asn1.RawValue `asn1:"optional,tag:0"`
}

type distributionPoint struct {
	Name distributionPointName `asn1:"optional,tag:0"`
}

func (b *Builder) CRLDistributionPoints() (*pkix.Extension, error) {
	if b.CRLURL == "" {
		return nil, nil
	}

	value, err := asn1.Marshal([]distributionPoint{{
		Name: distributionPointName{FullName: []asn1.RawValue{uriGeneralName(b.CRLURL)}},
	}})
	if err != nil {
		return nil, errors.Wrap(err, "fail to encode crl distribution points")
	}

	return &pkix.Extension{Id: OIDCRLDistPoints, Value: value}, nil
}

// uriGeneralName uniformResourceIdentifier GeneralName, implicit [6]
func uriGeneralName(url string) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 6, Bytes: []byte(url)}
}
