package assembler

import (
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"slotca/issuer/policy"
	"slotca/sigfmt"
)

// RFC 5280 4.1; the unsigned certificate and its signed envelope
type tbsCertificate struct {
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKey          asn1.RawValue
	Extensions         []pkix.Extension `asn1:"omitempty,optional,explicit,tag:3"`
}

type certificate struct {
	TBS                asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

type validity struct {
	NotBefore, NotAfter time.Time
}

const x509v3 = 2

var (
	oidExtensionSubjectKeyID     = asn1.ObjectIdentifier{2, 5, 29, 14}
	oidExtensionBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
)

var (
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidRSAPSS          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidMGF1            = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}

	oidDigestSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidDigestSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidDigestSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

var (
	pkcs1OIDs = map[crypto.Hash]asn1.ObjectIdentifier{
		crypto.SHA256: oidSHA256WithRSA,
		crypto.SHA384: oidSHA384WithRSA,
		crypto.SHA512: oidSHA512WithRSA,
	}
	ecdsaOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
		crypto.SHA256: oidECDSAWithSHA256,
		crypto.SHA384: oidECDSAWithSHA384,
		crypto.SHA512: oidECDSAWithSHA512,
	}
	digestAlgOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
		crypto.SHA256: oidDigestSHA256,
		crypto.SHA384: oidDigestSHA384,
		crypto.SHA512: oidDigestSHA512,
	}
)

// RFC 4055 3.1
type pssParameters struct {
	Hash         pkix.AlgorithmIdentifier `asn1:"explicit,tag:0"`
	MGF          pkix.AlgorithmIdentifier `asn1:"explicit,tag:1"`
	SaltLength   int                      `asn1:"explicit,tag:2"`
	TrailerField int                      `asn1:"optional,explicit,tag:3,default:1"`
}

// signatureAlgorithm the AlgorithmIdentifier that declares scheme and
// digest in the certificate
func signatureAlgorithm(scheme sigfmt.Scheme, hash crypto.Hash, saltLen int) (pkix.AlgorithmIdentifier, error) {
	switch scheme {
	case sigfmt.RSAPKCS1:
		oid, ok := pkcs1OIDs[hash]
		if !ok {
			return pkix.AlgorithmIdentifier{}, errors.Wrapf(sigfmt.ErrUnsupportedDigest, "no rsa signature algorithm for %s", hash)
		}
		return pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue}, nil

	case sigfmt.ECDSA:
		oid, ok := ecdsaOIDs[hash]
		if !ok {
			return pkix.AlgorithmIdentifier{}, errors.Wrapf(sigfmt.ErrUnsupportedDigest, "no ecdsa signature algorithm for %s", hash)
		}
		return pkix.AlgorithmIdentifier{Algorithm: oid}, nil

	case sigfmt.RSAPSS:
		return pssAlgorithm(hash, saltLen)

	default:
		return pkix.AlgorithmIdentifier{}, errors.Wrapf(sigfmt.ErrUnsupportedAlgorithm, "scheme %d", scheme)
	}
}

func pssAlgorithm(hash crypto.Hash, saltLen int) (pkix.AlgorithmIdentifier, error) {
	digestOID, ok := digestAlgOIDs[hash]
	if !ok {
		return pkix.AlgorithmIdentifier{}, errors.Wrapf(sigfmt.ErrUnsupportedDigest, "no pss parameters for %s", hash)
	}

	hashAlg := pkix.AlgorithmIdentifier{Algorithm: digestOID, Parameters: asn1.NullRawValue}
	hashAlgDER, err := asn1.Marshal(hashAlg)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, errors.Wrap(err, "fail to encode pss hash algorithm")
	}

	params, err := asn1.Marshal(pssParameters{
		Hash:         hashAlg,
		MGF:          pkix.AlgorithmIdentifier{Algorithm: oidMGF1, Parameters: asn1.RawValue{FullBytes: hashAlgDER}},
		SaltLength:   saltLen,
		TrailerField: 1,
	})
	if err != nil {
		return pkix.AlgorithmIdentifier{}, errors.Wrap(err, "fail to encode pss parameters")
	}

	return pkix.AlgorithmIdentifier{Algorithm: oidRSAPSS, Parameters: asn1.RawValue{FullBytes: params}}, nil
}

func reverseBitsInAByte(in byte) byte {
	b1 := in>>4 | in<<4
	b2 := b1>>2&0x33 | b1<<2&0xCC
	return b2>>1&0x55 | b2<<1&0xAA
}

// asn1BitLength bit string length with trailing zero bits stripped
func asn1BitLength(bitString []byte) int {
	bitLen := len(bitString) * 8

	for i := range bitString {
		b := bitString[len(bitString)-i-1]

		for bit := uint(0); bit < 8; bit++ {
			if (b>>bit)&1 == 1 {
				return bitLen
			}
			bitLen--
		}
	}

	return 0
}

func keyUsageExtension(usage x509.KeyUsage) (pkix.Extension, error) {
	var a [2]byte
	a[0] = reverseBitsInAByte(byte(usage))
	a[1] = reverseBitsInAByte(byte(usage >> 8))

	l := 1
	if a[1] != 0 {
		l = 2
	}

	bits := a[:l]
	value, err := asn1.Marshal(asn1.BitString{Bytes: bits, BitLength: asn1BitLength(bits)})
	if err != nil {
		return pkix.Extension{}, errors.Wrap(err, "fail to encode key usage")
	}

	return pkix.Extension{Id: policy.OIDKeyUsage, Critical: true, Value: value}, nil
}

func extKeyUsageExtension(oids []asn1.ObjectIdentifier) (pkix.Extension, error) {
	value, err := asn1.Marshal(oids)
	if err != nil {
		return pkix.Extension{}, errors.Wrap(err, "fail to encode extended key usage")
	}

	return pkix.Extension{Id: policy.OIDExtKeyUsage, Value: value}, nil
}

type basicConstraints struct {
	IsCA bool `asn1:"optional"`
}

func basicConstraintsExtension() (pkix.Extension, error) {
	value, err := asn1.Marshal(basicConstraints{IsCA: true})
	if err != nil {
		return pkix.Extension{}, errors.Wrap(err, "fail to encode basic constraints")
	}

	return pkix.Extension{Id: oidExtensionBasicConstraints, Critical: true, Value: value}, nil
}

// subjectKeyIDExtension RFC 5280 4.2.1.2 method 1: SHA-1 over the
// subjectPublicKey bits
func subjectKeyIDExtension(spkiDER []byte) (pkix.Extension, []byte, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spkiDER, &spki); err != nil {
		return pkix.Extension{}, nil, errors.Wrap(err, "fail to parse public key info")
	}

	sum := sha1.Sum(spki.PublicKey.Bytes)

	value, err := asn1.Marshal(sum[:])
	if err != nil {
		return pkix.Extension{}, nil, errors.Wrap(err, "fail to encode subject key id")
	}

	return pkix.Extension{Id: oidExtensionSubjectKeyID, Value: value}, sum[:], nil
}
