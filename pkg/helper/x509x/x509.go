package x509x

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"

	"slotca/pkg/helper"
)

const (
	CertificatePEMBlockType     = "CERTIFICATE"
	CsrPEMBlockType             = "CERTIFICATE REQUEST"
	RsaPrivateKeyPEMBlockType   = "RSA PRIVATE KEY"
	EcdsaPrivateKeyPEMBlockType = "EC PRIVATE KEY"
	Pkcs8PrivateKeyPEMBlockType = "PRIVATE KEY"

	pemPrefix = "-----BEGIN "
)

var (
	pemPrefixCertificate     = []byte(pemPrefix + CertificatePEMBlockType)
	pemPrefixCSR             = []byte(pemPrefix + CsrPEMBlockType)
	pemPrefixRsaPrivateKey   = []byte(pemPrefix + RsaPrivateKeyPEMBlockType)
	pemPrefixEcdsaPrivateKey = []byte(pemPrefix + EcdsaPrivateKeyPEMBlockType)
	pemPrefixPkcs8PrivateKey = []byte(pemPrefix + Pkcs8PrivateKeyPEMBlockType)
)

var randReader = rand.Reader

// ParseCertificate parse x509 certificate PEM block or DER bytes
func ParseCertificate(certBytes []byte) (*x509.Certificate, error) {
	if bytes.HasPrefix(certBytes, pemPrefixCertificate) {
		p, _ := pem.Decode(certBytes)
		if p == nil {
			return nil, errors.New("invalid PEM")
		}

		certBytes = p.Bytes
	}

	return x509.ParseCertificate(certBytes)
}

func ParseCertificateChain(derBytes []byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0)
	for {
		p, rest := pem.Decode(derBytes)
		if p == nil {
			return certs, nil
		}

		cert, err := ParseCertificate(p.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "certificate parse failed")
		}
		certs = append(certs, cert)
		derBytes = rest
	}
}

// ParseCSR parse x509 CSR PEM block or DER bytes
func ParseCSR(csrBytes []byte) (*x509.CertificateRequest, error) {
	if bytes.HasPrefix(csrBytes, pemPrefixCSR) {
		p, _ := pem.Decode(csrBytes)
		if p == nil {
			return nil, errors.New("invalid PEM")
		}

		csrBytes = p.Bytes
	}

	return x509.ParseCertificateRequest(csrBytes)
}

// PrivateKey private key with its signer half
type PrivateKey interface {
	crypto.PrivateKey
	crypto.Signer
}

// GenerateKey generate private and public key pair
func GenerateKey(algorithm x509.SignatureAlgorithm) (privateKey PrivateKey, err error) {
	switch algorithm {
	case x509.ECDSAWithSHA256:
		privateKey, err = ecdsa.GenerateKey(elliptic.P256(), randReader)
	case x509.ECDSAWithSHA384:
		privateKey, err = ecdsa.GenerateKey(elliptic.P384(), randReader)
	case x509.ECDSAWithSHA512:
		privateKey, err = ecdsa.GenerateKey(elliptic.P521(), randReader)
	case x509.SHA256WithRSA, x509.SHA256WithRSAPSS:
		privateKey, err = rsa.GenerateKey(randReader, 2048)
	case x509.SHA384WithRSA, x509.SHA384WithRSAPSS:
		privateKey, err = rsa.GenerateKey(randReader, 3072)
	case x509.SHA512WithRSA, x509.SHA512WithRSAPSS:
		privateKey, err = rsa.GenerateKey(randReader, 4096)
	default:
		return nil, errors.Errorf("unknown algorithm: %s", algorithm)
	}

	if err != nil {
		return nil, err
	}

	return
}

// ParsePrivateKey parse pem formatted private key
func ParsePrivateKey(keyPemBytes []byte) (PrivateKey, error) {
	p, _ := pem.Decode(keyPemBytes)
	if p == nil {
		return nil, errors.New("invalid PEM")
	}

	switch {
	case bytes.HasPrefix(keyPemBytes, pemPrefixRsaPrivateKey):
		key, err := x509.ParsePKCS1PrivateKey(p.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "fail to parse private key")
		}
		return key, nil

	case bytes.HasPrefix(keyPemBytes, pemPrefixEcdsaPrivateKey):
		key, err := x509.ParseECPrivateKey(p.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "fail to parse private key")
		}
		return key, nil

	case bytes.HasPrefix(keyPemBytes, pemPrefixPkcs8PrivateKey):
		key, err := x509.ParsePKCS8PrivateKey(p.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "fail to parse private key")
		}

		priv, ok := key.(PrivateKey)
		if !ok {
			return nil, errors.Errorf("unsupported private key: %T", key)
		}
		return priv, nil

	default:
		return nil, errors.New("unknown pem type")
	}
}

// CreateCertificateRequest create CSR and return DER and PEM; a fresh
// private key is generated for the request
func CreateCertificateRequest(template *x509.CertificateRequest) (csr []byte, pemBytes []byte, key PrivateKey, err error) {
	privKey, err := GenerateKey(template.SignatureAlgorithm)
	if err != nil {
		return nil, nil, nil, err
	}

	derBytes, err := x509.CreateCertificateRequest(randReader, template, privKey)
	if err != nil {
		return nil, nil, nil, err
	}

	block := &pem.Block{
		Type:  CsrPEMBlockType,
		Bytes: derBytes,
	}
	return derBytes, pem.EncodeToMemory(block), privKey, nil
}

func EncodeCertificateToPEM(derBytes []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  CertificatePEMBlockType,
		Bytes: derBytes,
	})
}

func EncodePrivateKeyToPEM(privateKey PrivateKey) ([]byte, error) {
	var pemType string
	var keyBytes []byte

	switch key := privateKey.(type) {
	case *rsa.PrivateKey:
		pemType = RsaPrivateKeyPEMBlockType
		keyBytes = x509.MarshalPKCS1PrivateKey(key)
	case *ecdsa.PrivateKey:
		pemType = EcdsaPrivateKeyPEMBlockType
		derBytes, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "fail to encode private key")
		}
		keyBytes = derBytes
	default:
		return nil, errors.Errorf("unsupported private key: %T", privateKey)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemType,
		Bytes: keyBytes,
	}), nil
}

// RandomSerial 16 bytes of cryptographically secure randomness, drawn
// fresh per call
func RandomSerial() (*big.Int, error) {
	serial := make([]byte, 16)
	if _, err := randReader.Read(serial); err != nil {
		return nil, errors.Wrap(err, "fail to generate serial")
	}

	return new(big.Int).SetBytes(serial), nil
}

// Fingerprint SHA-256 over the DER encoding, colon separated hex
func Fingerprint(derBytes []byte) string {
	sum := helper.SHA256Sum(derBytes)

	out := make([]string, len(sum))
	for i, b := range sum {
		out[i] = hex.EncodeToString([]byte{b})
	}
	return strings.ToUpper(strings.Join(out, ":"))
}

var (
	keyUsageToStr = map[x509.KeyUsage]string{
		x509.KeyUsageDigitalSignature:  "Digital Signature",
		x509.KeyUsageContentCommitment: "Non Repudiation",
		x509.KeyUsageKeyEncipherment:   "Key Encipherment",
		x509.KeyUsageDataEncipherment:  "Data Encipherment",
		x509.KeyUsageKeyAgreement:      "Key Agreement",
		x509.KeyUsageCertSign:          "Certificate Sign",
		x509.KeyUsageCRLSign:           "CRL Sign",
		x509.KeyUsageEncipherOnly:      "Encipher Only",
		x509.KeyUsageDecipherOnly:      "Decipher Only",
	}
	extKeyUsageToStr = map[x509.ExtKeyUsage]string{
		x509.ExtKeyUsageAny:             "Any Usage",
		x509.ExtKeyUsageServerAuth:      "TLS Web Server Authentication",
		x509.ExtKeyUsageClientAuth:      "TLS Web Client Authentication",
		x509.ExtKeyUsageCodeSigning:     "Code Signing",
		x509.ExtKeyUsageEmailProtection: "Email Protection",
		x509.ExtKeyUsageTimeStamping:    "Time Stamping",
		x509.ExtKeyUsageOCSPSigning:     "OCSP Signing",
	}

	keyUsages    []x509.KeyUsage
	extKeyUsages []x509.ExtKeyUsage
)

func init() {
	keyUsages = fx.Keys(keyUsageToStr)
	sort.Slice(keyUsages, func(i, j int) bool { return int(keyUsages[i]) < int(keyUsages[j]) })

	extKeyUsages = fx.Keys(extKeyUsageToStr)
	sort.Slice(extKeyUsages, func(i, j int) bool { return int(extKeyUsages[i]) < int(extKeyUsages[j]) })
}

// KeyUsageToStr
func KeyUsageToStr(keyUsage x509.KeyUsage) (usages []string) {
	for _, u := range keyUsages {
		if keyUsage&u > 0 {
			usages = append(usages, keyUsageToStr[u])
		}
	}
	return usages
}

// ExtKeyUsageToStr
func ExtKeyUsageToStr(keyUsage []x509.ExtKeyUsage) (usages []string) {
	for _, u := range keyUsage {
		usages = append(usages, extKeyUsageToStr[u])
	}
	return usages
}
