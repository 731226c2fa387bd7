package policy

import (
	"crypto/x509"
	"encoding/asn1"

	"github.com/pkg/errors"

	"slotca/pkg/helper"
)

// Config YAML form of a policy, for per environment policies without
// recompilation
type Config struct {
	KeyUsage    []string `yaml:"key_usage"`
	ExtKeyUsage []string `yaml:"ext_key_usage"`
}

var keyUsageNames = map[string]x509.KeyUsage{
	"digitalSignature":  x509.KeyUsageDigitalSignature,
	"contentCommitment": x509.KeyUsageContentCommitment,
	"keyEncipherment":   x509.KeyUsageKeyEncipherment,
	"dataEncipherment":  x509.KeyUsageDataEncipherment,
	"keyAgreement":      x509.KeyUsageKeyAgreement,
	"certSign":          x509.KeyUsageCertSign,
	"crlSign":           x509.KeyUsageCRLSign,
	"encipherOnly":      x509.KeyUsageEncipherOnly,
	"decipherOnly":      x509.KeyUsageDecipherOnly,
}

var extKeyUsageNames = map[string]asn1.ObjectIdentifier{
	"codeSigning":     OIDCodeSigning,
	"documentSigning": OIDDocumentSigning,
	"emailProtection": OIDEmailProtection,
	"serverAuth":      OIDServerAuth,
	"clientAuth":      OIDClientAuth,
	"timeStamping":    OIDTimeStamping,
	"ocspSigning":     OIDOCSPSigning,
	"any":             OIDAnyExtendedUsage,
}

// FromConfig build a policy from its YAML form; unknown names are
// configuration bugs and fail loudly, unlike request filtering.
func FromConfig(cfg *Config) (*Policy, error) {
	p := &Policy{}

	for _, name := range cfg.KeyUsage {
		usage, ok := keyUsageNames[name]
		if !ok {
			return nil, errors.Errorf("unknown key usage: %q", name)
		}
		p.KeyUsageMask |= usage
	}

	for _, name := range cfg.ExtKeyUsage {
		oid, ok := extKeyUsageNames[name]
		if !ok {
			return nil, errors.Errorf("unknown extended key usage: %q", name)
		}
		p.AllowedEKU = append(p.AllowedEKU, oid)
	}

	return p, nil
}

// Load read a policy from a YAML file
func Load(name string) (*Policy, error) {
	cfg := &Config{}
	if err := helper.ReadYAMLFile(name, cfg); err != nil {
		return nil, errors.Wrapf(err, "fail to load policy %s", name)
	}

	return FromConfig(cfg)
}
