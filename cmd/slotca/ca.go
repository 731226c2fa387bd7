package main

import (
	"crypto/x509"

	"github.com/pkg/errors"

	"slotca/pkg/helper"
	"slotca/pkg/helper/x509x"
	"slotca/signer"
)

// loadCA load CA certificate and private key into the software signer slot
func loadCA(mem *signer.Memory, certFile, keyFile, slot string) (*x509.Certificate, signer.KeyHandle, error) {
	certBytes, err := helper.ReadFile(certFile)
	if err != nil {
		return nil, signer.KeyHandle{}, errors.Wrapf(err, "fail to read CA certificate %s", certFile)
	}

	cert, err := x509x.ParseCertificate(certBytes)
	if err != nil {
		return nil, signer.KeyHandle{}, errors.Wrap(err, "fail to parse CA certificate")
	}

	keyBytes, err := helper.ReadFile(keyFile)
	if err != nil {
		return nil, signer.KeyHandle{}, errors.Wrapf(err, "fail to read CA key %s", keyFile)
	}

	key, err := x509x.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, signer.KeyHandle{}, errors.Wrap(err, "fail to parse CA key")
	}

	handle, err := mem.Put(slot, key)
	if err != nil {
		return nil, signer.KeyHandle{}, err
	}

	return cert, handle, nil
}
