package main

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"slotca/issuer"
	"slotca/pkg/helper"
	"slotca/pkg/helper/x509x"
	"slotca/sigfmt"
	"slotca/signer"
)

func init() {
	var (
		commonName string
		scheme     string
		hash       string
		bits       int
		slot       string
		days       int
		crlURL     string
		certOut    string
		keyOut     string
	)

	cmd := &cobra.Command{
		Use:   "selfsign",
		Short: "create a self signed CA certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemeV, err := sigfmt.ParseScheme(scheme)
			if err != nil {
				return err
			}

			key, err := generateCAKey(schemeV, bits)
			if err != nil {
				return err
			}

			mem := signer.NewMemory()
			handle, err := mem.Put(slot, key)
			if err != nil {
				return err
			}

			pub, err := mem.Public(handle)
			if err != nil {
				return err
			}

			cert, err := issuer.New(mem).Issue(cmd.Context(), &issuer.Request{
				Subject:   pkix.Name{CommonName: commonName},
				PublicKey: pub,
				Key:       handle,
				Scheme:    schemeV,
				Hash:      hash,
				NotBefore: time.Now(),
				NotAfter:  time.Now().AddDate(0, 0, days),
				IsCA:      true,
				CRLURL:    crlURL,
			}, nil)
			if err != nil {
				return err
			}

			keyBytes, err := x509x.EncodePrivateKeyToPEM(key)
			if err != nil {
				return err
			}

			if err := helper.WriteFile(keyOut, keyBytes, 0o600); err != nil {
				return err
			}

			if err := helper.WriteFile(certOut, x509x.EncodeCertificateToPEM(cert.Raw), 0o644); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "%s: serial=%s fingerprint=%s\n", certOut, cert.SerialNumber, cert.Fingerprint)
			return nil
		},
	}

	cmd.Flags().StringVar(&commonName, "cn", "", "subject common name")
	cmd.Flags().StringVar(&scheme, "scheme", "ecdsa", "signature scheme: rsa-pkcs1, rsa-pss, ecdsa")
	cmd.Flags().StringVar(&hash, "hash", "SHA256", "digest algorithm")
	cmd.Flags().IntVar(&bits, "bits", 256, "key size: 256/384 for ecdsa, 2048/3072/4096 for rsa")
	cmd.Flags().StringVar(&slot, "slot", "9c", "signing slot name")
	cmd.Flags().IntVar(&days, "days", 3650, "validity in days")
	cmd.Flags().StringVar(&crlURL, "crl-url", "", "CRL distribution point URL")
	cmd.Flags().StringVar(&certOut, "out", "ca.crt", "certificate output file")
	cmd.Flags().StringVar(&keyOut, "key-out", "ca.key", "private key output file")
	cmd.MarkFlagRequired("cn")

	rootCmd.AddCommand(cmd)
}

func generateCAKey(scheme sigfmt.Scheme, bits int) (x509x.PrivateKey, error) {
	var alg x509.SignatureAlgorithm

	switch scheme {
	case sigfmt.ECDSA:
		switch bits {
		case 256:
			alg = x509.ECDSAWithSHA256
		case 384:
			alg = x509.ECDSAWithSHA384
		default:
			return nil, errors.Errorf("unsupported ecdsa key size: %d", bits)
		}

	default:
		switch bits {
		case 2048:
			alg = x509.SHA256WithRSA
		case 3072:
			alg = x509.SHA384WithRSA
		case 4096:
			alg = x509.SHA512WithRSA
		default:
			return nil, errors.Errorf("unsupported rsa key size: %d", bits)
		}
	}

	return x509x.GenerateKey(alg)
}
