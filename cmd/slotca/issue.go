package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
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
		caCertFile string
		caKeyFile  string
		slot       string
		scheme     string
		hash       string
		days       int
		policyFile string
		aiaURL     string
		crlURL     string
	)

	cmd := &cobra.Command{
		Use:   "issue csr...",
		Short: "issue certificates from CSR files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem := signer.NewMemory()
			caCert, caKey, err := loadCA(mem, caCertFile, caKeyFile, slot)
			if err != nil {
				return err
			}

			schemeV, err := sigfmt.ParseScheme(scheme)
			if err != nil {
				return err
			}

			var pol *issuer.Policy
			if policyFile != "" {
				if pol, err = issuer.LoadPolicy(policyFile); err != nil {
					return err
				}
			}

			asm := issuer.New(mem)

			var merr *multierror.Error
			for _, filename := range args {
				req := &issuer.Request{
					Key:          caKey,
					Scheme:       schemeV,
					Hash:         hash,
					Policy:       pol,
					NotBefore:    time.Now(),
					NotAfter:     time.Now().AddDate(0, 0, days),
					CAIssuersURL: aiaURL,
					CRLURL:       crlURL,
				}
				if err := issueCSRFile(cmd.Context(), asm, req, caCert, filename); err != nil {
					merr = multierror.Append(merr, errors.Wrap(err, filename))
				}
			}

			return merr.ErrorOrNil()
		},
	}

	cmd.Flags().StringVar(&caCertFile, "ca", "ca.crt", "CA certificate file")
	cmd.Flags().StringVar(&caKeyFile, "ca-key", "ca.key", "CA private key file")
	cmd.Flags().StringVar(&slot, "slot", "9c", "signing slot name")
	cmd.Flags().StringVar(&scheme, "scheme", "rsa-pkcs1", "signature scheme: rsa-pkcs1, rsa-pss, ecdsa")
	cmd.Flags().StringVar(&hash, "hash", "SHA256", "digest algorithm")
	cmd.Flags().IntVar(&days, "days", 365, "validity in days")
	cmd.Flags().StringVar(&policyFile, "policy", "", "extension policy file")
	cmd.Flags().StringVar(&aiaURL, "aia-url", "", "CA issuers URL for authority information access")
	cmd.Flags().StringVar(&crlURL, "crl-url", "", "CRL distribution point URL")

	rootCmd.AddCommand(cmd)
}

func issueCSRFile(ctx context.Context, asm *issuer.Assembler, req *issuer.Request, caCert *x509.Certificate, filename string) error {
	csrBytes, err := helper.ReadFile(filename)
	if err != nil {
		return err
	}

	csr, err := x509x.ParseCSR(csrBytes)
	if err != nil {
		return err
	}

	req.CSR = csr
	cert, err := asm.Issue(ctx, req, caCert)
	if err != nil {
		return err
	}

	out := strings.TrimSuffix(filename, ".csr") + ".crt"
	if err := helper.WriteFile(out, x509x.EncodeCertificateToPEM(cert.Raw), 0o644); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s: serial=%s fingerprint=%s\n", out, cert.SerialNumber, cert.Fingerprint)
	return nil
}
