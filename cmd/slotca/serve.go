package main

import (
	"github.com/spf13/cobra"

	"slotca"
	"slotca/api/issue"
	"slotca/issuer"
	"slotca/signer"
	"slotca/store"
)

func init() {
	var (
		addr       string
		dbURL      string
		caCertFile string
		caKeyFile  string
		slot       string
		policyFile string
		aiaURL     string
		crlURL     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start certificate issue service",
		RunE: func(cmd *cobra.Command, args []string) error {
			mem := signer.NewMemory()
			caCert, caKey, err := loadCA(mem, caCertFile, caKeyFile, slot)
			if err != nil {
				return err
			}

			config := issue.Config{
				Signer:       mem,
				Store:        store.NewSQL(dbURL),
				CACert:       caCert,
				CAKey:        caKey,
				CAIssuersURL: aiaURL,
				CRLURL:       crlURL,
			}

			if policyFile != "" {
				pol, err := issuer.LoadPolicy(policyFile)
				if err != nil {
					return err
				}
				config.Policy = pol
			}

			return slotca.Run(cmd.Context(), addr, config)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&dbURL, "db-url", "sqlite://slotca.db", "issuance record database url")
	cmd.Flags().StringVar(&caCertFile, "ca", "ca.crt", "CA certificate file")
	cmd.Flags().StringVar(&caKeyFile, "ca-key", "ca.key", "CA private key file")
	cmd.Flags().StringVar(&slot, "slot", "9c", "signing slot name")
	cmd.Flags().StringVar(&policyFile, "policy", "", "extension policy file")
	cmd.Flags().StringVar(&aiaURL, "aia-url", "", "CA issuers URL for authority information access")
	cmd.Flags().StringVar(&crlURL, "crl-url", "", "CRL distribution point URL")

	rootCmd.AddCommand(cmd)
}
