package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qtsa/internal/tsa"
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Keystore operations",
}

var keystoreInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display the signing certificate",
	Long: `Load the configured PKCS#12 keystore and display the signing certificate.

The command fails if the keystore cannot be opened, or if the certificate
lacks the critical id-kp-timeStamping extended key usage the authority
requires.

Examples:
  qtsa keystore info --config qtsa.yaml`,
	RunE: runKeystoreInfo,
}

func init() {
	keystoreCmd.AddCommand(keystoreInfoCmd)
}

func runKeystoreInfo(cmd *cobra.Command, args []string) error {
	e, err := loadEngines()
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()
	if err := e.initialize(true, false); err != nil {
		return err
	}

	cert := e.authority.Certificate()
	info := tsa.CertificateInformation(cert)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Keystore:    %s\n", e.cfg.Keystore.Path)
	fmt.Fprintf(out, "Subject:     %s\n", cert.Subject)
	fmt.Fprintf(out, "Issuer:      %s\n", info.Issuer)
	fmt.Fprintf(out, "Serial:      %s\n", info.SerialNumber)
	fmt.Fprintf(out, "Key:         %s\n", cert.PublicKeyAlgorithm)
	fmt.Fprintf(out, "Not Before:  %s\n", cert.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Not After:   %s\n", info.ExpirationDate.Format(time.RFC3339))
	return nil
}
