package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qtsa/internal/audit"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/tsa"
)

var (
	validateIn   string
	validateCert string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a time-stamp response",
	Long: `Validate a DER-encoded TimeStampResp and print the result as JSON.

signedByThisTsa is true when the token signature verifies with the TSA
key, its ESS signing-certificate identifier names the TSA certificate and
the generation time lies within the certificate validity. With --cert the
given certificate (DER or PEM) is used instead of the configured keystore.

Examples:
  qtsa validate --config qtsa.yaml --in file.tsr
  qtsa validate --in file.tsr --cert tsa.pem`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateIn, "in", "", "TimeStampResp file (required)")
	validateCmd.Flags().StringVar(&validateCert, "cert", "", "Validate against this certificate (DER or PEM)")
	_ = validateCmd.MarkFlagRequired("in")
}

func runValidate(cmd *cobra.Command, args []string) error {
	response, err := os.ReadFile(validateIn)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result *domain.TimeStampValidationResult
	if validateCert != "" {
		result, err = validateWithCertificate(response, validateCert)
	} else {
		result, err = validateWithKeystore(response)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// validateWithCertificate does not need a keystore. Without --config an
// unusable environment configuration is ignored and nothing is audited.
func validateWithCertificate(response []byte, certPath string) (*domain.TimeStampValidationResult, error) {
	certificate, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	e, err := loadEngines()
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return tsa.NewValidator(nil).ValidateWithCertificate(response, certificate)
	}
	defer func() { _ = e.close() }()

	result, err := e.validator.ValidateWithCertificate(response, certificate)
	if auditErr := e.audit.Write(audit.ValidateEvent(result, err)); auditErr != nil {
		return nil, fmt.Errorf("failed to write audit event: %w", auditErr)
	}
	return result, err
}

func validateWithKeystore(response []byte) (*domain.TimeStampValidationResult, error) {
	e, err := loadEngines()
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.close() }()
	if err := e.initialize(false, true); err != nil {
		return nil, err
	}

	result, err := e.validator.Validate(response)
	if auditErr := e.audit.Write(audit.ValidateEvent(result, err)); auditErr != nil {
		return nil, fmt.Errorf("failed to write audit event: %w", auditErr)
	}
	return result, err
}
