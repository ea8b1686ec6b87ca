package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qtsa/internal/audit"
)

var (
	signIn  string
	signOut string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Answer a time-stamp request offline",
	Long: `Answer a DER-encoded TimeStampReq with the configured credential and
write the DER-encoded TimeStampResp.

A request the authority refuses (unaccepted algorithm or policy, wrong
digest length) still produces a response, with status REJECTION.

Examples:
  qtsa sign --config qtsa.yaml --in file.tsq --out file.tsr`,
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signIn, "in", "", "TimeStampReq file (required)")
	signCmd.Flags().StringVarP(&signOut, "out", "o", "", "TimeStampResp output file (required)")
	_ = signCmd.MarkFlagRequired("in")
	_ = signCmd.MarkFlagRequired("out")
}

func runSign(cmd *cobra.Command, args []string) error {
	request, err := os.Open(signIn)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	defer func() { _ = request.Close() }()

	e, err := loadEngines()
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()
	if err := e.initialize(true, false); err != nil {
		return err
	}

	resp, err := e.authority.SignReader(request)
	if auditErr := e.audit.Write(audit.SignEvent(resp, err)); auditErr != nil {
		return fmt.Errorf("failed to write audit event: %w", auditErr)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(signOut, resp.ASNEncoded, 0o644); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status:  %s\n", resp.Status)
	if resp.FailureInfo != nil {
		fmt.Fprintf(out, "Failure: %s\n", resp.FailureInfo)
	}
	if resp.SerialNumber != nil {
		fmt.Fprintf(out, "Serial:  %s\n", resp.SerialNumber)
		fmt.Fprintf(out, "Time:    %s\n", resp.GenerationTime.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintf(out, "Written: %s\n", signOut)
	return nil
}
