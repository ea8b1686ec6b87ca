package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/tsp"
)

var inspectIn string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Display a time-stamp request or response",
	Long: `Decode a DER-encoded TimeStampReq or TimeStampResp and print its fields.

The type is detected from the content. Nothing is verified; use validate
for that.

Examples:
  qtsa inspect --in file.tsq
  qtsa inspect --in file.tsr`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectIn, "in", "", "Request or response file (required)")
	_ = inspectCmd.MarkFlagRequired("in")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(inspectIn)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	out := cmd.OutOrStdout()
	if req, reqErr := tsp.ParseRequest(data); reqErr == nil {
		printRequest(out, req)
		return nil
	}
	resp, err := tsp.ParseResponse(data)
	if err != nil {
		return errors.New("file is neither a time-stamp request nor a time-stamp response")
	}
	return printResponse(out, resp)
}

func hashName(oid string) string {
	if alg, ok := domain.LookupHashAlgorithm(oid); ok {
		return alg.String()
	}
	return oid
}

func printRequest(out io.Writer, req *tsp.Request) {
	fmt.Fprintln(out, "Time-Stamp Request:")
	fmt.Fprintf(out, "  Version:          %d\n", req.Version)
	fmt.Fprintf(out, "  Hash Algorithm:   %s\n", hashName(req.HashAlgorithmOID()))
	fmt.Fprintf(out, "  Message Imprint:  %x\n", req.MessageImprint.HashedMessage)
	if req.PolicyOID() != "" {
		fmt.Fprintf(out, "  Policy:           %s\n", req.PolicyOID())
	}
	if req.Nonce != nil {
		fmt.Fprintf(out, "  Nonce:            %s\n", req.Nonce)
	}
	fmt.Fprintf(out, "  Certificate Req:  %t\n", req.CertReq)
}

func printResponse(out io.Writer, resp *tsp.Response) error {
	status := domain.ResponseStatus(resp.Status.Status)
	fmt.Fprintln(out, "Time-Stamp Response:")
	fmt.Fprintf(out, "  Status:           %s\n", status)
	if text, ok := resp.StatusText(); ok {
		fmt.Fprintf(out, "  Status String:    %s\n", text)
	}
	if bit, ok := resp.FailureBit(); ok {
		if fi, known := domain.FailureInfoFromBit(bit); known {
			fmt.Fprintf(out, "  Failure Info:     %s\n", fi)
		} else {
			fmt.Fprintf(out, "  Failure Info:     bit %d\n", bit)
		}
	}
	if resp.Token == nil {
		return nil
	}

	info := resp.Token.Info
	fmt.Fprintln(out, "Time-Stamp Token:")
	fmt.Fprintf(out, "  Serial Number:    %s\n", info.SerialNumber)
	fmt.Fprintf(out, "  Generation Time:  %s\n", info.GenTime.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(out, "  Policy:           %s\n", info.Policy)
	fmt.Fprintf(out, "  Hash Algorithm:   %s\n", hashName(resp.Token.HashAlgorithmOID()))
	fmt.Fprintf(out, "  Message Imprint:  %x\n", info.MessageImprint.HashedMessage)
	if info.Nonce != nil {
		fmt.Fprintf(out, "  Nonce:            %s\n", info.Nonce)
	}

	certs, err := resp.Token.Certificates()
	if err != nil {
		return err
	}
	for _, cert := range certs {
		fmt.Fprintf(out, "  Certificate:      %s (serial %s)\n", cert.Subject, cert.SerialNumber)
	}
	return nil
}
