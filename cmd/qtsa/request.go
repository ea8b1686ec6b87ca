package main

import (
	"crypto/rand"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/tsp"
)

var (
	requestData    string
	requestDigest  string
	requestHash    string
	requestNonce   bool
	requestCertReq bool
	requestPolicy  string
	requestOut     string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Create a time-stamp request",
	Long: `Create a DER-encoded RFC 3161 TimeStampReq.

The message imprint is either the digest of --data or a precomputed
--digest given in hex.

Examples:
  # Request with SHA-256 hash of a file
  qtsa request --data file.txt --out file.tsq

  # Precomputed SHA-512 digest, with nonce and certificate
  qtsa request --digest 3a81...e9 --hash SHA512 --nonce --cert-req --out file.tsq`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVar(&requestData, "data", "", "File whose digest is time-stamped")
	requestCmd.Flags().StringVar(&requestDigest, "digest", "", "Precomputed digest in hex")
	requestCmd.Flags().StringVar(&requestHash, "hash", "SHA256", "Hash algorithm: SHA1, SHA256, SHA512 or an OID")
	requestCmd.Flags().BoolVar(&requestNonce, "nonce", false, "Include a random 64-bit nonce")
	requestCmd.Flags().BoolVar(&requestCertReq, "cert-req", false, "Ask for the TSA certificate in the token")
	requestCmd.Flags().StringVar(&requestPolicy, "policy", "", "Requested TSA policy OID")
	requestCmd.Flags().StringVarP(&requestOut, "out", "o", "", "TimeStampReq output file (required)")
	requestCmd.MarkFlagsMutuallyExclusive("data", "digest")
	_ = requestCmd.MarkFlagRequired("out")
}

func runRequest(cmd *cobra.Command, args []string) error {
	alg, err := domain.ParseHashAlgorithm(requestHash)
	if err != nil {
		return err
	}

	var digest []byte
	switch {
	case requestData != "":
		data, err := os.ReadFile(requestData)
		if err != nil {
			return fmt.Errorf("failed to read data: %w", err)
		}
		digest = alg.Sum(data)
	case requestDigest != "":
		digest, err = hex.DecodeString(requestDigest)
		if err != nil {
			return fmt.Errorf("invalid --digest: %w", err)
		}
		if len(digest) != alg.Size() {
			return fmt.Errorf("--digest is %d bytes, %s needs %d", len(digest), alg, alg.Size())
		}
	default:
		return errors.New("one of --data or --digest is required")
	}

	var nonce *big.Int
	if requestNonce {
		nonce, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
		if err != nil {
			return fmt.Errorf("failed to generate nonce: %w", err)
		}
	}

	var policy asn1.ObjectIdentifier
	if requestPolicy != "" {
		oid, err := domain.ParseOID(requestPolicy)
		if err != nil {
			return fmt.Errorf("invalid --policy: %w", err)
		}
		policy = oid
	}

	req, err := tsp.CreateRequest(alg, digest, nonce, requestCertReq, policy)
	if err != nil {
		return err
	}
	der, err := req.Encoded()
	if err != nil {
		return err
	}
	if err := os.WriteFile(requestOut, der, 0o644); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Hash:    %s %x\n", alg, digest)
	if nonce != nil {
		fmt.Fprintf(out, "Nonce:   %s\n", nonce)
	}
	fmt.Fprintf(out, "Written: %s\n", requestOut)
	return nil
}
