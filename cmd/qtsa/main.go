// Command qtsa is the RFC 3161 time-stamp authority: it serves the TSP and
// REST listeners and offers the same operations offline.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qtsa",
	Short: "RFC 3161 / RFC 5816 time-stamp authority",
	Long: `qtsa issues and validates RFC 3161 time-stamp tokens.

The signing credential is a PKIX certificate with a critical
id-kp-timeStamping extended key usage and its RSA, DSA or EC key, read
from a PKCS#12 keystore.

Configuration is read from a YAML file (--config) and QTSA_* environment
variables, e.g. QTSA_KEYSTORE_PATH and QTSA_TSA_POLICY_OID.

Examples:
  # Serve RFC 3161 on :318 and the REST API on :8080
  qtsa serve --config qtsa.yaml

  # Build a request, sign it and validate the reply offline
  qtsa request --data file.txt --nonce --cert-req --out file.tsq
  qtsa sign --config qtsa.yaml --in file.tsq --out file.tsr
  qtsa validate --config qtsa.yaml --in file.tsr`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogging(logLevel, logFormat)
	},
}

// configureLogging sets up the logrus standard logger.
func configureLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logrus.SetLevel(lvl)

	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid --log-format %q: must be text or json", format)
	}
	logrus.SetOutput(os.Stderr)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the YAML configuration file (QTSA_* variables override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format: text or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(keystoreCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}
