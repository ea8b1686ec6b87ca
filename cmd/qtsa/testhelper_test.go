package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/qtsa/internal/testutil"
)

// executeCommand executes a Cobra command with the given args and returns output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags(root)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its children to its default and
// clears the Changed marks left by an earlier Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// testContext holds test resources.
type testContext struct {
	t       *testing.T
	tempDir string
	cred    *testutil.Credential
}

// newTestContext creates a temp directory holding a keystore and a config
// file that points at it.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	tc := &testContext{t: t, tempDir: t.TempDir(), cred: testutil.NewRSACredential(t)}

	keystorePath := tc.path("tsa.p12")
	require.NoError(t, os.WriteFile(keystorePath, tc.cred.PKCS12(t, "changeit"), 0o600))
	tc.writeFile("qtsa.yaml", fmt.Sprintf(`tsa:
  accepted_hash_algorithms: [SHA256, SHA512]
  policy_oid: 1.3.6.1.4.1.4146.2.3
keystore:
  path: %s
  password: changeit
audit:
  path: %s
`, keystorePath, tc.path("audit.jsonl")))
	return tc
}

// path returns a path within the temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// config returns the config file path.
func (tc *testContext) config() string {
	return tc.path("qtsa.yaml")
}

// writeFile writes content to a file in the temp directory.
func (tc *testContext) writeFile(name, content string) string {
	tc.t.Helper()
	path := tc.path(name)
	require.NoError(tc.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command and fails the test on error.
func (tc *testContext) run(args ...string) string {
	tc.t.Helper()
	out, err := executeCommand(rootCmd, args...)
	require.NoError(tc.t, err, out)
	return out
}
