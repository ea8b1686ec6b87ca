package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/qtsa/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qtsa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleYAML = `
tsa:
  ess_cert_id_algorithm: SHA1
  signing_digest_algorithm: SHA512
  accepted_hash_algorithms: [SHA256, "2.16.840.1.101.3.4.2.3"]
  policy_oid: 1.3.6.1.4.1.4146.2.3
  accepted_policies: [1.2.3.4]
keystore:
  path: /etc/qtsa/tsa.p12
  password: secret
server:
  tsp_port: 3180
  read_timeout: 5s
audit:
  path: /var/log/qtsa/audit.jsonl
log:
  level: debug
  format: json
`

// =============================================================================
// Load
// =============================================================================

func TestU_Config_LoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "SHA1", cfg.TSA.ESSCertIDAlgorithm)
	assert.Equal(t, []string{"SHA256", "2.16.840.1.101.3.4.2.3"}, cfg.TSA.AcceptedHashAlgorithms)
	assert.Equal(t, "/etc/qtsa/tsa.p12", cfg.Keystore.Path)
	assert.Equal(t, 3180, cfg.Server.TSPPort)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/log/qtsa/audit.jsonl", cfg.Audit.Path)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, 8080, cfg.Server.APIPort)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, int64(64<<10), cfg.Server.MaxBodyBytes)
}

func TestU_Config_LoadExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "qtsa.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().TSA.AcceptedHashAlgorithms, cfg.TSA.AcceptedHashAlgorithms)
	assert.Equal(t, "embedded:dev-tsa.p12", cfg.Keystore.Path)
	assert.Equal(t, Default().Server, cfg.Server)

	_, err = cfg.Engine()
	assert.NoError(t, err)
}

func TestU_Config_LoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("QTSA_TSA_POLICY_OID", "1.2.840.113549")
	t.Setenv("QTSA_TSA_ESS_CERT_ID_ALGORITHM", "SHA512")
	t.Setenv("QTSA_TSA_ACCEPTED_HASH_ALGORITHMS", "SHA1,SHA256")
	t.Setenv("QTSA_KEYSTORE_PASSWORD", "from-env")
	t.Setenv("QTSA_SERVER_API_PORT", "9090")
	t.Setenv("QTSA_SERVER_SHUTDOWN_TIMEOUT", "1m")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "1.2.840.113549", cfg.TSA.PolicyOID)
	assert.Equal(t, "SHA512", cfg.TSA.ESSCertIDAlgorithm)
	assert.Equal(t, []string{"SHA1", "SHA256"}, cfg.TSA.AcceptedHashAlgorithms)
	assert.Equal(t, "from-env", cfg.Keystore.Password)
	assert.Equal(t, 9090, cfg.Server.APIPort)
	assert.Equal(t, time.Minute, cfg.Server.ShutdownTimeout)
}

func TestU_Config_LoadWithoutFile(t *testing.T) {
	t.Setenv("QTSA_KEYSTORE_PATH", "embedded:dev-tsa.p12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "embedded:dev-tsa.p12", cfg.Keystore.Path)
	assert.Equal(t, "1.2", cfg.TSA.PolicyOID)
	assert.Equal(t, []string{"SHA256", "SHA512"}, cfg.TSA.AcceptedHashAlgorithms)
}

func TestU_Config_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "keystore:\n  path: a.p12\n  pasword: x\n", "pasword"},
		{"bad yaml", "tsa: [\n", "parsing config"},
		{"bad algorithm", "keystore: {path: a.p12}\ntsa: {signing_digest_algorithm: MD5}\n", "SigningDigestAlgorithm"},
		{"bad policy", "keystore: {path: a.p12}\ntsa: {policy_oid: not-an-oid}\n", "PolicyOID"},
		{"bad accepted policy", "keystore: {path: a.p12}\ntsa: {accepted_policies: [\"1\"]}\n", "AcceptedPolicies"},
		{"missing keystore", "log: {level: info}\n", "Keystore.Path"},
		{"port out of range", "keystore: {path: a.p12}\nserver: {tsp_port: 70000}\n", "TSPPort"},
		{"same ports", "keystore: {path: a.p12}\nserver: {tsp_port: 8080}\n", "APIPort"},
		{"bad log format", "keystore: {path: a.p12}\nlog: {format: xml}\n", "Log.Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestU_Config_LoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestU_Config_LoadEmptyFile(t *testing.T) {
	t.Setenv("QTSA_KEYSTORE_PATH", "a.p12")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestU_Config_LoadInvalidEnvironment(t *testing.T) {
	t.Setenv("QTSA_SERVER_TSP_PORT", "three-one-eight")

	_, err := Load(writeConfig(t, sampleYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment overrides")
}

// =============================================================================
// Engine
// =============================================================================

func TestU_Config_Engine(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	engine, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, domain.SHA1, engine.ESSCertIDAlgorithm)
	assert.Equal(t, domain.SHA512, engine.SigningDigestAlgorithm)
	assert.Equal(t, []domain.HashAlgorithm{domain.SHA256, domain.SHA512}, engine.AcceptedHashAlgorithms)
	assert.Equal(t, "1.3.6.1.4.1.4146.2.3", engine.PolicyOID)
	assert.Equal(t, []string{"1.2.3.4"}, engine.AcceptedPolicies)
	require.NoError(t, engine.Validate())
}

func TestU_Config_EngineDefaults(t *testing.T) {
	engine, err := Default().Engine()
	require.NoError(t, err)
	assert.Equal(t, domain.SHA256, engine.ESSCertIDAlgorithm)
	assert.Equal(t, "1.2", engine.PolicyOID)
}

func TestU_Config_EngineUnknownAlgorithm(t *testing.T) {
	cfg := Default()
	cfg.TSA.AcceptedHashAlgorithms = []string{"SHA256", "MD5"}

	_, err := cfg.Engine()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MD5")
}

func TestU_Config_Addresses(t *testing.T) {
	s := Default().Server
	assert.Equal(t, ":318", s.TSPAddr())
	assert.Equal(t, ":8080", s.APIAddr())

	s.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:318", s.TSPAddr())
}
