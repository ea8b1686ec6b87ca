package domain

import (
	"crypto"
	"crypto/x509"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HashAlgorithm Tests
// =============================================================================

func TestU_HashAlgorithm_LookupKnown(t *testing.T) {
	tests := []struct {
		oid  string
		want HashAlgorithm
		size int
		hash crypto.Hash
	}{
		{"1.3.14.3.2.26", SHA1, 20, crypto.SHA1},
		{"2.16.840.1.101.3.4.2.1", SHA256, 32, crypto.SHA256},
		{"2.16.840.1.101.3.4.2.3", SHA512, 64, crypto.SHA512},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got, ok := LookupHashAlgorithm(tt.oid)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.oid, got.OID())
			assert.Equal(t, tt.oid, got.ObjectIdentifier().String())
			assert.Equal(t, tt.size, got.Size())
			assert.Equal(t, tt.hash, got.CryptoHash())
			assert.True(t, IsKnownHashAlgorithm(tt.oid))
		})
	}
}

func TestU_HashAlgorithm_LookupUnknown(t *testing.T) {
	for _, oid := range []string{"", "1.2", "2.16.840.1.101.3.4.2.2", "not an oid"} {
		_, ok := LookupHashAlgorithm(oid)
		assert.False(t, ok, oid)
		assert.False(t, IsKnownHashAlgorithm(oid), oid)
	}
}

func TestU_HashAlgorithm_EveryValueRoundTrips(t *testing.T) {
	for _, alg := range HashAlgorithms() {
		got, ok := LookupHashAlgorithm(alg.OID())
		require.True(t, ok)
		assert.Equal(t, alg, got)
	}
}

func TestU_HashAlgorithm_Parse(t *testing.T) {
	tests := []struct {
		in      string
		want    HashAlgorithm
		wantErr bool
	}{
		{"SHA256", SHA256, false},
		{"sha-512", SHA512, false},
		{"sha1", SHA1, false},
		{"2.16.840.1.101.3.4.2.1", SHA256, false},
		{"MD5", 0, true},
		{"2.16.840.1.101.3.4.2.2", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseHashAlgorithm(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestU_HashAlgorithm_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Alg HashAlgorithm `json:"alg"`
	}{SHA512})
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"SHA512"}`, string(data))

	var out struct {
		Alg HashAlgorithm `json:"alg"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"alg":"sha256"}`), &out))
	assert.Equal(t, SHA256, out.Alg)
}

func TestU_ParseOID(t *testing.T) {
	oid, err := ParseOID("1.2.840.113549")
	require.NoError(t, err)
	assert.Equal(t, "1.2.840.113549", oid.String())

	for _, bad := range []string{"", "1", "1.x", "3.1", "1.40", "1.-2"} {
		_, err := ParseOID(bad)
		assert.Error(t, err, bad)
	}
}

// =============================================================================
// PublicKeyAlgorithm Tests
// =============================================================================

func TestU_PublicKeyAlgorithm_ParseName(t *testing.T) {
	for _, name := range []string{"RSA", "DSA", "EC"} {
		alg, ok := ParsePublicKeyAlgorithm(name)
		require.True(t, ok, name)
		assert.Equal(t, name, alg.String())
	}

	_, ok := ParsePublicKeyAlgorithm("Ed25519")
	assert.False(t, ok)
	_, ok = ParsePublicKeyAlgorithm("ECDSA")
	assert.False(t, ok)
}

func TestU_PublicKeyAlgorithm_FromX509(t *testing.T) {
	alg, ok := PublicKeyAlgorithmOf(x509.ECDSA)
	require.True(t, ok)
	assert.Equal(t, EC, alg)

	_, ok = PublicKeyAlgorithmOf(x509.Ed25519)
	assert.False(t, ok)
}

func TestU_SignatureAlgorithmName(t *testing.T) {
	assert.Equal(t, "SHA256withECDSA", SignatureAlgorithmName(SHA256, EC))
	assert.Equal(t, "SHA256withRSA", SignatureAlgorithmName(SHA256, RSA))
	assert.Equal(t, "SHA1withDSA", SignatureAlgorithmName(SHA1, DSA))
	assert.Equal(t, "SHA512withRSA", SignatureAlgorithmName(SHA512, RSA))
}

// =============================================================================
// ResponseStatus / FailureInfo Tests
// =============================================================================

func TestU_ResponseStatus_FromInt(t *testing.T) {
	for v := 0; v <= 5; v++ {
		s, ok := ResponseStatusFromInt(v)
		require.True(t, ok)
		assert.Equal(t, v, int(s))
	}
	_, ok := ResponseStatusFromInt(6)
	assert.False(t, ok)
	_, ok = ResponseStatusFromInt(-1)
	assert.False(t, ok)

	assert.True(t, StatusGranted.Granted())
	assert.True(t, StatusGrantedWithMods.Granted())
	assert.False(t, StatusRejection.Granted())
}

func TestU_ResponseStatus_JSON(t *testing.T) {
	data, err := json.Marshal(StatusRevocationWarning)
	require.NoError(t, err)
	assert.Equal(t, `"REVOCATION_WARNING"`, string(data))

	var s ResponseStatus
	require.NoError(t, json.Unmarshal([]byte(`"REJECTION"`), &s))
	assert.Equal(t, StatusRejection, s)
	assert.Error(t, json.Unmarshal([]byte(`"NOPE"`), &s))
}

func TestU_FailureInfo_Values(t *testing.T) {
	tests := []struct {
		info  FailureInfo
		value int
		bit   int
	}{
		{FailureBadAlgorithm, 128, 0},
		{FailureBadRequest, 32, 2},
		{FailureBadDataFormat, 4, 5},
		{FailureTimeNotAvailable, 512, 14},
		{FailureUnacceptedPolicy, 256, 15},
		{FailureUnacceptedExtension, 8388608, 16},
		{FailureAddInfoNotAvailable, 4194304, 17},
		{FailureSystemFailure, 1073741824, 25},
	}

	for _, tt := range tests {
		t.Run(tt.info.String(), func(t *testing.T) {
			assert.Equal(t, tt.value, int(tt.info))
			assert.Equal(t, tt.bit, tt.info.Bit())
			assert.Equal(t, tt.value, FailureBitValue(tt.bit))

			got, ok := FailureInfoFromInt(tt.value)
			require.True(t, ok)
			assert.Equal(t, tt.info, got)

			got, ok = FailureInfoFromBit(tt.bit)
			require.True(t, ok)
			assert.Equal(t, tt.info, got)
		})
	}
}

func TestU_FailureInfo_Unknown(t *testing.T) {
	_, ok := FailureInfoFromInt(0)
	assert.False(t, ok)
	_, ok = FailureInfoFromInt(int(FailureBadAlgorithm | FailureBadRequest))
	assert.False(t, ok)
	_, ok = FailureInfoFromBit(1)
	assert.False(t, ok)
	assert.Equal(t, -1, FailureInfo(3).Bit())
}

func TestU_FailureInfo_JSON(t *testing.T) {
	data, err := json.Marshal(FailureUnacceptedPolicy)
	require.NoError(t, err)
	assert.Equal(t, `"UNACCEPTED_POLICY"`, string(data))

	var f FailureInfo
	require.NoError(t, json.Unmarshal([]byte(`"SYSTEM_FAILURE"`), &f))
	assert.Equal(t, FailureSystemFailure, f)
}
