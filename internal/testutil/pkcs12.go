package testutil

import (
	"encoding/asn1"
	"testing"

	"software.sslmate.com/src/go-pkcs12"
)

// pfxContentInfo matches the PKCS#12 ContentInfo layout; Content keeps the
// [0] wrapper as a raw value.
type pfxContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
}

type pfxPDU struct {
	Version  int
	AuthSafe pfxContentInfo
	MacData  asn1.RawValue `asn1:"optional"`
}

// PKCS12TwoKeys encodes the credential with enc and an empty password, then
// repeats the key bag so that the container holds two keys. The MAC is
// dropped, which go-pkcs12 accepts for the empty password.
func (c *Credential) PKCS12TwoKeys(t testing.TB, enc *pkcs12.Encoder) []byte {
	t.Helper()
	der, err := enc.Encode(c.Key, c.Certificate, nil, "")
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12: %v", err)
	}

	var pfx pfxPDU
	if _, err := asn1.Unmarshal(der, &pfx); err != nil {
		t.Fatalf("Failed to parse PFX: %v", err)
	}
	var authSafeDER []byte
	if _, err := asn1.Unmarshal(pfx.AuthSafe.Content.Bytes, &authSafeDER); err != nil {
		t.Fatalf("Failed to parse authenticated safe: %v", err)
	}
	var safes []pfxContentInfo
	if _, err := asn1.Unmarshal(authSafeDER, &safes); err != nil {
		t.Fatalf("Failed to parse authenticated safe: %v", err)
	}
	if len(safes) != 2 {
		t.Fatalf("Expected 2 safe contents, got %d", len(safes))
	}

	// The second SafeContents is unencrypted and holds the key bag.
	var keyContents []byte
	if _, err := asn1.Unmarshal(safes[1].Content.Bytes, &keyContents); err != nil {
		t.Fatalf("Failed to parse key safe contents: %v", err)
	}
	var bags []asn1.RawValue
	if _, err := asn1.Unmarshal(keyContents, &bags); err != nil {
		t.Fatalf("Failed to parse key bags: %v", err)
	}
	if len(bags) != 1 {
		t.Fatalf("Expected 1 key bag, got %d", len(bags))
	}
	bags = append(bags, bags[0])

	safes[1].Content = explicitOctets(t, mustMarshal(t, bags))
	pfx.AuthSafe.Content = explicitOctets(t, mustMarshal(t, safes))
	pfx.MacData = asn1.RawValue{}
	return mustMarshal(t, pfx)
}

// explicitOctets wraps data in an OCTET STRING under a [0] tag.
func explicitOctets(t testing.TB, data []byte) asn1.RawValue {
	t.Helper()
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      mustMarshal(t, data),
	}
}

func mustMarshal(t testing.TB, v any) []byte {
	t.Helper()
	der, err := asn1.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return der
}
