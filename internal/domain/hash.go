// Package domain holds the plain value types exchanged between the
// time-stamping engine and its collaborators (transport, audit, storage).
//
// Nothing in this package depends on the wire encoding; the tsp and tsa
// packages translate to and from these types.
package domain

import (
	"crypto"
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"

	// Register the digest implementations behind crypto.Hash.New.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// HashAlgorithm is one of the digest algorithms known to the authority.
type HashAlgorithm int

const (
	SHA1 HashAlgorithm = iota + 1
	SHA256
	SHA512
)

type hashEntry struct {
	alg  HashAlgorithm
	name string
	oid  string
	hash crypto.Hash
}

var hashAlgorithms = []hashEntry{
	{SHA1, "SHA1", "1.3.14.3.2.26", crypto.SHA1},
	{SHA256, "SHA256", "2.16.840.1.101.3.4.2.1", crypto.SHA256},
	{SHA512, "SHA512", "2.16.840.1.101.3.4.2.3", crypto.SHA512},
}

// HashAlgorithms returns all known algorithms in declaration order.
func HashAlgorithms() []HashAlgorithm {
	out := make([]HashAlgorithm, 0, len(hashAlgorithms))
	for _, e := range hashAlgorithms {
		out = append(out, e.alg)
	}
	return out
}

func (h HashAlgorithm) entry() (hashEntry, bool) {
	for _, e := range hashAlgorithms {
		if e.alg == h {
			return e, true
		}
	}
	return hashEntry{}, false
}

// LookupHashAlgorithm returns the algorithm registered under the dotted OID.
func LookupHashAlgorithm(oid string) (HashAlgorithm, bool) {
	for _, e := range hashAlgorithms {
		if e.oid == oid {
			return e.alg, true
		}
	}
	return 0, false
}

// IsKnownHashAlgorithm reports whether oid names a known algorithm.
func IsKnownHashAlgorithm(oid string) bool {
	_, ok := LookupHashAlgorithm(oid)
	return ok
}

// ParseHashAlgorithm accepts an algorithm name ("SHA256", "sha-256") or a
// dotted OID. It is meant for configuration values.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	s = strings.TrimSpace(s)
	if alg, ok := LookupHashAlgorithm(s); ok {
		return alg, nil
	}
	name := strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	for _, e := range hashAlgorithms {
		if e.name == name {
			return e.alg, nil
		}
	}
	return 0, fmt.Errorf("unknown hash algorithm %q", s)
}

// String returns the algorithm name, e.g. "SHA256".
func (h HashAlgorithm) String() string {
	if e, ok := h.entry(); ok {
		return e.name
	}
	return "HashAlgorithm(" + strconv.Itoa(int(h)) + ")"
}

// OID returns the dotted object identifier.
func (h HashAlgorithm) OID() string {
	e, _ := h.entry()
	return e.oid
}

// ObjectIdentifier returns the OID in encoding/asn1 form.
func (h HashAlgorithm) ObjectIdentifier() asn1.ObjectIdentifier {
	e, ok := h.entry()
	if !ok {
		return nil
	}
	oid, _ := parseOID(e.oid)
	return oid
}

// CryptoHash returns the standard library hash identifier.
func (h HashAlgorithm) CryptoHash() crypto.Hash {
	e, _ := h.entry()
	return e.hash
}

// Size returns the digest length in bytes, or 0 for an invalid value.
func (h HashAlgorithm) Size() int {
	e, ok := h.entry()
	if !ok {
		return 0
	}
	return e.hash.Size()
}

// Sum digests data.
func (h HashAlgorithm) Sum(data []byte) []byte {
	hf := h.CryptoHash().New()
	hf.Write(data)
	return hf.Sum(nil)
}

// MarshalText implements encoding.TextMarshaler.
func (h HashAlgorithm) MarshalText() ([]byte, error) {
	if _, ok := h.entry(); !ok {
		return nil, fmt.Errorf("invalid hash algorithm %d", int(h))
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HashAlgorithm) UnmarshalText(text []byte) error {
	alg, err := ParseHashAlgorithm(string(text))
	if err != nil {
		return err
	}
	*h = alg
	return nil
}

// ParseOID parses a dotted object identifier such as "1.2.840.113549".
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	return parseOID(s)
}

func parseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid OID %q", s)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid OID %q", s)
		}
		oid[i] = n
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, fmt.Errorf("invalid OID %q", s)
	}
	return oid, nil
}
