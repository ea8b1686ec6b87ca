package tsp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/remiblancher/qtsa/internal/cms"
)

// TSTInfo represents the timestamp token info (RFC 3161 Section 2.4.2).
type TSTInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint MessageImprint
	SerialNumber   *big.Int
	GenTime        time.Time        `asn1:"generalized"`
	Accuracy       Accuracy         `asn1:"optional"`
	Ordering       bool             `asn1:"optional,default:false"`
	Nonce          *big.Int         `asn1:"optional"`
	TSA            asn1.RawValue    `asn1:"optional,tag:0"`
	Extensions     []pkix.Extension `asn1:"optional,tag:1"`
}

// Accuracy represents the accuracy of the timestamp (RFC 3161 Section 2.4.2).
type Accuracy struct {
	Seconds int `asn1:"optional"`
	Millis  int `asn1:"optional,tag:0"`
	Micros  int `asn1:"optional,tag:1"`
}

// IsZero returns true if the accuracy is zero.
func (a Accuracy) IsZero() bool {
	return a.Seconds == 0 && a.Millis == 0 && a.Micros == 0
}

// Marshal encodes the TSTInfo as DER.
func (t *TSTInfo) Marshal() ([]byte, error) {
	return asn1.Marshal(*t)
}

// Token is a decoded time-stamp token: a CMS SignedData over a TSTInfo.
type Token struct {
	Raw        []byte
	SignedData *cms.SignedData
	Info       TSTInfo
}

// ParseToken parses a DER-encoded timestamp token (CMS ContentInfo).
func ParseToken(der []byte) (*Token, error) {
	sd, err := cms.ParseSignedData(der)
	if err != nil {
		return nil, invalidResponse("parse token", err)
	}
	if !sd.EncapContentInfo.EContentType.Equal(cms.OIDTSTInfo) {
		return nil, invalidResponse("parse token", fmt.Errorf("unexpected encapsulated content type: %v",
			sd.EncapContentInfo.EContentType))
	}
	if _, err := sd.Signer(); err != nil {
		return nil, invalidResponse("parse token", err)
	}

	content, err := sd.Content()
	if err != nil {
		return nil, invalidResponse("parse token", err)
	}
	var info TSTInfo
	rest, err := asn1.Unmarshal(content, &info)
	if err != nil {
		return nil, invalidResponse("parse token", fmt.Errorf("failed to parse TSTInfo: %w", err))
	}
	if len(rest) > 0 {
		return nil, invalidResponse("parse token", errors.New("trailing data after TSTInfo"))
	}
	if info.Version != 1 {
		return nil, invalidResponse("parse token", fmt.Errorf("unsupported TSTInfo version: %d", info.Version))
	}
	if info.SerialNumber == nil {
		return nil, invalidResponse("parse token", errors.New("missing serial number"))
	}

	return &Token{
		Raw:        append([]byte(nil), der...),
		SignedData: sd,
		Info:       info,
	}, nil
}

// Certificates returns the certificates embedded in the token, nil when the
// token carries none.
func (t *Token) Certificates() ([]*x509.Certificate, error) {
	certs, err := t.SignedData.ParsedCertificates()
	if err != nil {
		return nil, invalidResponse("parse token", err)
	}
	return certs, nil
}

// HashAlgorithmOID returns the dotted message imprint algorithm.
func (t *Token) HashAlgorithmOID() string {
	return t.Info.MessageImprint.HashAlgorithm.Algorithm.String()
}
