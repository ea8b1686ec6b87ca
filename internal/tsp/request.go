// Package tsp implements the RFC 3161 Time-Stamp Protocol wire format:
// TimeStampReq, TimeStampResp and the TSTInfo carried by a time-stamp token.
package tsp

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/remiblancher/qtsa/internal/domain"
)

// TimeStampReq represents a timestamp request (RFC 3161 Section 2.4.1).
type TimeStampReq struct {
	Version        int
	MessageImprint MessageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          *big.Int              `asn1:"optional"`
	CertReq        bool                  `asn1:"optional,default:false"`
	Extensions     []pkix.Extension      `asn1:"optional,tag:0"`
}

// MessageImprint contains the hash of the data to be timestamped.
type MessageImprint struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashedMessage []byte
}

// Request is a decoded TimeStampReq together with its encoding.
type Request struct {
	TimeStampReq
	raw []byte
}

// ParseRequest parses a DER-encoded TimeStampReq.
func ParseRequest(der []byte) (*Request, error) {
	var req TimeStampReq
	rest, err := asn1.Unmarshal(der, &req)
	if err != nil {
		return nil, invalidRequest("parse request", err)
	}
	if len(rest) > 0 {
		return nil, invalidRequest("parse request", errors.New("trailing data after TimeStampReq"))
	}
	if req.Version != 1 {
		return nil, invalidRequest("parse request", fmt.Errorf("unsupported TSP version: %d", req.Version))
	}
	if len(req.MessageImprint.HashedMessage) == 0 {
		return nil, invalidRequest("parse request", errors.New("empty hashed message"))
	}
	if req.Nonce != nil && req.Nonce.Sign() < 0 {
		return nil, invalidRequest("parse request", errors.New("negative nonce"))
	}
	return &Request{TimeStampReq: req, raw: append([]byte(nil), der...)}, nil
}

// NewRequest wraps a constructed TimeStampReq.
func NewRequest(req TimeStampReq) *Request {
	return &Request{TimeStampReq: req}
}

// CreateRequest builds a version 1 request over a precomputed digest.
// nonce and policy are optional.
func CreateRequest(alg domain.HashAlgorithm, digest []byte, nonce *big.Int, certReq bool, policy asn1.ObjectIdentifier) (*Request, error) {
	oid := alg.ObjectIdentifier()
	if oid == nil {
		return nil, fmt.Errorf("unknown hash algorithm %v", alg)
	}
	if len(digest) != alg.Size() {
		return nil, fmt.Errorf("digest length %d does not match %v", len(digest), alg)
	}
	req := NewRequest(TimeStampReq{
		Version: 1,
		MessageImprint: MessageImprint{
			HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oid},
			HashedMessage: digest,
		},
		ReqPolicy: policy,
		Nonce:     nonce,
		CertReq:   certReq,
	})
	if _, err := req.Encoded(); err != nil {
		return nil, err
	}
	return req, nil
}

// Marshal encodes the TimeStampReq as DER.
func (r *Request) Marshal() ([]byte, error) {
	return asn1.Marshal(r.TimeStampReq)
}

// Encoded returns the bytes the request was parsed from, or its DER
// encoding for a constructed request.
func (r *Request) Encoded() ([]byte, error) {
	if r.raw == nil {
		der, err := r.Marshal()
		if err != nil {
			return nil, err
		}
		r.raw = der
	}
	return r.raw, nil
}

// HashAlgorithmOID returns the dotted message imprint algorithm.
func (r *Request) HashAlgorithmOID() string {
	return r.MessageImprint.HashAlgorithm.Algorithm.String()
}

// PolicyOID returns the dotted requested policy, or "" when absent.
func (r *Request) PolicyOID() string {
	if len(r.ReqPolicy) == 0 {
		return ""
	}
	return r.ReqPolicy.String()
}
