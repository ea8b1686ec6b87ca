package tsp

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"

	"github.com/remiblancher/qtsa/internal/domain"
)

// TimeStampResp represents the timestamp response (RFC 3161 Section 2.4.2).
type TimeStampResp struct {
	Status         PKIStatusInfo
	TimeStampToken asn1.RawValue `asn1:"optional"`
}

// PKIStatusInfo contains the status of the request (RFC 3161 Section 2.4.2).
// StatusString is a PKIFreeText, a SEQUENCE OF UTF8String.
type PKIStatusInfo struct {
	Status       int
	StatusString []asn1.RawValue `asn1:"optional"`
	FailInfo     asn1.BitString  `asn1:"optional"`
}

// Response is a decoded TimeStampResp together with its encoding.
type Response struct {
	TimeStampResp

	// Token is the decoded time-stamp token, nil when the response carries none.
	Token *Token

	raw []byte
}

// ParseResponse parses a DER-encoded TimeStampResp. An embedded token is
// decoded as well; a token that cannot be decoded makes the whole response
// invalid.
func ParseResponse(der []byte) (*Response, error) {
	var resp TimeStampResp
	rest, err := asn1.Unmarshal(der, &resp)
	if err != nil {
		return nil, invalidResponse("parse response", err)
	}
	if len(rest) > 0 {
		return nil, invalidResponse("parse response", errors.New("trailing data after TimeStampResp"))
	}
	if _, ok := domain.ResponseStatusFromInt(resp.Status.Status); !ok {
		return nil, invalidResponse("parse response", fmt.Errorf("unknown PKIStatus %d", resp.Status.Status))
	}
	for _, s := range resp.Status.StatusString {
		if s.Class != asn1.ClassUniversal || s.Tag != asn1.TagUTF8String {
			return nil, invalidResponse("parse response", errors.New("statusString element is not a UTF8String"))
		}
	}

	response := &Response{TimeStampResp: resp, raw: append([]byte(nil), der...)}
	if len(resp.TimeStampToken.FullBytes) > 0 {
		token, err := ParseToken(resp.TimeStampToken.FullBytes)
		if err != nil {
			return nil, err
		}
		response.Token = token
	}
	return response, nil
}

// NewGrantedResponse creates a successful timestamp response around an
// encoded token.
func NewGrantedResponse(token []byte) *Response {
	return &Response{
		TimeStampResp: TimeStampResp{
			Status:         PKIStatusInfo{Status: int(domain.StatusGranted)},
			TimeStampToken: asn1.RawValue{FullBytes: token},
		},
	}
}

// NewRejectionResponse creates a rejection response with the specified
// PKIFailureInfo bit and optional free text.
func NewRejectionResponse(bit int, text ...string) *Response {
	status := PKIStatusInfo{
		Status:   int(domain.StatusRejection),
		FailInfo: failInfoBitString(bit),
	}
	for _, s := range text {
		status.StatusString = append(status.StatusString, asn1.RawValue{
			Class: asn1.ClassUniversal,
			Tag:   asn1.TagUTF8String,
			Bytes: []byte(s),
		})
	}
	return &Response{TimeStampResp: TimeStampResp{Status: status}}
}

// failInfoBitString creates a named BIT STRING with only bit set. Trailing
// zero bits are dropped as DER requires.
func failInfoBitString(bit int) asn1.BitString {
	bytes := make([]byte, bit/8+1)
	bytes[bit/8] = 1 << uint(7-bit%8)
	return asn1.BitString{Bytes: bytes, BitLength: bit + 1}
}

// Marshal encodes the response as DER.
func (r *Response) Marshal() ([]byte, error) {
	return asn1.Marshal(r.TimeStampResp)
}

// Encoded returns the bytes the response was parsed from, or its DER
// encoding for a constructed response.
func (r *Response) Encoded() ([]byte, error) {
	if r.raw == nil {
		der, err := r.Marshal()
		if err != nil {
			return nil, err
		}
		r.raw = der
	}
	return r.raw, nil
}

// StatusText concatenates the PKIFreeText strings. ok is false when the
// response carries no statusString.
func (r *Response) StatusText() (text string, ok bool) {
	if len(r.Status.StatusString) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, s := range r.Status.StatusString {
		b.Write(s.Bytes)
	}
	return b.String(), true
}

// FailureBit returns the lowest PKIFailureInfo bit that is set. ok is false
// when the response carries no failInfo or no bit is set.
func (r *Response) FailureBit() (bit int, ok bool) {
	fi := r.Status.FailInfo
	for i := 0; i < fi.BitLength; i++ {
		if fi.At(i) == 1 {
			return i, true
		}
	}
	return 0, false
}

// HasToken reports whether the response carries a time-stamp token.
func (r *Response) HasToken() bool {
	return r.Token != nil
}
