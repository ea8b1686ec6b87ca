package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ResponseStatus is the PKIStatus of a time-stamp response (RFC 3161 §2.4.2).
// The integer values are the wire values.
type ResponseStatus int

const (
	StatusGranted                ResponseStatus = 0
	StatusGrantedWithMods        ResponseStatus = 1
	StatusRejection              ResponseStatus = 2
	StatusWaiting                ResponseStatus = 3
	StatusRevocationWarning      ResponseStatus = 4
	StatusRevocationNotification ResponseStatus = 5
)

var statusNames = []string{
	"GRANTED",
	"GRANTED_WITH_MODS",
	"REJECTION",
	"WAITING",
	"REVOCATION_WARNING",
	"REVOCATION_NOTIFICATION",
}

// ResponseStatusFromInt returns the status with the given wire value.
func ResponseStatusFromInt(v int) (ResponseStatus, bool) {
	if v < 0 || v >= len(statusNames) {
		return 0, false
	}
	return ResponseStatus(v), true
}

// Granted reports whether a token accompanies a response with this status.
func (s ResponseStatus) Granted() bool {
	return s == StatusGranted || s == StatusGrantedWithMods
}

func (s ResponseStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "ResponseStatus(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// MarshalJSON encodes the status by name.
func (s ResponseStatus) MarshalJSON() ([]byte, error) {
	if _, ok := ResponseStatusFromInt(int(s)); !ok {
		return nil, fmt.Errorf("invalid response status %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the status name.
func (s *ResponseStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = ResponseStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown response status %q", name)
}

// FailureInfo is a PKIFailureInfo reason carried by non-granted responses.
//
// The values are the integer interpretation of the DER named bit string: bit
// n of the ASN.1 definition maps to 1 << (8*(n/8) + 7 - n%8).
type FailureInfo int

const (
	FailureBadAlgorithm        FailureInfo = 1 << 7
	FailureBadRequest          FailureInfo = 1 << 5
	FailureBadDataFormat       FailureInfo = 1 << 2
	FailureTimeNotAvailable    FailureInfo = 1 << 9
	FailureUnacceptedPolicy    FailureInfo = 1 << 8
	FailureUnacceptedExtension FailureInfo = 1 << 23
	FailureAddInfoNotAvailable FailureInfo = 1 << 22
	FailureSystemFailure       FailureInfo = 1 << 30
)

type failureEntry struct {
	info FailureInfo
	name string
	bit  int
}

var failureInfos = []failureEntry{
	{FailureBadAlgorithm, "BAD_ALGORITHM", 0},
	{FailureBadRequest, "BAD_REQUEST", 2},
	{FailureBadDataFormat, "BAD_DATA_FORMAT", 5},
	{FailureTimeNotAvailable, "TIME_NOT_AVAILABLE", 14},
	{FailureUnacceptedPolicy, "UNACCEPTED_POLICY", 15},
	{FailureUnacceptedExtension, "UNACCEPTED_EXTENSION", 16},
	{FailureAddInfoNotAvailable, "ADD_INFO_NOT_AVAILABLE", 17},
	{FailureSystemFailure, "SYSTEM_FAILURE", 25},
}

// FailureInfoFromInt returns the failure reason with the given value.
func FailureInfoFromInt(v int) (FailureInfo, bool) {
	for _, e := range failureInfos {
		if int(e.info) == v {
			return e.info, true
		}
	}
	return 0, false
}

// FailureInfoFromBit returns the failure reason named by an RFC 3161 bit.
func FailureInfoFromBit(bit int) (FailureInfo, bool) {
	for _, e := range failureInfos {
		if e.bit == bit {
			return e.info, true
		}
	}
	return 0, false
}

// FailureBitValue converts a bit position to its integer value.
func FailureBitValue(bit int) int {
	return 1 << (8*(bit/8) + 7 - bit%8)
}

// Bit returns the RFC 3161 bit position, or -1 for an invalid value.
func (f FailureInfo) Bit() int {
	for _, e := range failureInfos {
		if e.info == f {
			return e.bit
		}
	}
	return -1
}

func (f FailureInfo) String() string {
	for _, e := range failureInfos {
		if e.info == f {
			return e.name
		}
	}
	return "FailureInfo(" + strconv.Itoa(int(f)) + ")"
}

// MarshalJSON encodes the failure reason by name.
func (f FailureInfo) MarshalJSON() ([]byte, error) {
	if f.Bit() < 0 {
		return nil, fmt.Errorf("invalid failure info %d", int(f))
	}
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts the failure reason name.
func (f *FailureInfo) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, e := range failureInfos {
		if e.name == name {
			*f = e.info
			return nil
		}
	}
	return fmt.Errorf("unknown failure info %q", name)
}
