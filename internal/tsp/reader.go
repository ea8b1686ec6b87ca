package tsp

import (
	"errors"
	"fmt"
	"io"
)

// MaxObjectSize bounds the length a single TLV read from a stream may
// announce.
const MaxObjectSize = 1 << 20

// ReadRequest reads exactly one DER TimeStampReq from r and parses it. The
// reader is neither drained nor closed.
func ReadRequest(r io.Reader) (*Request, error) {
	der, err := readTLV(r)
	if err != nil {
		return nil, invalidRequest("read", err)
	}
	return ParseRequest(der)
}

// ReadResponse reads exactly one DER TimeStampResp from r and parses it. The
// reader is neither drained nor closed.
func ReadResponse(r io.Reader) (*Response, error) {
	der, err := readTLV(r)
	if err != nil {
		return nil, invalidResponse("read", err)
	}
	return ParseResponse(der)
}

// readTLV reads one tag-length-value from r, taking the identifier and
// length octets first so that nothing beyond the object is consumed.
func readTLV(r io.Reader) ([]byte, error) {
	header := make([]byte, 2, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if header[0]&0x1f == 0x1f {
		return nil, errors.New("high tag numbers are not supported at top level")
	}

	length := int(header[1])
	if length&0x80 != 0 {
		n := length & 0x7f
		switch {
		case n == 0:
			return nil, errors.New("indefinite length is not DER")
		case n > 3:
			return nil, fmt.Errorf("object exceeds %d bytes", MaxObjectSize)
		}
		lengthBytes := make([]byte, n)
		if _, err := io.ReadFull(r, lengthBytes); err != nil {
			return nil, fmt.Errorf("reading length: %w", err)
		}
		if lengthBytes[0] == 0 {
			return nil, errors.New("non-minimal length encoding")
		}
		length = 0
		for _, b := range lengthBytes {
			length = length<<8 | int(b)
		}
		if length < 0x80 {
			return nil, errors.New("non-minimal length encoding")
		}
		header = append(header, lengthBytes...)
	}
	if length > MaxObjectSize {
		return nil, fmt.Errorf("object exceeds %d bytes", MaxObjectSize)
	}

	der := make([]byte, len(header)+length)
	copy(der, header)
	if _, err := io.ReadFull(r, der[len(header):]); err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	return der, nil
}
