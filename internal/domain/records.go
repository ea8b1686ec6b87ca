package domain

import (
	"math/big"
	"time"
)

// TimeStampRequestData describes an inbound time-stamp request.
type TimeStampRequestData struct {
	HashAlgorithm        HashAlgorithm `json:"hashAlgorithm"`
	Hash                 []byte        `json:"hash"`
	Nonce                *big.Int      `json:"nonce,omitempty"`
	CertificateRequested bool          `json:"certificateRequested"`
	TSAPolicyID          string        `json:"tsaPolicyId,omitempty"`
	ASNEncoded           []byte        `json:"asnEncoded"`
}

// TimeStampResponseData is the record of one signing call. It is created
// once and handed to storage, transport and notification collaborators.
type TimeStampResponseData struct {
	Status         ResponseStatus       `json:"status"`
	StatusString   *string              `json:"statusString,omitempty"`
	FailureInfo    *FailureInfo         `json:"failureInfo,omitempty"`
	ReceptionTime  time.Time            `json:"receptionTime"`
	GenerationTime *time.Time           `json:"generationTime,omitempty"`
	SerialNumber   *big.Int             `json:"serialNumber,omitempty"`
	Request        TimeStampRequestData `json:"request"`
	ASNEncoded     []byte               `json:"asnEncoded"`
}

// SigningCertificateIdentifier names the certificate a token claims to be
// signed with, by digest.
type SigningCertificateIdentifier struct {
	HashAlgorithmOID string `json:"hashAlgorithmOid"`
	Hash             []byte `json:"hash"`
}

// SigningCertificateInformation describes a certificate whose bytes were
// available.
type SigningCertificateInformation struct {
	Issuer                   string    `json:"issuer"`
	SerialNumber             *big.Int  `json:"serialNumber"`
	ExpirationDate           time.Time `json:"expirationDate"`
	Base64EncodedCertificate string    `json:"base64EncodedCertificate"`
}

// TimeStampValidationResult is the outcome of validating a response.
type TimeStampValidationResult struct {
	Status                        ResponseStatus                 `json:"status"`
	StatusString                  *string                        `json:"statusString,omitempty"`
	FailureInfo                   *FailureInfo                   `json:"failureInfo,omitempty"`
	GenerationTime                *time.Time                     `json:"generationTime,omitempty"`
	SerialNumber                  *big.Int                       `json:"serialNumber,omitempty"`
	Nonce                         *big.Int                       `json:"nonce,omitempty"`
	HashAlgorithmIdentifier       *string                        `json:"hashAlgorithmIdentifier,omitempty"`
	Hash                          []byte                         `json:"hash,omitempty"`
	SigningCertificateIdentifier  *SigningCertificateIdentifier  `json:"signingCertificateIdentifier,omitempty"`
	SigningCertificateInformation *SigningCertificateInformation `json:"signingCertificateInformation,omitempty"`
	SignedByThisTSA               bool                           `json:"signedByThisTsa"`
}
