package tsa

import (
	"crypto/x509"
	"encoding/base64"
	"math/big"
	"time"

	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/tsp"
)

func mapRequest(req *tsp.Request, alg domain.HashAlgorithm) (domain.TimeStampRequestData, error) {
	encoded, err := req.Encoded()
	if err != nil {
		return domain.TimeStampRequestData{}, err
	}
	return domain.TimeStampRequestData{
		HashAlgorithm:        alg,
		Hash:                 req.MessageImprint.HashedMessage,
		Nonce:                req.Nonce,
		CertificateRequested: req.CertReq,
		TSAPolicyID:          req.PolicyOID(),
		ASNEncoded:           encoded,
	}, nil
}

// mapResponse records one signing call. genTime and serialNumber are only
// carried when the response grants a token.
func mapResponse(req *tsp.Request, alg domain.HashAlgorithm, resp *tsp.Response,
	receptionTime, genTime time.Time, serialNumber *big.Int) (*domain.TimeStampResponseData, error) {
	requestData, err := mapRequest(req, alg)
	if err != nil {
		return nil, &ResponseGenerationError{Err: err}
	}
	encoded, err := resp.Encoded()
	if err != nil {
		return nil, &ResponseGenerationError{Err: err}
	}

	status, statusString, failureInfo := mapStatus(resp)
	data := &domain.TimeStampResponseData{
		Status:        status,
		StatusString:  statusString,
		FailureInfo:   failureInfo,
		ReceptionTime: receptionTime,
		Request:       requestData,
		ASNEncoded:    encoded,
	}
	if status.Granted() {
		data.GenerationTime = &genTime
		data.SerialNumber = serialNumber
	}
	return data, nil
}

func mapStatus(resp *tsp.Response) (status domain.ResponseStatus, statusString *string, failureInfo *domain.FailureInfo) {
	// ParseResponse and the constructors only admit known statuses.
	status, _ = domain.ResponseStatusFromInt(resp.Status.Status)
	if text, ok := resp.StatusText(); ok {
		statusString = &text
	}
	if bit, ok := resp.FailureBit(); ok {
		if fi, known := domain.FailureInfoFromBit(bit); known {
			failureInfo = &fi
		}
	}
	return status, statusString, failureInfo
}

// mapValidationResult mirrors the response and, when present, its token.
func mapValidationResult(resp *tsp.Response, sc *signingCertificate, signedByThisTSA bool) *domain.TimeStampValidationResult {
	status, statusString, failureInfo := mapStatus(resp)
	result := &domain.TimeStampValidationResult{
		Status:          status,
		StatusString:    statusString,
		FailureInfo:     failureInfo,
		SignedByThisTSA: signedByThisTSA,
	}
	if resp.Token == nil {
		return result
	}

	info := resp.Token.Info
	genTime := info.GenTime.UTC()
	algOID := resp.Token.HashAlgorithmOID()
	result.GenerationTime = &genTime
	result.SerialNumber = info.SerialNumber
	result.Nonce = info.Nonce
	result.HashAlgorithmIdentifier = &algOID
	result.Hash = info.MessageImprint.HashedMessage
	if sc != nil {
		result.SigningCertificateIdentifier = sc.identifier()
		if sc.Certificate != nil {
			result.SigningCertificateInformation = CertificateInformation(sc.Certificate)
		}
	}
	return result
}

// CertificateInformation describes cert.
func CertificateInformation(cert *x509.Certificate) *domain.SigningCertificateInformation {
	return &domain.SigningCertificateInformation{
		Issuer:                   cert.Issuer.String(),
		SerialNumber:             cert.SerialNumber,
		ExpirationDate:           cert.NotAfter.UTC(),
		Base64EncodedCertificate: base64.StdEncoding.EncodeToString(cert.Raw),
	}
}
