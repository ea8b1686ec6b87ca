package audit

import (
	"strings"
	"time"

	"github.com/remiblancher/qtsa/internal/domain"
)

// SignEvent builds the TSA_SIGN event for one signing call. A REJECTION is
// a successful operation; only an engine error is a failure.
func SignEvent(resp *domain.TimeStampResponseData, err error) *Event {
	if err != nil {
		return NewEvent(EventTSASign, ResultFailure).
			WithObject(Object{Type: "timestamp-response"}).
			WithContext(Context{Reason: err.Error()})
	}

	obj := Object{Type: "timestamp-response", Status: resp.Status.String()}
	ctx := Context{
		Algorithm: resp.Request.HashAlgorithm.String(),
		Policy:    resp.Request.TSAPolicyID,
	}
	if resp.SerialNumber != nil {
		obj.Type = "timestamp-token"
		obj.Serial = resp.SerialNumber.String()
	}
	if resp.GenerationTime != nil {
		ctx.GenTime = resp.GenerationTime.UTC().Format(time.RFC3339)
	}
	if resp.FailureInfo != nil {
		ctx.Failure = resp.FailureInfo.String()
	}
	return NewEvent(EventTSASign, ResultSuccess).WithObject(obj).WithContext(ctx)
}

// ValidateEvent builds the TSA_VALIDATE event for one validation call.
func ValidateEvent(result *domain.TimeStampValidationResult, err error) *Event {
	if err != nil {
		return NewEvent(EventTSAValidate, ResultFailure).
			WithObject(Object{Type: "timestamp-response"}).
			WithContext(Context{Reason: err.Error()})
	}

	obj := Object{Type: "timestamp-response", Status: result.Status.String()}
	ctx := Context{Verified: result.SignedByThisTSA}
	if result.SerialNumber != nil {
		obj.Type = "timestamp-token"
		obj.Serial = result.SerialNumber.String()
	}
	if result.HashAlgorithmIdentifier != nil {
		if alg, ok := domain.LookupHashAlgorithm(*result.HashAlgorithmIdentifier); ok {
			ctx.Algorithm = alg.String()
		}
	}
	if result.GenerationTime != nil {
		ctx.GenTime = result.GenerationTime.UTC().Format(time.RFC3339)
	}
	return NewEvent(EventTSAValidate, ResultSuccess).WithObject(obj).WithContext(ctx)
}

// KeyAccessedEvent builds the KEY_ACCESSED event for loading the signing
// credential.
func KeyAccessedEvent(path, subject string, err error) *Event {
	if err != nil {
		return NewEvent(EventKeyAccessed, ResultFailure).
			WithObject(Object{Type: "key", Path: path}).
			WithContext(Context{Reason: err.Error()})
	}
	return NewEvent(EventKeyAccessed, ResultSuccess).
		WithObject(Object{Type: "key", Path: path, Subject: subject})
}

// ServeEvent builds the TSA_SERVE event for starting the listeners.
func ServeEvent(addrs ...string) *Event {
	return NewEvent(EventTSAServe, ResultSuccess).
		WithObject(Object{Type: "service"}).
		WithContext(Context{Listeners: strings.Join(addrs, ",")}).
		WithActor(ServiceActor())
}

// WithRequest records the transport request identifier and client address.
func (e *Event) WithRequest(requestID, remoteAddr string) *Event {
	e.Context.RequestID = requestID
	e.Context.RemoteAddr = remoteAddr
	return e
}
