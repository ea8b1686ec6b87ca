// Package audit records time-stamping operations in a tamper-evident log.
//
// Audit logs are separate from technical logs and designed for:
//   - Compliance (ETSI EN 319 421 time-stamping policy requirements)
//   - SIEM integration
//   - Tamper evidence via cryptographic hash chaining
//
// Key principles:
//   - Audit failure = Operation failure
//   - Never log secrets (private keys, keystore passwords)
//   - All timestamps in UTC
//   - Hash chain for integrity verification
package audit

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Key access events
	EventKeyAccessed EventType = "KEY_ACCESSED"

	// TSA events
	EventTSASign     EventType = "TSA_SIGN"
	EventTSAValidate EventType = "TSA_VALIDATE"
	EventTSAServe    EventType = "TSA_SERVE"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "service"
	ID   string `json:"id"`             // username or service identifier
	Host string `json:"host,omitempty"` // hostname where action occurred
}

// Object represents what was acted upon.
type Object struct {
	Type    string `json:"type"`              // "timestamp-token", "timestamp-response", "key"
	Serial  string `json:"serial,omitempty"`  // token serial number
	Status  string `json:"status,omitempty"`  // PKIStatus name
	Subject string `json:"subject,omitempty"` // certificate subject DN
	Path    string `json:"path,omitempty"`    // keystore path
}

// Context provides additional details about the operation.
type Context struct {
	RequestID  string `json:"request_id,omitempty"`  // transport request identifier
	RemoteAddr string `json:"remote_addr,omitempty"` // client address
	Algorithm  string `json:"algorithm,omitempty"`   // message imprint algorithm
	Policy     string `json:"policy,omitempty"`      // TSA policy OID
	GenTime    string `json:"gen_time,omitempty"`    // token generation time
	Failure    string `json:"failure,omitempty"`     // PKIFailureInfo name
	Reason     string `json:"reason,omitempty"`      // error text
	Verified   bool   `json:"verified,omitempty"`    // signed by this TSA
	Listeners  string `json:"listeners,omitempty"`   // served addresses
}

// Event represents a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // SHA-256 hash of previous event
	Hash      string    `json:"hash"`      // SHA-256 hash of this event
}

// NewEvent creates a new audit event with current timestamp and actor info.
// The actor defaults to the invoking user; services override it with
// WithActor.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = "unknown"
	}

	return &Event{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   username,
			Host: hostname,
		},
		Result: result,
	}
}

// ServiceActor is the actor for events emitted by the server.
func ServiceActor() Actor {
	hostname, _ := os.Hostname()
	return Actor{Type: "service", ID: "qtsa", Host: hostname}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.EventType == "" {
		return errors.New("event_type is required")
	}
	if e.Timestamp == "" {
		return errors.New("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return errors.New("actor type and id are required")
	}
	if e.Result == "" {
		return errors.New("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing.
// Excludes the Hash field to allow hash calculation.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		ID        string    `json:"id"`
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}

	return json.Marshal(eventForHash{
		ID:        e.ID,
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
