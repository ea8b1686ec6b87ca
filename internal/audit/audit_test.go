package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/qtsa/internal/domain"
)

// =============================================================================
// Event Tests
// =============================================================================

func TestU_NewEvent_Creation(t *testing.T) {
	event := NewEvent(EventTSASign, ResultSuccess)

	assert.Equal(t, EventTSASign, event.EventType)
	assert.Equal(t, ResultSuccess, event.Result)
	assert.NotEmpty(t, event.Timestamp)
	assert.Equal(t, "user", event.Actor.Type)
	_, err := uuid.Parse(event.ID)
	assert.NoError(t, err)
	assert.NotEqual(t, event.ID, NewEvent(EventTSASign, ResultSuccess).ID)
}

func TestU_Event_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   *Event
		wantErr bool
	}{
		{"valid event", NewEvent(EventTSASign, ResultSuccess), false},
		{"missing id", &Event{
			EventType: EventTSASign,
			Timestamp: "2024-01-15T10:00:00Z",
			Actor:     Actor{Type: "service", ID: "qtsa"},
			Result:    ResultSuccess,
		}, true},
		{"missing event_type", &Event{
			ID:        "1",
			Timestamp: "2024-01-15T10:00:00Z",
			Actor:     Actor{Type: "service", ID: "qtsa"},
			Result:    ResultSuccess,
		}, true},
		{"missing timestamp", &Event{
			ID:        "1",
			EventType: EventTSASign,
			Actor:     Actor{Type: "service", ID: "qtsa"},
			Result:    ResultSuccess,
		}, true},
		{"missing actor", &Event{
			ID:        "1",
			EventType: EventTSASign,
			Timestamp: "2024-01-15T10:00:00Z",
			Result:    ResultSuccess,
		}, true},
		{"missing result", &Event{
			ID:        "1",
			EventType: EventTSASign,
			Timestamp: "2024-01-15T10:00:00Z",
			Actor:     Actor{Type: "service", ID: "qtsa"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() error = %v", err)
		})
	}
}

func TestU_Event_CanonicalJSON(t *testing.T) {
	event := NewEvent(EventTSASign, ResultSuccess).
		WithObject(Object{Type: "timestamp-token", Serial: "42"})
	event.HashPrev = GenesisHash

	canonical, err := event.CanonicalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(canonical), `"hash":`)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(canonical, &parsed))
	assert.Equal(t, event.ID, parsed["id"])
}

func TestU_Event_WithActorAndRequest(t *testing.T) {
	event := NewEvent(EventTSASign, ResultSuccess).
		WithActor(ServiceActor()).
		WithRequest("req-1", "192.0.2.1:4711")

	assert.Equal(t, "service", event.Actor.Type)
	assert.Equal(t, "qtsa", event.Actor.ID)
	assert.Equal(t, "req-1", event.Context.RequestID)
	assert.Equal(t, "192.0.2.1:4711", event.Context.RemoteAddr)
}

// =============================================================================
// TSA Event Tests
// =============================================================================

func TestU_SignEvent_Granted(t *testing.T) {
	genTime := time.Date(2024, 6, 1, 10, 20, 30, 0, time.UTC)
	event := SignEvent(&domain.TimeStampResponseData{
		Status:         domain.StatusGranted,
		GenerationTime: &genTime,
		SerialNumber:   big.NewInt(4711),
		Request:        domain.TimeStampRequestData{HashAlgorithm: domain.SHA256, TSAPolicyID: "1.2"},
	}, nil)

	assert.Equal(t, EventTSASign, event.EventType)
	assert.Equal(t, ResultSuccess, event.Result)
	assert.Equal(t, "timestamp-token", event.Object.Type)
	assert.Equal(t, "4711", event.Object.Serial)
	assert.Equal(t, "GRANTED", event.Object.Status)
	assert.Equal(t, "SHA256", event.Context.Algorithm)
	assert.Equal(t, "1.2", event.Context.Policy)
	assert.Equal(t, "2024-06-01T10:20:30Z", event.Context.GenTime)
}

func TestU_SignEvent_Rejection(t *testing.T) {
	failure := domain.FailureBadAlgorithm
	event := SignEvent(&domain.TimeStampResponseData{
		Status:      domain.StatusRejection,
		FailureInfo: &failure,
		Request:     domain.TimeStampRequestData{HashAlgorithm: domain.SHA1},
	}, nil)

	assert.Equal(t, ResultSuccess, event.Result)
	assert.Equal(t, "timestamp-response", event.Object.Type)
	assert.Empty(t, event.Object.Serial)
	assert.Equal(t, "REJECTION", event.Object.Status)
	assert.Equal(t, failure.String(), event.Context.Failure)
}

func TestU_SignEvent_Error(t *testing.T) {
	event := SignEvent(nil, errors.New("boom"))
	assert.Equal(t, ResultFailure, event.Result)
	assert.Equal(t, "boom", event.Context.Reason)
}

func TestU_ValidateEvent(t *testing.T) {
	oid := domain.SHA512.OID()
	event := ValidateEvent(&domain.TimeStampValidationResult{
		Status:                  domain.StatusGranted,
		SerialNumber:            big.NewInt(7),
		HashAlgorithmIdentifier: &oid,
		SignedByThisTSA:         true,
	}, nil)
	assert.Equal(t, EventTSAValidate, event.EventType)
	assert.Equal(t, "7", event.Object.Serial)
	assert.Equal(t, "SHA512", event.Context.Algorithm)
	assert.True(t, event.Context.Verified)

	failed := ValidateEvent(nil, errors.New("invalid timestamp response"))
	assert.Equal(t, ResultFailure, failed.Result)
}

func TestU_KeyAccessedEvent(t *testing.T) {
	ok := KeyAccessedEvent("embedded:dev-tsa.p12", "CN=qtsa", nil)
	assert.Equal(t, ResultSuccess, ok.Result)
	assert.Equal(t, "embedded:dev-tsa.p12", ok.Object.Path)

	failed := KeyAccessedEvent("/missing.p12", "", errors.New("not found"))
	assert.Equal(t, ResultFailure, failed.Result)
	assert.Equal(t, "not found", failed.Context.Reason)
}

func TestU_ServeEvent(t *testing.T) {
	event := ServeEvent("0.0.0.0:318", "0.0.0.0:8080")
	assert.Equal(t, EventTSAServe, event.EventType)
	assert.Equal(t, "service", event.Actor.Type)
	assert.Equal(t, "0.0.0.0:318,0.0.0.0:8080", event.Context.Listeners)
	assert.NoError(t, event.Validate())
}

// =============================================================================
// FileWriter Tests
// =============================================================================

func newFileWriter(t *testing.T) (*FileWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewFileWriter(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func TestU_FileWriter_Write(t *testing.T) {
	w, path := newFileWriter(t)

	event1 := NewEvent(EventTSAServe, ResultSuccess)
	require.NoError(t, w.Write(event1))
	assert.Equal(t, GenesisHash, event1.HashPrev)
	assert.True(t, strings.HasPrefix(event1.Hash, HashPrefix))

	event2 := NewEvent(EventTSASign, ResultSuccess)
	require.NoError(t, w.Write(event2))
	assert.Equal(t, event1.Hash, event2.HashPrev)
	assert.Equal(t, event2.Hash, w.LastHash())
	assert.Equal(t, path, w.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestU_FileWriter_Append(t *testing.T) {
	w, path := newFileWriter(t)
	require.NoError(t, w.Write(NewEvent(EventTSASign, ResultSuccess)))
	last := w.LastHash()
	require.NoError(t, w.Close())

	reopened, err := NewFileWriter(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.Equal(t, last, reopened.LastHash())

	event := NewEvent(EventTSAValidate, ResultSuccess)
	require.NoError(t, reopened.Write(event))
	assert.Equal(t, last, event.HashPrev)

	n, err := VerifyChainFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestU_FileWriter_InvalidEvent(t *testing.T) {
	w, _ := newFileWriter(t)
	assert.Error(t, w.Write(&Event{}))
	assert.Equal(t, GenesisHash, w.LastHash())
}

func TestU_FileWriter_InvalidPath(t *testing.T) {
	_, err := NewFileWriter(filepath.Join(t.TempDir(), "missing", "dir", "audit.jsonl"))
	assert.Error(t, err)
}

func TestU_FileWriter_CorruptExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0600))
	_, err := NewFileWriter(path)
	assert.Error(t, err)
}

func TestU_FileWriter_CloseIdempotent(t *testing.T) {
	w, _ := newFileWriter(t)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.Error(t, w.Write(NewEvent(EventTSASign, ResultSuccess)))
}

func TestU_FileWriter_ConcurrentWrites(t *testing.T) {
	w, path := newFileWriter(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Write(NewEvent(EventTSASign, ResultSuccess)))
		}()
	}
	wg.Wait()

	n, err := VerifyChainFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

// =============================================================================
// VerifyChain Tests
// =============================================================================

func TestU_VerifyChain_Tampering(t *testing.T) {
	w, path := newFileWriter(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(NewEvent(EventTSASign, ResultSuccess).
			WithObject(Object{Type: "timestamp-token", Serial: big.NewInt(int64(i)).String()})))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte(`"serial":"1"`), []byte(`"serial":"9"`), 1)
	require.NotEqual(t, data, tampered)

	n, err := VerifyChain(bytes.NewReader(tampered))
	assert.ErrorIs(t, err, ErrChainBroken)
	assert.Equal(t, 1, n)
}

func TestU_VerifyChain_BrokenLink(t *testing.T) {
	w, path := newFileWriter(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(NewEvent(EventTSASign, ResultSuccess)))
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	withoutMiddle := lines[0] + "\n" + lines[2] + "\n"
	_, err = VerifyChain(strings.NewReader(withoutMiddle))
	assert.ErrorIs(t, err, ErrChainBroken)
}

func TestU_VerifyChain_Edge(t *testing.T) {
	n, err := VerifyChain(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = VerifyChain(strings.NewReader("{broken\n"))
	assert.Error(t, err)

	_, err = VerifyChainFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestU_NopWriter(t *testing.T) {
	var w NopWriter
	assert.NoError(t, w.Write(NewEvent(EventTSASign, ResultSuccess)))
	assert.NoError(t, w.Close())
	assert.Equal(t, GenesisHash, w.LastHash())
}
