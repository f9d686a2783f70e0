package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Provider with the same contract as Client. Lobby
// events and match results are injected by the caller (tests, or a local
// run with PROVIDER_BACKEND=memory).
type Memory struct {
	mu sync.Mutex

	nextID      int64
	nextCode    int
	codes       map[string]CodeRequest
	events      map[string][]LobbyEvent
	matches     map[string][]string
	results     map[string]json.RawMessage
	failures    map[string]error // keyed by operation name
	tournaments map[int64]string
}

var _ Provider = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nextID:      1000,
		codes:       make(map[string]CodeRequest),
		events:      make(map[string][]LobbyEvent),
		matches:     make(map[string][]string),
		results:     make(map[string]json.RawMessage),
		failures:    make(map[string]error),
		tournaments: make(map[int64]string),
	}
}

// FailNext makes the next call of op return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// PushLobbyEvent appends an event to the feed of code.
func (m *Memory) PushLobbyEvent(code, eventType, subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[code] = append(m.events[code], LobbyEvent{
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	})
}

// CompleteMatch records a finished match for code with the given payload.
func (m *Memory) CompleteMatch(code, matchID string, result json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[code] = append(m.matches[code], matchID)
	m.results[matchID] = result
}

// Codes returns the requests issued so far, keyed by join code.
func (m *Memory) Codes() map[string]CodeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CodeRequest, len(m.codes))
	for k, v := range m.codes {
		out[k] = v
	}
	return out
}

func (m *Memory) takeFailure(op string) error {
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

func (m *Memory) CreateProvider(ctx context.Context, callbackURL, region string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpCreateProvider); err != nil {
		return 0, err
	}
	m.nextID++
	return m.nextID, nil
}

func (m *Memory) CreateTournament(ctx context.Context, name string, providerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpCreateTournament); err != nil {
		return 0, err
	}
	m.nextID++
	m.tournaments[m.nextID] = name
	return m.nextID, nil
}

func (m *Memory) CreateMatchCodes(ctx context.Context, req CodeRequest) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpCreateMatchCodes); err != nil {
		return nil, err
	}
	if _, ok := m.tournaments[req.TournamentID]; !ok {
		return nil, &Error{Op: OpCreateMatchCodes, StatusCode: 400, Err: fmt.Errorf("unknown tournament %d", req.TournamentID)}
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		m.nextCode++
		code := fmt.Sprintf("NA%04d-%d", m.nextCode, req.TournamentID)
		m.codes[code] = req
		codes = append(codes, code)
	}
	return codes, nil
}

func (m *Memory) LobbyEvents(ctx context.Context, code string) ([]LobbyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpLobbyEvents); err != nil {
		return nil, err
	}
	if _, ok := m.codes[code]; !ok {
		return nil, &Error{Op: OpLobbyEvents, StatusCode: 404, Err: fmt.Errorf("unknown code %s", code)}
	}
	return append([]LobbyEvent{}, m.events[code]...), nil
}

func (m *Memory) MatchIDs(ctx context.Context, code string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpMatchIDs); err != nil {
		return nil, err
	}
	return append([]string{}, m.matches[code]...), nil
}

func (m *Memory) MatchResult(ctx context.Context, matchID, code string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpMatchResult); err != nil {
		return nil, err
	}
	return m.results[matchID], nil
}
