// Package provider talks to the match-hosting provider (the Riot Games
// tournament API). It owns no state: every call is a single blocking
// request and nothing is retried here.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Provider is the contract the orchestration engine depends on.
type Provider interface {
	CreateProvider(ctx context.Context, callbackURL, region string) (int64, error)
	CreateTournament(ctx context.Context, name string, providerID int64) (int64, error)
	// CreateMatchCodes may issue several codes; callers use the first.
	CreateMatchCodes(ctx context.Context, req CodeRequest) ([]string, error)
	LobbyEvents(ctx context.Context, code string) ([]LobbyEvent, error)
	// MatchIDs returns an empty slice while no match was played with code.
	MatchIDs(ctx context.Context, code string) ([]string, error)
	// MatchResult returns nil when the provider has no result for matchID yet.
	MatchResult(ctx context.Context, matchID, code string) (json.RawMessage, error)
}

// CodeRequest describes the match a join code is issued for.
type CodeRequest struct {
	TournamentID  int64  `json:"-"`
	Count         int    `json:"-"`
	MapType       string `json:"mapType"`
	Metadata      string `json:"metadata,omitempty"`
	PickType      string `json:"pickType"`
	SpectatorType string `json:"spectatorType"`
	TeamSize      int    `json:"teamSize"`
}

// Defaults used when a CodeRequest leaves the field empty.
const (
	DefaultPickType      = "TOURNAMENT_DRAFT"
	DefaultSpectatorType = "ALL"
)

// LobbyEvent is one entry of the lobby event feed of a join code.
type LobbyEvent struct {
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
}

// Lobby event types reported by the provider.
const (
	EventPracticeGameCreated   = "PracticeGameCreatedEvent"
	EventPlayerJoinedGame      = "PlayerJoinedGameEvent"
	EventPlayerQuitGame        = "PlayerQuitGameEvent"
	EventChampSelectStarted    = "ChampSelectStartedEvent"
	EventGameAllocationStarted = "GameAllocationStartedEvent"
	EventGameAllocatedToLsm    = "GameAllocatedToLsmEvent"
)

// SignalsStart reports whether the event means the game left the lobby.
func (e LobbyEvent) SignalsStart() bool {
	return e.Type == EventGameAllocationStarted || e.Type == EventGameAllocatedToLsm
}

// HasStartEvent reports whether any event in the feed signals a start.
func HasStartEvent(events []LobbyEvent) bool {
	for _, e := range events {
		if e.SignalsStart() {
			return true
		}
	}
	return false
}

// Operation names, used in Error.Op and by Memory.FailNext.
const (
	OpCreateProvider   = "create provider"
	OpCreateTournament = "create tournament"
	OpCreateMatchCodes = "create match codes"
	OpLobbyEvents      = "lobby events"
	OpMatchIDs         = "match ids"
	OpMatchResult      = "match result"
)

var (
	// ErrTransient matches errors worth retrying on a later cycle: network
	// failures, timeouts, throttling and 5xx answers.
	ErrTransient = errors.New("transient provider failure")
	// ErrPermanent matches rejected requests (invalid input, unknown code,
	// bad credentials) and undecodable answers.
	ErrPermanent = errors.New("permanent provider failure")
)

// Error describes a failed provider call.
type Error struct {
	Op         string
	StatusCode int // 0 when no HTTP answer was received
	Temporary  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTransient / ErrPermanent by classification.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Temporary
	case ErrPermanent:
		return !e.Temporary
	}
	return false
}

// IsTransient is shorthand for errors.Is(err, ErrTransient).
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
