package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL      = "https://americas.api.riotgames.com"
	DefaultMatchBaseURL = "https://americas.api.riotgames.com"

	tournamentPrefix     = "/lol/tournament/v5"
	tournamentStubPrefix = "/lol/tournament-stub/v5"
	matchPrefix          = "/lol/match/v5/matches"
)

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string // tournament API host
	MatchBaseURL string // regional match-v5 host
	// Stub selects the tournament-stub surface (developer mode). The match
	// API has no stub surface and is always called on MatchBaseURL.
	Stub    bool
	Timeout time.Duration
}

// Client is the HTTP implementation of Provider.
type Client struct {
	baseURL      string
	matchBaseURL string
	prefix       string
	apiKey       string
	HTTPClient   *http.Client
}

var _ Provider = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MatchBaseURL == "" {
		opts.MatchBaseURL = DefaultMatchBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	prefix := tournamentPrefix
	if opts.Stub {
		prefix = tournamentStubPrefix
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		matchBaseURL: strings.TrimRight(opts.MatchBaseURL, "/"),
		prefix:       prefix,
		apiKey:       opts.APIKey,
		HTTPClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

func (c *Client) CreateProvider(ctx context.Context, callbackURL, region string) (int64, error) {
	body := map[string]string{
		"region": region,
		"url":    callbackURL,
	}
	var id int64
	if _, err := c.do(ctx, OpCreateProvider, http.MethodPost, c.baseURL+c.prefix+"/providers", body, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) CreateTournament(ctx context.Context, name string, providerID int64) (int64, error) {
	body := map[string]any{
		"name":       name,
		"providerId": providerID,
	}
	var id int64
	if _, err := c.do(ctx, OpCreateTournament, http.MethodPost, c.baseURL+c.prefix+"/tournaments", body, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) CreateMatchCodes(ctx context.Context, req CodeRequest) ([]string, error) {
	if req.PickType == "" {
		req.PickType = DefaultPickType
	}
	if req.SpectatorType == "" {
		req.SpectatorType = DefaultSpectatorType
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	q := url.Values{}
	q.Set("tournamentId", strconv.FormatInt(req.TournamentID, 10))
	q.Set("count", strconv.Itoa(req.Count))
	endpoint := c.baseURL + c.prefix + "/codes?" + q.Encode()

	var codes []string
	if _, err := c.do(ctx, OpCreateMatchCodes, http.MethodPost, endpoint, req, &codes); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, &Error{Op: OpCreateMatchCodes, Err: errors.New("provider issued no codes")}
	}
	return codes, nil
}

type lobbyEventsResponse struct {
	EventList []struct {
		EventType  string `json:"eventType"`
		Puuid      string `json:"puuid"`
		SummonerID string `json:"summonerId"`
		Timestamp  string `json:"timestamp"` // epoch millis as a string
	} `json:"eventList"`
}

func (c *Client) LobbyEvents(ctx context.Context, code string) ([]LobbyEvent, error) {
	endpoint := c.baseURL + c.prefix + "/lobby-events/by-code/" + url.PathEscape(code)

	var resp lobbyEventsResponse
	if _, err := c.do(ctx, OpLobbyEvents, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	events := make([]LobbyEvent, 0, len(resp.EventList))
	for _, e := range resp.EventList {
		ev := LobbyEvent{Type: e.EventType, Subject: e.Puuid}
		if ev.Subject == "" {
			ev.Subject = e.SummonerID
		}
		if ms, err := strconv.ParseInt(e.Timestamp, 10, 64); err == nil {
			ev.Timestamp = time.UnixMilli(ms).UTC()
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) MatchIDs(ctx context.Context, code string) ([]string, error) {
	endpoint := fmt.Sprintf("%s%s/by-tournament-code/%s/ids", c.matchBaseURL, matchPrefix, url.PathEscape(code))

	var ids []string
	found, err := c.do(ctx, OpMatchIDs, http.MethodGet, endpoint, nil, &ids)
	if err != nil {
		return nil, err
	}
	if !found || ids == nil {
		return []string{}, nil
	}
	return ids, nil
}

// MatchResult fetches the match-v5 payload. match-v5 addresses matches by id
// only; the tournament API key grants access to matches played with its
// codes, so code is not part of the request.
func (c *Client) MatchResult(ctx context.Context, matchID, code string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s%s/%s", c.matchBaseURL, matchPrefix, url.PathEscape(matchID))

	var raw json.RawMessage
	found, err := c.do(ctx, OpMatchResult, http.MethodGet, endpoint, nil, &raw)
	if err != nil {
		return nil, err
	}
	if !found || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// do performs one request. For operations where a 404 means "nothing yet"
// (see notFoundIsEmpty) it is reported as found == false with no error; every
// other non-2xx answer, including a 404 elsewhere, becomes an *Error.
func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) (found bool, err error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return false, &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return false, &Error{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("X-Riot-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, &Error{Op: op, Temporary: isTemporary(err), Err: err}
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound && notFoundIsEmpty(op):
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return false, &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Temporary:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:        errors.New(text),
		}
	}

	if out == nil {
		return true, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// a body cut short by the deadline is still a timeout
		return false, &Error{Op: op, StatusCode: resp.StatusCode, Temporary: isTemporary(err), Err: fmt.Errorf("decode response: %w", err)}
	}
	return true, nil
}

// notFoundIsEmpty lists the lookups whose 404 means the match is not
// recorded yet. A 404 on lobby events means an unknown code.
func notFoundIsEmpty(op string) bool {
	return op == OpMatchIDs || op == OpMatchResult
}

func isTemporary(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
