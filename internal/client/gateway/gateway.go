package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/pkg/protocol"
)

// ErrDuplicateRequest is returned when a dedup-guarded operation has
// already been attempted this session. Callers treat it as "nothing to
// do", not a failure.
var ErrDuplicateRequest = errors.New("duplicate request suppressed")

// ErrAlreadyInRoom classifies the create-room rejection meaning an
// earlier, indistinguishable attempt already succeeded. Non-fatal.
var ErrAlreadyInRoom = errors.New("already in a game room")

// APIError is a non-2xx response with the server's message attached.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Gateway is the fixed set of request/response operations against the
// game server.
type Gateway interface {
	CreateRoom(ctx context.Context, userID string) (string, error)
	FindRandomGame(ctx context.Context, userID string) (protocol.FindRandomGameResponse, error)
	FetchProblem(ctx context.Context, roomCode, userID string, difficulty protocol.Difficulty) (protocol.Question, error)
	SubmitSolution(ctx context.Context, req protocol.SubmitSolutionRequest) (protocol.SubmitSolutionResponse, error)
	SkipProblem(ctx context.Context, roomCode, userID string) error
	FetchLeaderboard(ctx context.Context) ([]protocol.LeaderboardEntry, error)
	FetchHistory(ctx context.Context, userID string) ([]protocol.HistoryEntry, error)
}

type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool // dedup keys, held for the gateway's lifetime
}

func NewHTTPGateway(baseURL string, log zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("component", "gateway").Logger(),
		inflight: make(map[string]bool),
	}
}

// CreateRoom is guarded by a dedup key (user id + intent) held for the
// gateway's lifetime: a second invocation is suppressed outright. The
// guard is re-armed only on failures other than "already in a game
// room", which is taken to mean a prior attempt succeeded.
func (g *HTTPGateway) CreateRoom(ctx context.Context, userID string) (string, error) {
	key := userID + ":create-room"
	if !g.acquire(key) {
		g.log.Debug().Str("user_id", userID).Msg("create-room suppressed by dedup guard")
		return "", ErrDuplicateRequest
	}

	var resp protocol.CreateRoomResponse
	err := g.post(ctx, "/api/create-room", protocol.CreateRoomRequest{UserID: userID}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "already in a game room") {
			return "", ErrAlreadyInRoom
		}
		g.release(key)
		return "", err
	}
	return resp.RoomCode, nil
}

func (g *HTTPGateway) FindRandomGame(ctx context.Context, userID string) (protocol.FindRandomGameResponse, error) {
	var resp protocol.FindRandomGameResponse
	err := g.post(ctx, "/api/find-random-game", protocol.FindRandomGameRequest{UserID: userID}, &resp)
	return resp, err
}

func (g *HTTPGateway) FetchProblem(ctx context.Context, roomCode, userID string, difficulty protocol.Difficulty) (protocol.Question, error) {
	var resp protocol.Question
	err := g.post(ctx, "/api/get-problem", protocol.GetProblemRequest{
		RoomCode:   roomCode,
		UserID:     userID,
		Difficulty: difficulty,
	}, &resp)
	return resp, err
}

func (g *HTTPGateway) SubmitSolution(ctx context.Context, req protocol.SubmitSolutionRequest) (protocol.SubmitSolutionResponse, error) {
	var resp protocol.SubmitSolutionResponse
	err := g.post(ctx, "/api/submit-solution", req, &resp)
	return resp, err
}

func (g *HTTPGateway) SkipProblem(ctx context.Context, roomCode, userID string) error {
	return g.post(ctx, "/api/skip-problem", protocol.SkipProblemRequest{RoomCode: roomCode, UserID: userID}, nil)
}

func (g *HTTPGateway) FetchLeaderboard(ctx context.Context) ([]protocol.LeaderboardEntry, error) {
	var resp []protocol.LeaderboardEntry
	err := g.get(ctx, "/api/leaderboard", &resp)
	return resp, err
}

func (g *HTTPGateway) FetchHistory(ctx context.Context, userID string) ([]protocol.HistoryEntry, error) {
	var resp []protocol.HistoryEntry
	err := g.get(ctx, "/api/game-history?user_id="+url.QueryEscape(userID), &resp)
	return resp, err
}

func (g *HTTPGateway) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[key] {
		return false
	}
	g.inflight[key] = true
	return true
}

func (g *HTTPGateway) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

func (g *HTTPGateway) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return g.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), out)
}

func (g *HTTPGateway) get(ctx context.Context, endpoint string, out any) error {
	return g.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr protocol.APIError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		g.log.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Str("message", msg).Msg("request failed")
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
