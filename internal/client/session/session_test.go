package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noazlee/code-off/internal/client/gateway"
	"github.com/noazlee/code-off/internal/client/transport"
	"github.com/noazlee/code-off/pkg/protocol"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond

// fakeChannel dispatches pushed events synchronously to registered
// handlers and records everything emitted.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string][]transport.Handler
	emitted  []emittedEvent
	closed   bool
}

type emittedEvent struct {
	event   string
	payload any
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]transport.Handler)}
}

func (c *fakeChannel) On(event string, h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

func (c *fakeChannel) Connect(ctx context.Context) error {
	c.push(transport.EvtConnect, nil)
	return nil
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, emittedEvent{event: event, payload: payload})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) push(event string, data any) {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	c.mu.Lock()
	hs := append([]transport.Handler(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (c *fakeChannel) emittedEvents(event string) []emittedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []emittedEvent
	for _, e := range c.emitted {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeGateway returns scripted results and records calls.
type fakeGateway struct {
	mu sync.Mutex

	createRoomCode string
	createRoomErr  error
	problem        protocol.Question
	problemErr     error
	submitResp     protocol.SubmitSolutionResponse
	submitErr      error
	skipErr        error

	calls []string
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
}

func (g *fakeGateway) callCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGateway) CreateRoom(ctx context.Context, userID string) (string, error) {
	g.record("createRoom")
	return g.createRoomCode, g.createRoomErr
}

func (g *fakeGateway) FindRandomGame(ctx context.Context, userID string) (protocol.FindRandomGameResponse, error) {
	g.record("findRandomGame")
	return protocol.FindRandomGameResponse{}, nil
}

func (g *fakeGateway) FetchProblem(ctx context.Context, roomCode, userID string, d protocol.Difficulty) (protocol.Question, error) {
	g.record("fetchProblem")
	return g.problem, g.problemErr
}

func (g *fakeGateway) SubmitSolution(ctx context.Context, req protocol.SubmitSolutionRequest) (protocol.SubmitSolutionResponse, error) {
	g.record("submitSolution")
	return g.submitResp, g.submitErr
}

func (g *fakeGateway) SkipProblem(ctx context.Context, roomCode, userID string) error {
	g.record("skipProblem")
	return g.skipErr
}

func (g *fakeGateway) FetchLeaderboard(ctx context.Context) ([]protocol.LeaderboardEntry, error) {
	g.record("fetchLeaderboard")
	return nil, nil
}

func (g *fakeGateway) FetchHistory(ctx context.Context, userID string) ([]protocol.HistoryEntry, error) {
	g.record("fetchHistory")
	return nil, nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newTestSession(t *testing.T, cfg Config, gw *fakeGateway, ch *fakeChannel) (*Session, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := New(cfg, gw, ch, clock, zerolog.Nop())
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s, clock
}

func TestCreatorFlow_CreateRoomThenJoinThenWaiting(t *testing.T) {
	gw := &fakeGateway{createRoomCode: "AB12CD"}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "self", IsCreator: true}, gw, ch)

	require.Eventually(t, func() bool {
		return len(ch.emittedEvents(protocol.EvtJoinGame)) == 1
	}, waitFor, tick)

	join := ch.emittedEvents(protocol.EvtJoinGame)[0].payload.(protocol.JoinGamePayload)
	require.Equal(t, "AB12CD", join.RoomCode)
	require.Equal(t, "self", join.UserID)

	ch.push(protocol.EvtWaitingForPlayer, protocol.WaitingForPlayerPayload{})
	v := s.View()
	require.Equal(t, StatusWaitingForOpponent, v.Status)
	require.Equal(t, "AB12CD", v.RoomCode)
	require.Equal(t, RoleCreator, v.Role)
}

func TestJoinerFlow_JoinsWithSuppliedCode(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	_, _ = newTestSession(t, Config{UserID: "u2", RoomCode: "ZZ99XX"}, gw, ch)

	require.Eventually(t, func() bool {
		return len(ch.emittedEvents(protocol.EvtJoinGame)) == 1
	}, waitFor, tick)
	require.Zero(t, gw.callCount("createRoom"))
}

func TestCreatorFlow_AlreadyInRoomIsSwallowed(t *testing.T) {
	gw := &fakeGateway{createRoomErr: gateway.ErrAlreadyInRoom}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "self", IsCreator: true}, gw, ch)

	require.Eventually(t, func() bool {
		return gw.callCount("createRoom") == 1
	}, waitFor, tick)

	v := s.View()
	require.Empty(t, v.Notifications[NotifyError])
}

func TestCreatorFlow_CreateFailureSurfacesError(t *testing.T) {
	gw := &fakeGateway{createRoomErr: errors.New("boom")}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "self", IsCreator: true}, gw, ch)

	require.Eventually(t, func() bool {
		return s.View().Notifications[NotifyError] != ""
	}, waitFor, tick)
	require.Empty(t, ch.emittedEvents(protocol.EvtJoinGame))
}

func TestGameReady_CapturesRosterHealthAndStart(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtGameReady, protocol.GameReadyPayload{
		Players:      []string{"u1", "u2"},
		DisplayNames: map[string]string{"u1": "alice", "u2": "bob"},
		Health:       map[string]int{"u1": 100, "u2": 100},
		StartedAt:    1700000000,
	})

	v := s.View()
	require.Equal(t, StatusActive, v.Status)
	require.Equal(t, []string{"u1", "u2"}, v.Players)
	require.Equal(t, map[string]int{"u1": 100, "u2": 100}, v.Health)
	require.Equal(t, "bob", v.Names["u2"])
	require.Equal(t, time.Unix(1700000000, 0), v.StartedAt)
}

func TestHealthFold_LastWritePerParticipantWins(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtGameReady, protocol.GameReadyPayload{
		Players: []string{"u1", "u2"},
		Health:  map[string]int{"u1": 100, "u2": 100},
	})

	updates := []protocol.UpdatePlayerHealthPayload{
		{UserID: "u2", Health: 90},
		{UserID: "u1", Health: 80},
		{UserID: "u2", Health: 70},
		{UserID: "u2", Health: 40},
		{UserID: "u1", Health: 75},
	}
	for _, u := range updates {
		ch.push(protocol.EvtUpdatePlayerHealth, u)
	}

	v := s.View()
	require.Equal(t, map[string]int{"u1": 75, "u2": 40}, v.Health)
}

func TestSpectator_RoleComesFromEventNotRosterSize(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "watcher", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtJoinedAsSpectator, protocol.JoinedAsSpectatorPayload{
		Players: []string{"a", "b"},
		Health:  map[string]int{"a": 60, "b": 100},
		Code:    map[string]string{"a": "left code", "b": "right code"},
		ActiveQuestions: map[string]protocol.Question{
			"a": {ProblemID: "two-sum", Title: "Two Sum"},
		},
	})

	v := s.View()
	require.Equal(t, RoleSpectator, v.Role)
	require.Equal(t, StatusSpectating, v.Status)
	require.Equal(t, "left code", v.LeftCode)
	require.Equal(t, "right code", v.RightCode)
	require.Equal(t, 60, v.Health["a"])
}

func TestGameReady_AfterRejoinResumesWaitingClients(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ready := protocol.GameReadyPayload{
		Players: []string{"u1", "u2"},
		Health:  map[string]int{"u1": 70, "u2": 100},
	}
	ch.push(protocol.EvtGameReady, ready)
	ch.push(protocol.EvtPlayerDisconnected, protocol.PlayerDisconnectedPayload{UserID: "u2"})
	require.Equal(t, StatusWaitingForOpponent, s.View().Status)

	// The opponent came back; the room re-announces the game.
	ch.push(protocol.EvtGameReady, ready)
	require.Equal(t, StatusActive, s.View().Status)
}

func TestGameReady_SpectatorStaysSpectating(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "watcher", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtJoinedAsSpectator, protocol.JoinedAsSpectatorPayload{
		Players: []string{"a", "b"},
		Health:  map[string]int{"a": 50, "b": 100},
	})
	ch.push(protocol.EvtPlayerDisconnected, protocol.PlayerDisconnectedPayload{UserID: "a"})
	require.Equal(t, StatusWaitingForOpponent, s.View().Status)

	ch.push(protocol.EvtGameReady, protocol.GameReadyPayload{
		Players: []string{"a", "b"},
		Health:  map[string]int{"a": 50, "b": 100},
	})

	v := s.View()
	require.Equal(t, RoleSpectator, v.Role)
	require.Equal(t, StatusSpectating, v.Status)
}

func TestGameOver_HandsOffResultVerbatim(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u2", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtGameOver, protocol.GameOverPayload{
		WinnerID:          "u1",
		LoserID:           "u2",
		QuestionsAnswered: map[string]int{"u1": 3, "u2": 1},
		FinalHealth:       map[string]int{"u1": 40, "u2": 0},
	})

	select {
	case h := <-s.Handoffs():
		require.Equal(t, HandoffResults, h.Target)
		require.NotNil(t, h.Result)
		require.Equal(t, "u1", h.Result.WinnerID)
		require.Equal(t, "u2", h.Result.LoserID)
		require.Equal(t, map[string]int{"u1": 3, "u2": 1}, h.Result.QuestionsAnswered)
		require.Equal(t, map[string]int{"u1": 40, "u2": 0}, h.Result.FinalHealth)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for results handoff")
	}
	require.Equal(t, StatusTerminated, s.View().Status)
}

func TestPlayerLeft_NotifiesThenHandsOffHomeAfterDelay(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, clock := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtGameReady, protocol.GameReadyPayload{
		Players: []string{"u1", "u2"},
		Health:  map[string]int{"u1": 100, "u2": 100},
	})
	ch.push(protocol.EvtPlayerLeft, protocol.PlayerLeftPayload{UserID: "u2"})

	v := s.View()
	require.Equal(t, StatusTerminated, v.Status)
	require.NotEmpty(t, v.Notifications[NotifyError])

	select {
	case <-s.Handoffs():
		t.Fatal("handoff fired before the delay elapsed")
	default:
	}

	clock.Advance(opponentLeftDelay)

	select {
	case h := <-s.Handoffs():
		require.Equal(t, HandoffHome, h.Target)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for home handoff")
	}
}

func TestPlayerDisconnected_RetainsStateAndWarns(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtGameReady, protocol.GameReadyPayload{
		Players: []string{"u1", "u2"},
		Health:  map[string]int{"u1": 80, "u2": 90},
	})
	ch.push(protocol.EvtOpponentCodeUpdate, protocol.CodeUpdatePayload{UserID: "u2", Code: "opp code"})
	require.Equal(t, "opp code", s.View().OpponentCode)

	ch.push(protocol.EvtPlayerDisconnected, protocol.PlayerDisconnectedPayload{UserID: "u2"})

	v := s.View()
	require.Equal(t, StatusWaitingForOpponent, v.Status)
	require.Equal(t, map[string]int{"u1": 80, "u2": 90}, v.Health)
	require.Equal(t, []string{"u1", "u2"}, v.Players)
	require.Empty(t, v.OpponentCode)
	require.NotEmpty(t, v.Notifications[NotifyConnectionWarning])
}

func TestDisconnect_IsRecoverableWarning(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtGameReady, protocol.GameReadyPayload{
		Players: []string{"u1", "u2"},
		Health:  map[string]int{"u1": 50, "u2": 60},
	})
	ch.push(transport.EvtDisconnect, nil)

	v := s.View()
	require.Equal(t, ConnDisconnected, v.Conn)
	require.NotEmpty(t, v.Notifications[NotifyConnectionWarning])
	// No data discarded.
	require.Equal(t, map[string]int{"u1": 50, "u2": 60}, v.Health)
}

func TestServerErrorEvent_SurfacedVerbatim(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	ch.push(protocol.EvtError, protocol.ErrorPayload{Message: "room not found"})
	require.Equal(t, "room not found", s.View().Notifications[NotifyError])
}

func TestLeave_EmitsLeaveOnceAndHandsOffHome(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, clock := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	require.Eventually(t, func() bool {
		return len(ch.emittedEvents(protocol.EvtJoinGame)) == 1
	}, waitFor, tick)

	s.Leave()
	require.Eventually(t, func() bool {
		return len(ch.emittedEvents(protocol.EvtLeaveGame)) == 1
	}, waitFor, tick)
	require.Equal(t, StatusTerminated, s.View().Status)

	clock.Advance(leaveFlushDelay)
	select {
	case h := <-s.Handoffs():
		require.Equal(t, HandoffHome, h.Target)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for home handoff")
	}

	// Teardown must not send a second leave.
	s.Close()
	require.Len(t, ch.emittedEvents(protocol.EvtLeaveGame), 1)
}

func TestClose_EmitsLeaveExactlyOnce(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	require.Eventually(t, func() bool {
		return len(ch.emittedEvents(protocol.EvtJoinGame)) == 1
	}, waitFor, tick)

	s.Close()
	s.Close()

	require.Len(t, ch.emittedEvents(protocol.EvtLeaveGame), 1)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.True(t, ch.closed)
}

func TestMalformedPayload_IsDroppedWithoutTransition(t *testing.T) {
	gw := &fakeGateway{}
	ch := newFakeChannel()
	s, _ := newTestSession(t, Config{UserID: "u1", RoomCode: "R"}, gw, ch)

	before := s.View().Status
	ch.push(protocol.EvtGameReady, "not an object")
	require.Equal(t, before, s.View().Status)
}
