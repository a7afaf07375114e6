package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/internal/client/gateway"
	"github.com/noazlee/code-off/internal/client/transport"
	"github.com/noazlee/code-off/pkg/protocol"
)

type Role string

const (
	RoleCreator   Role = "creator"
	RoleJoiner    Role = "joiner"
	RoleSpectator Role = "spectator"
)

type Status string

const (
	StatusInitializing       Status = "initializing"
	StatusConnecting         Status = "connecting"
	StatusWaitingForOpponent Status = "waiting_for_opponent"
	StatusActive             Status = "active"
	StatusSpectating         Status = "spectating"
	StatusTerminated         Status = "terminated"
)

type ConnStatus string

const (
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
	ConnErrored      ConnStatus = "errored"
)

type HandoffTarget string

const (
	HandoffHome    HandoffTarget = "home"
	HandoffResults HandoffTarget = "results"
)

// GameResult is the terminal summary handed to the external results view.
type GameResult struct {
	WinnerID          string
	LoserID           string
	QuestionsAnswered map[string]int
	FinalHealth       map[string]int
}

type Handoff struct {
	Target HandoffTarget
	Result *GameResult
}

const (
	notificationTTL   = 2 * time.Second
	opponentLeftDelay = 3 * time.Second
	leaveFlushDelay   = 500 * time.Millisecond
)

// Config identifies the local participant and how they enter the room.
// A Creator with no RoomCode provisions one; a Creator with a RoomCode
// was assigned it by random matchmaking; a Joiner always supplies one.
type Config struct {
	UserID      string
	DisplayName string
	IsCreator   bool
	RoomCode    string
}

// Session owns the room membership: connection, role, roster, health,
// code mirrors, active questions, and notifications. All of it is
// mutated by exactly one goroutine, the loop below; everything else
// talks to the session through its inbox.
type Session struct {
	cfg   Config
	gw    gateway.Gateway
	ch    transport.Channel
	clock clockwork.Clock
	log   zerolog.Logger

	inbox    chan msg
	stopped  chan struct{}
	handoffs chan Handoff
	stopOnce sync.Once

	// Loop-owned state. Never touched outside the loop goroutine.
	status    Status
	conn      ConnStatus
	role      Role
	roomCode  string
	players   []string
	names     map[string]string
	health    map[string]int
	buffers   map[string]string
	questions map[string]*protocol.Question
	startedAt time.Time

	joined   bool
	leftSent bool
	fetching bool
	hardMode bool

	notifs      map[NotificationKind]notification
	notifTimers map[NotificationKind]clockwork.Timer
	notifSeq    uint64
}

type msg interface{ isSessionMsg() }

// User intents.
type editCodeMsg struct{ code string }
type selectDifficultyMsg struct{ difficulty protocol.Difficulty }
type submitMsg struct{}
type skipMsg struct{}
type setHardModeMsg struct{ on bool }
type leaveMsg struct{}
type shutdownMsg struct{}

// Inbound channel traffic, forwarded untouched by the transport
// handlers so the loop always reads current state when reacting.
type inboundEventMsg struct {
	name string
	data json.RawMessage
}

// Gateway completions, posted back from call goroutines.
type createRoomResultMsg struct {
	roomCode string
	err      error
}
type problemResultMsg struct {
	question protocol.Question
	err      error
}
type submitResultMsg struct {
	resp protocol.SubmitSolutionResponse
	err  error
}
type skipResultMsg struct{ err error }

// Timer fires.
type notifExpiredMsg struct {
	kind NotificationKind
	seq  uint64
}
type handoffDueMsg struct{ handoff Handoff }

type getViewMsg struct{ reply chan View }

func (editCodeMsg) isSessionMsg()         {}
func (selectDifficultyMsg) isSessionMsg() {}
func (submitMsg) isSessionMsg()           {}
func (skipMsg) isSessionMsg()             {}
func (setHardModeMsg) isSessionMsg()      {}
func (leaveMsg) isSessionMsg()            {}
func (shutdownMsg) isSessionMsg()         {}
func (inboundEventMsg) isSessionMsg()     {}
func (createRoomResultMsg) isSessionMsg() {}
func (problemResultMsg) isSessionMsg()    {}
func (submitResultMsg) isSessionMsg()     {}
func (skipResultMsg) isSessionMsg()       {}
func (notifExpiredMsg) isSessionMsg()     {}
func (handoffDueMsg) isSessionMsg()       {}
func (getViewMsg) isSessionMsg()          {}

func New(cfg Config, gw gateway.Gateway, ch transport.Channel, clock clockwork.Clock, log zerolog.Logger) *Session {
	role := RoleJoiner
	if cfg.IsCreator {
		role = RoleCreator
	}
	return &Session{
		cfg:         cfg,
		gw:          gw,
		ch:          ch,
		clock:       clock,
		log:         log.With().Str("component", "session").Str("user_id", cfg.UserID).Logger(),
		inbox:       make(chan msg, 64),
		stopped:     make(chan struct{}),
		handoffs:    make(chan Handoff, 4),
		status:      StatusInitializing,
		conn:        ConnConnecting,
		role:        role,
		roomCode:    cfg.RoomCode,
		names:       make(map[string]string),
		health:      make(map[string]int),
		buffers:     make(map[string]string),
		questions:   make(map[string]*protocol.Question),
		notifs:      make(map[NotificationKind]notification),
		notifTimers: make(map[NotificationKind]clockwork.Timer),
	}
}

// Start registers channel handlers, kicks off the connect and (for a
// fresh Creator) room provisioning, and runs the loop. Handlers are
// registered before Connect so no event can slip past the registry.
func (s *Session) Start(ctx context.Context) {
	inbound := []string{
		protocol.EvtConnected,
		protocol.EvtJoinedAsSpectator,
		protocol.EvtWaitingForPlayer,
		protocol.EvtGameReady,
		protocol.EvtOpponentCodeUpdate,
		protocol.EvtUpdatePlayerHealth,
		protocol.EvtGameOver,
		protocol.EvtPlayerSelectedQuestion,
		protocol.EvtPlayerAnsweredQuestion,
		protocol.EvtSolutionVerified,
		protocol.EvtPlayerLeft,
		protocol.EvtPlayerDisconnected,
		protocol.EvtError,
		transport.EvtConnect,
		transport.EvtDisconnect,
		transport.EvtConnectError,
	}
	for _, name := range inbound {
		name := name
		s.ch.On(name, func(data json.RawMessage) {
			s.post(inboundEventMsg{name: name, data: data})
		})
	}

	s.status = StatusConnecting
	go func() {
		// Failure surfaces through the connect_error handler.
		_ = s.ch.Connect(ctx)
	}()

	if s.role == RoleCreator && s.roomCode == "" {
		go func() {
			code, err := s.gw.CreateRoom(ctx, s.cfg.UserID)
			s.post(createRoomResultMsg{roomCode: code, err: err})
		}()
	}

	go s.loop()
}

// Handoffs delivers at most one terminal hand-off to the embedding UI.
func (s *Session) Handoffs() <-chan Handoff { return s.handoffs }

func (s *Session) EditCode(code string) { s.post(editCodeMsg{code: code}) }

func (s *Session) SelectDifficulty(d protocol.Difficulty) {
	s.post(selectDifficultyMsg{difficulty: d})
}

func (s *Session) Submit()             { s.post(submitMsg{}) }
func (s *Session) Skip()               { s.post(skipMsg{}) }
func (s *Session) SetHardMode(on bool) { s.post(setHardModeMsg{on: on}) }
func (s *Session) Leave()              { s.post(leaveMsg{}) }

// Close tears the session down exactly once: the leave event is flushed
// if a room membership exists, the channel is closed, and all timers
// are stopped. Safe to call from any goroutine, any number of times.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		select {
		case s.inbox <- shutdownMsg{}:
			<-s.stopped
		case <-s.stopped:
		}
	})
}

// post delivers a message to the loop, dropping it if the session has
// already stopped. Late gateway responses land here as harmless no-ops.
func (s *Session) post(m msg) {
	select {
	case s.inbox <- m:
	case <-s.stopped:
	}
}

func (s *Session) loop() {
	defer close(s.stopped)
	for m := range s.inbox {
		switch mm := m.(type) {
		case inboundEventMsg:
			s.handleInbound(mm.name, mm.data)
		case createRoomResultMsg:
			s.handleCreateRoomResult(mm)
		case editCodeMsg:
			s.handleEditCode(mm.code)
		case selectDifficultyMsg:
			s.handleSelectDifficulty(mm.difficulty)
		case problemResultMsg:
			s.handleProblemResult(mm)
		case submitMsg:
			s.handleSubmit()
		case submitResultMsg:
			s.handleSubmitResult(mm)
		case skipMsg:
			s.handleSkip()
		case skipResultMsg:
			s.handleSkipResult(mm)
		case setHardModeMsg:
			s.hardMode = mm.on
		case leaveMsg:
			s.handleLeave()
		case notifExpiredMsg:
			s.handleNotifExpired(mm)
		case handoffDueMsg:
			s.emitHandoff(mm.handoff)
		case getViewMsg:
			mm.reply <- s.view()
		case shutdownMsg:
			s.teardown()
			return
		}
	}
}

func (s *Session) handleCreateRoomResult(m createRoomResultMsg) {
	switch {
	case m.err == nil:
		s.setRoomCode(m.roomCode)
		s.maybeJoin()
	case m.err == gateway.ErrDuplicateRequest:
		// A prior invocation owns this intent; nothing to surface.
	case m.err == gateway.ErrAlreadyInRoom:
		// Room creation succeeded on an earlier, indistinguishable
		// attempt. Proceed and let the join events catch us up.
		s.log.Debug().Msg("create-room reported existing membership, continuing")
		s.maybeJoin()
	default:
		s.log.Warn().Err(m.err).Msg("create-room failed")
		s.notify(NotifyError, "Failed to create game room. Please try again.")
	}
}

// setRoomCode assigns the code once; later values never overwrite it.
func (s *Session) setRoomCode(code string) {
	if s.roomCode == "" && code != "" {
		s.roomCode = code
	}
}

// maybeJoin emits join_game once the connection is up and a room code
// is known, whichever arrives last.
func (s *Session) maybeJoin() {
	if s.joined || s.conn != ConnConnected || s.roomCode == "" {
		return
	}
	err := s.ch.Emit(protocol.EvtJoinGame, protocol.JoinGamePayload{
		RoomCode: s.roomCode,
		UserID:   s.cfg.UserID,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("join emit failed")
		return
	}
	s.joined = true
	s.log.Info().Str("room_code", s.roomCode).Msg("joined room")
}

func (s *Session) handleLeave() {
	s.sendLeave()
	_ = s.ch.Close()
	s.status = StatusTerminated
	s.scheduleHandoff(Handoff{Target: HandoffHome}, leaveFlushDelay)
}

func (s *Session) sendLeave() {
	if s.leftSent || s.roomCode == "" || s.cfg.UserID == "" {
		return
	}
	s.leftSent = true
	_ = s.ch.Emit(protocol.EvtLeaveGame, protocol.LeaveGamePayload{
		RoomCode: s.roomCode,
		UserID:   s.cfg.UserID,
	})
}

func (s *Session) teardown() {
	s.sendLeave()
	_ = s.ch.Close()
	for kind, timer := range s.notifTimers {
		timer.Stop()
		delete(s.notifTimers, kind)
	}
	s.status = StatusTerminated
}

func (s *Session) scheduleHandoff(h Handoff, delay time.Duration) {
	timer := s.clock.NewTimer(delay)
	go func() {
		select {
		case <-timer.Chan():
			s.post(handoffDueMsg{handoff: h})
		case <-s.stopped:
			timer.Stop()
		}
	}()
}

func (s *Session) emitHandoff(h Handoff) {
	select {
	case s.handoffs <- h:
	default:
		s.log.Warn().Str("target", string(h.Target)).Msg("handoff dropped, queue full")
	}
}

func (s *Session) isSpectator() bool { return s.role == RoleSpectator }

func (s *Session) opponentID() string {
	for _, id := range s.players {
		if id != s.cfg.UserID {
			return id
		}
	}
	return ""
}
