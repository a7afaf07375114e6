package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/internal/engine"
	"github.com/noazlee/code-off/pkg/protocol"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	UserID      string
	DisplayName string
	Outbox      chan []byte // where this client receives encoded frames
}

type Leave struct {
	UserID   string
	Explicit bool // leave_game, as opposed to a dropped socket
}

type CodeUpdate struct {
	UserID string
	Code   string
}

type SelectQuestion struct {
	UserID   string
	Question protocol.Question
}

// SolutionVerified tells the room a player's submission graded fully
// correct; the room pushes the verdict to that player, who acknowledges
// with answered-question carrying the hard-mode flag.
type SolutionVerified struct {
	UserID string
}

type Answered struct {
	UserID    string
	ProblemID string
	HardMode  bool
}

type SkipQuestion struct {
	UserID string
}

type GetView struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isRoomMsg()             {}
func (Leave) isRoomMsg()            {}
func (CodeUpdate) isRoomMsg()       {}
func (SelectQuestion) isRoomMsg()   {}
func (SolutionVerified) isRoomMsg() {}
func (Answered) isRoomMsg()         {}
func (SkipQuestion) isRoomMsg()     {}
func (GetView) isRoomMsg()          {}
func (Shutdown) isRoomMsg()         {}

// View reflects internal state without data races; test-and-ops only.
type View struct {
	Code       string
	State      engine.State
	NumClients int
	Spectators int
	StartedAt  time.Time
}

type Result struct {
	RoomCode          string
	WinnerID          string
	LoserID           string
	QuestionsAnswered map[string]int
	FinalHealth       map[string]int
	StartedAt         time.Time
	EndedAt           time.Time
}

// Hooks let the room report membership and outcome without knowing
// about the hub or the store.
type Hooks struct {
	OnPlayerJoined func(userID, roomCode string)
	OnPlayerGone   func(userID string)
	OnGameOver     func(Result)
	OnEmpty        func(roomCode string)
}

// Room is the per-match actor: one goroutine owns the duel state, the
// connected clients, and the code/question mirrors spectators join into.
type Room struct {
	code  string
	inbox chan Msg

	state      engine.State
	clients    map[string]chan []byte
	spectators map[string]bool
	names      map[string]string
	buffers    map[string]string
	questions  map[string]protocol.Question
	startedAt  time.Time

	clock  clockwork.Clock
	log    zerolog.Logger
	hooks  Hooks
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, code string, clock clockwork.Clock, log zerolog.Logger, hooks Hooks) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		code:       code,
		inbox:      make(chan Msg, 64),
		state:      engine.NewState(),
		clients:    make(map[string]chan []byte),
		spectators: make(map[string]bool),
		names:      make(map[string]string),
		buffers:    make(map[string]string),
		questions:  make(map[string]protocol.Question),
		clock:      clock,
		log:        log.With().Str("component", "room").Str("room_code", code).Logger(),
		hooks:      hooks,
		ctx:        ctx,
		cancel:     cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }
func (r *Room) Code() string      { return r.code }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg)
			case CodeUpdate:
				r.handleCodeUpdate(msg)
			case SelectQuestion:
				r.handleSelectQuestion(msg)
			case SolutionVerified:
				r.sendTo(msg.UserID, protocol.EvtSolutionVerified, protocol.SolutionVerifiedPayload{
					UserID:  msg.UserID,
					Correct: true,
				})
			case Answered:
				r.handleAnswered(msg)
			case SkipQuestion:
				r.handleSkip(msg)
			case GetView:
				msg.Reply <- View{
					Code:       r.code,
					State:      r.state,
					NumClients: len(r.clients),
					Spectators: len(r.spectators),
					StartedAt:  r.startedAt,
				}
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	if msg.DisplayName != "" {
		r.names[msg.UserID] = msg.DisplayName
	}

	// Rejoin of a seated player: swap the outbox, resync them, and tell
	// everyone who was left waiting that the game is whole again.
	if r.isPlayer(msg.UserID) {
		if old, ok := r.clients[msg.UserID]; ok && old != msg.Outbox {
			close(old)
		}
		r.clients[msg.UserID] = msg.Outbox
		if r.state.Started {
			r.broadcast(protocol.EvtGameReady, r.gameReadyPayload())
		} else {
			r.sendTo(msg.UserID, protocol.EvtWaitingForPlayer, protocol.WaitingForPlayerPayload{RoomCode: r.code})
		}
		return
	}

	// Full room: attach as spectator with the complete mid-game state.
	if len(r.state.Players) >= 2 {
		r.clients[msg.UserID] = msg.Outbox
		r.spectators[msg.UserID] = true
		r.sendTo(msg.UserID, protocol.EvtJoinedAsSpectator, protocol.JoinedAsSpectatorPayload{
			Players:         r.state.Players,
			DisplayNames:    r.names,
			Health:          r.state.Health,
			Code:            r.buffers,
			ActiveQuestions: r.questions,
			StartedAt:       r.startedAt.Unix(),
		})
		r.log.Info().Str("user_id", msg.UserID).Msg("spectator joined")
		return
	}

	events, newState, err := engine.Apply(r.state, engine.Command{Type: engine.CmdJoin, UserID: msg.UserID})
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", msg.UserID).Msg("join rejected")
		return
	}
	r.state = newState
	r.clients[msg.UserID] = msg.Outbox
	if r.hooks.OnPlayerJoined != nil {
		r.hooks.OnPlayerJoined(msg.UserID, r.code)
	}

	if engine.ContainsEvent(events, engine.EvtGameStarted) {
		r.startedAt = r.clock.Now()
		r.broadcast(protocol.EvtGameReady, r.gameReadyPayload())
		r.log.Info().Strs("players", r.state.Players).Msg("game started")
	} else {
		r.sendTo(msg.UserID, protocol.EvtWaitingForPlayer, protocol.WaitingForPlayerPayload{RoomCode: r.code})
	}
}

func (r *Room) handleLeave(msg Leave) {
	out, ok := r.clients[msg.UserID]
	if !ok {
		return
	}
	// Unblocks the connection's writer goroutine.
	close(out)
	delete(r.clients, msg.UserID)

	if r.spectators[msg.UserID] {
		delete(r.spectators, msg.UserID)
	} else if msg.Explicit {
		r.broadcast(protocol.EvtPlayerLeft, protocol.PlayerLeftPayload{UserID: msg.UserID})
		if r.hooks.OnPlayerGone != nil {
			r.hooks.OnPlayerGone(msg.UserID)
		}
	} else {
		// Dropped socket: seat, health, and roster stay so they can
		// come back; only the stale buffer goes.
		delete(r.buffers, msg.UserID)
		r.broadcast(protocol.EvtPlayerDisconnected, protocol.PlayerDisconnectedPayload{UserID: msg.UserID})
	}

	if len(r.clients) == 0 && r.hooks.OnEmpty != nil {
		r.hooks.OnEmpty(r.code)
	}
}

func (r *Room) handleCodeUpdate(msg CodeUpdate) {
	if !r.isPlayer(msg.UserID) {
		return
	}
	r.buffers[msg.UserID] = msg.Code
	r.broadcastExcept(msg.UserID, protocol.EvtOpponentCodeUpdate, protocol.CodeUpdatePayload{
		UserID: msg.UserID,
		Code:   msg.Code,
	})
}

func (r *Room) handleSelectQuestion(msg SelectQuestion) {
	_, newState, err := engine.Apply(r.state, engine.Command{
		Type:      engine.CmdSelectQuestion,
		UserID:    msg.UserID,
		ProblemID: msg.Question.ProblemID,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", msg.UserID).Msg("select rejected")
		return
	}
	r.state = newState
	r.questions[msg.UserID] = msg.Question
	r.broadcast(protocol.EvtPlayerSelectedQuestion, protocol.PlayerSelectedQuestionPayload{
		UserID:   msg.UserID,
		Question: msg.Question,
	})
}

func (r *Room) handleAnswered(msg Answered) {
	problem, err := engine.ProblemByID(msg.ProblemID)
	difficulty := problem.Difficulty
	if err != nil {
		// Trust the stored selection over a mangled ack.
		if id, ok := r.state.ActiveQuestions[msg.UserID]; ok {
			if p, perr := engine.ProblemByID(id); perr == nil {
				difficulty = p.Difficulty
			}
		}
	}

	events, newState, err := engine.Apply(r.state, engine.Command{
		Type:       engine.CmdAnswerQuestion,
		UserID:     msg.UserID,
		Difficulty: difficulty,
		HardMode:   msg.HardMode,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", msg.UserID).Msg("answer rejected")
		return
	}
	r.state = newState
	delete(r.questions, msg.UserID)

	r.broadcast(protocol.EvtPlayerAnsweredQuestion, protocol.PlayerAnsweredQuestionPayload{UserID: msg.UserID})
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtDamageDealt:
			r.broadcast(protocol.EvtUpdatePlayerHealth, protocol.UpdatePlayerHealthPayload{
				UserID: ev.TargetID,
				Health: r.state.Health[ev.TargetID],
			})
		case engine.EvtGameCompleted:
			r.finishGame()
		}
	}
}

func (r *Room) handleSkip(msg SkipQuestion) {
	_, newState, err := engine.Apply(r.state, engine.Command{Type: engine.CmdSkipQuestion, UserID: msg.UserID})
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", msg.UserID).Msg("skip rejected")
		return
	}
	r.state = newState
	delete(r.questions, msg.UserID)
	r.broadcast(protocol.EvtPlayerAnsweredQuestion, protocol.PlayerAnsweredQuestionPayload{UserID: msg.UserID})
}

func (r *Room) finishGame() {
	r.broadcast(protocol.EvtGameOver, protocol.GameOverPayload{
		WinnerID:          r.state.WinnerID,
		LoserID:           r.state.LoserID,
		QuestionsAnswered: r.state.QuestionsAnswered,
		FinalHealth:       r.state.Health,
	})
	if r.hooks.OnGameOver != nil {
		r.hooks.OnGameOver(Result{
			RoomCode:          r.code,
			WinnerID:          r.state.WinnerID,
			LoserID:           r.state.LoserID,
			QuestionsAnswered: r.state.QuestionsAnswered,
			FinalHealth:       r.state.Health,
			StartedAt:         r.startedAt,
			EndedAt:           r.clock.Now(),
		})
	}
	r.log.Info().Str("winner", r.state.WinnerID).Msg("game over")
}

func (r *Room) gameReadyPayload() protocol.GameReadyPayload {
	return protocol.GameReadyPayload{
		Players:      r.state.Players,
		DisplayNames: r.names,
		Health:       r.state.Health,
		StartedAt:    r.startedAt.Unix(),
	}
}

func (r *Room) isPlayer(id string) bool {
	for _, p := range r.state.Players {
		if p == id {
			return true
		}
	}
	return false
}

func (r *Room) sendTo(id, event string, payload any) {
	out, ok := r.clients[id]
	if !ok {
		return
	}
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}
	select {
	case out <- frame:
	default:
		// Slow or dead client, drop them.
		close(out)
		delete(r.clients, id)
		delete(r.spectators, id)
	}
}

func (r *Room) broadcast(event string, payload any) {
	r.broadcastExcept("", event, payload)
}

func (r *Room) broadcastExcept(except, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}
	for id, out := range r.clients {
		if id == except {
			continue
		}
		select {
		case out <- frame:
		default:
			close(out)
			delete(r.clients, id)
			delete(r.spectators, id)
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}
