package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noazlee/code-off/internal/client/transport"
	"github.com/noazlee/code-off/pkg/protocol"
)

// handleInbound is the single dispatch point for everything the channel
// delivers, server events and transport lifecycle alike. Payloads are
// decoded here at the boundary; malformed ones are logged and dropped.
func (s *Session) handleInbound(name string, data json.RawMessage) {
	switch name {
	case transport.EvtConnect:
		s.conn = ConnConnected
		s.maybeJoin()

	case transport.EvtDisconnect:
		s.conn = ConnDisconnected
		if s.status != StatusTerminated {
			s.notify(NotifyConnectionWarning, "Connection lost. Trying to keep your game state.")
		}

	case transport.EvtConnectError:
		s.conn = ConnErrored
		s.notify(NotifyConnectionWarning, "Could not reach the game server.")

	case protocol.EvtConnected:
		s.log.Debug().Msg("server acknowledged connection")

	case protocol.EvtWaitingForPlayer:
		var p protocol.WaitingForPlayerPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.setRoomCode(p.RoomCode)
		s.status = StatusWaitingForOpponent

	case protocol.EvtGameReady:
		var p protocol.GameReadyPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.applyGameReady(p)

	case protocol.EvtJoinedAsSpectator:
		var p protocol.JoinedAsSpectatorPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.applySpectatorSnapshot(p)

	case protocol.EvtUpdatePlayerHealth:
		var p protocol.UpdatePlayerHealthPayload
		if !s.decode(name, data, &p) {
			return
		}
		if p.UserID == "" {
			s.log.Warn().Str("event", name).Msg("dropping health update without user id")
			return
		}
		// Authoritative and last-write-wins per participant.
		s.health[p.UserID] = p.Health

	case protocol.EvtOpponentCodeUpdate:
		var p protocol.CodeUpdatePayload
		if !s.decode(name, data, &p) {
			return
		}
		s.applyRemoteCode(p)

	case protocol.EvtPlayerSelectedQuestion:
		var p protocol.PlayerSelectedQuestionPayload
		if !s.decode(name, data, &p) {
			return
		}
		if p.UserID != s.cfg.UserID {
			q := p.Question
			s.questions[p.UserID] = &q
		}

	case protocol.EvtPlayerAnsweredQuestion:
		var p protocol.PlayerAnsweredQuestionPayload
		if !s.decode(name, data, &p) {
			return
		}
		delete(s.questions, p.UserID)

	case protocol.EvtSolutionVerified:
		var p protocol.SolutionVerifiedPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.handleSolutionVerified(p)

	case protocol.EvtPlayerDisconnected:
		var p protocol.PlayerDisconnectedPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.applyOpponentDrop(p.UserID)

	case protocol.EvtPlayerLeft:
		s.notify(NotifyError, "Your opponent has left the game.")
		s.status = StatusTerminated
		s.scheduleHandoff(Handoff{Target: HandoffHome}, opponentLeftDelay)

	case protocol.EvtGameOver:
		var p protocol.GameOverPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.applyGameOver(p)

	case protocol.EvtError:
		var p protocol.ErrorPayload
		if !s.decode(name, data, &p) {
			return
		}
		s.notify(NotifyError, p.Message)

	default:
		s.log.Debug().Str("event", name).Msg("unhandled event")
	}
}

func (s *Session) applyGameReady(p protocol.GameReadyPayload) {
	if len(p.Players) > 2 {
		s.log.Warn().Int("players", len(p.Players)).Msg("dropping game_ready with oversized roster")
		return
	}
	// Also announced on a rejoin after a drop; a watching client goes
	// back to spectating, not to a seat.
	if s.isSpectator() {
		s.status = StatusSpectating
	} else {
		s.status = StatusActive
	}
	s.players = append([]string(nil), p.Players...)
	for id, name := range p.DisplayNames {
		s.names[id] = name
	}
	for id, hp := range p.Health {
		s.health[id] = hp
	}
	if p.StartedAt > 0 {
		s.startedAt = time.Unix(p.StartedAt, 0)
	}
	s.log.Info().Strs("players", s.players).Msg("game ready")
}

// applySpectatorSnapshot is the one place the Spectator role is
// assigned: the event type decides it, never roster arithmetic.
func (s *Session) applySpectatorSnapshot(p protocol.JoinedAsSpectatorPayload) {
	if len(p.Players) != 2 {
		s.log.Warn().Int("players", len(p.Players)).Msg("dropping spectator snapshot without full roster")
		return
	}
	s.role = RoleSpectator
	s.status = StatusSpectating
	s.players = append([]string(nil), p.Players...)
	for id, name := range p.DisplayNames {
		s.names[id] = name
	}
	for id, hp := range p.Health {
		s.health[id] = hp
	}
	for id, code := range p.Code {
		s.buffers[id] = code
	}
	for id, q := range p.ActiveQuestions {
		q := q
		s.questions[id] = &q
	}
	if p.StartedAt > 0 {
		s.startedAt = time.Unix(p.StartedAt, 0)
	}
	s.log.Info().Strs("players", s.players).Msg("spectating game")
}

// applyOpponentDrop handles a connection drop, not an explicit leave:
// health and roster are retained so the game can resume, only the
// dropped player's buffer is cleared.
func (s *Session) applyOpponentDrop(userID string) {
	if s.status != StatusActive && s.status != StatusSpectating {
		return
	}
	if userID != "" {
		delete(s.buffers, userID)
	} else if opp := s.opponentID(); opp != "" {
		delete(s.buffers, opp)
	}
	s.status = StatusWaitingForOpponent
	s.notify(NotifyConnectionWarning, "Opponent disconnected. Waiting for them to return.")
}

func (s *Session) applyGameOver(p protocol.GameOverPayload) {
	if p.WinnerID == "" || p.LoserID == "" {
		s.log.Warn().Msg("dropping game_over without winner/loser")
		return
	}
	s.status = StatusTerminated
	s.emitHandoff(Handoff{
		Target: HandoffResults,
		Result: &GameResult{
			WinnerID:          p.WinnerID,
			LoserID:           p.LoserID,
			QuestionsAnswered: copyIntMap(p.QuestionsAnswered),
			FinalHealth:       copyIntMap(p.FinalHealth),
		},
	})
}

func (s *Session) decode(event string, data json.RawMessage, out any) bool {
	if len(data) == 0 {
		// Several events legitimately carry no payload.
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.Warn().Err(fmt.Errorf("decode %s: %w", event, err)).Msg("dropping malformed payload")
		return false
	}
	return true
}

func copyIntMap(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
