package session

import "github.com/noazlee/code-off/pkg/protocol"

// handleEditCode applies a local edit optimistically and pushes the full
// buffer out. Spectators have no writable buffer.
func (s *Session) handleEditCode(code string) {
	if s.isSpectator() {
		return
	}
	s.buffers[s.cfg.UserID] = code
	if s.roomCode == "" {
		return
	}
	_ = s.ch.Emit(protocol.EvtCodeUpdate, protocol.CodeUpdatePayload{
		RoomCode: s.roomCode,
		UserID:   s.cfg.UserID,
		Code:     code,
	})
}

// applyRemoteCode routes an inbound code update.
//
// Players only ever mirror the other participant: an echo of our own
// update must never clobber local typing. Spectators route by roster
// position, and an update racing ahead of the roster is discarded
// rather than guessed at.
func (s *Session) applyRemoteCode(p protocol.CodeUpdatePayload) {
	if p.UserID == "" {
		s.log.Warn().Msg("dropping code update without user id")
		return
	}

	if !s.isSpectator() {
		if p.UserID == s.cfg.UserID {
			return
		}
		s.buffers[p.UserID] = p.Code
		return
	}

	if len(s.players) != 2 {
		s.log.Debug().Str("user_id", p.UserID).Msg("discarding code update before roster known")
		return
	}
	if p.UserID != s.players[0] && p.UserID != s.players[1] {
		s.log.Warn().Str("user_id", p.UserID).Msg("discarding code update for unknown participant")
		return
	}
	s.buffers[p.UserID] = p.Code
}
