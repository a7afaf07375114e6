package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/internal/hub"
	"github.com/noazlee/code-off/internal/room"
	"github.com/noazlee/code-off/pkg/protocol"
)

// NameResolver maps a user id to a display name for the roster.
type NameResolver func(userID string) string

// Handler upgrades the connection and speaks the channel protocol: the
// client announces itself with join_game, after which frames are
// relayed into the room actor and the room's broadcasts flow back out
// through a writer goroutine.
func Handler(h *hub.Hub, names NameResolver, log zerolog.Logger) http.HandlerFunc {
	log = log.With().Str("component", "ws").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan []byte, 16)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for frame := range out {
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, frame)
				cancel()
			}
		}()

		if frame, err := protocol.Encode(protocol.EvtConnected, struct{}{}); err == nil {
			out <- frame
		}

		var joinedRoom *room.Room
		var userID string
		explicitLeave := false
		defer func() {
			if joinedRoom != nil && !explicitLeave {
				joinedRoom.Inbox() <- room.Leave{UserID: userID, Explicit: false}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			env, err := protocol.Decode(data)
			if err != nil {
				sendError(out, "bad frame")
				continue
			}

			switch env.Event {
			case protocol.EvtJoinGame:
				var p protocol.JoinGamePayload
				if !decode(env.Data, &p) || p.RoomCode == "" || p.UserID == "" {
					sendError(out, "bad join_game payload")
					continue
				}
				reply := make(chan *room.Room, 1)
				h.Inbox() <- hub.GetRoom{Code: p.RoomCode, Reply: reply}
				rm := <-reply
				if rm == nil {
					sendError(out, "room not found")
					continue
				}
				joinedRoom = rm
				userID = p.UserID
				rm.Inbox() <- room.Join{UserID: p.UserID, DisplayName: names(p.UserID), Outbox: out}
				log.Debug().Str("user_id", p.UserID).Str("room_code", p.RoomCode).Msg("join")

			case protocol.EvtCodeUpdate:
				var p protocol.CodeUpdatePayload
				if joinedRoom == nil || !decode(env.Data, &p) {
					continue
				}
				joinedRoom.Inbox() <- room.CodeUpdate{UserID: p.UserID, Code: p.Code}

			case protocol.EvtAnsweredQuestion:
				var p protocol.AnsweredQuestionPayload
				if joinedRoom == nil || !decode(env.Data, &p) || !p.Correct {
					continue
				}
				joinedRoom.Inbox() <- room.Answered{
					UserID:    p.UserID,
					ProblemID: p.Question,
					HardMode:  p.HardModeActive,
				}

			case protocol.EvtLeaveGame:
				var p protocol.LeaveGamePayload
				if joinedRoom == nil || !decode(env.Data, &p) {
					continue
				}
				explicitLeave = true
				joinedRoom.Inbox() <- room.Leave{UserID: p.UserID, Explicit: true}
				// The room closes the outbox; this connection is done.
				return

			default:
				sendError(out, "unknown event")
			}
		}
	}
}

func decode(data []byte, out any) bool {
	if len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func sendError(out chan []byte, msg string) {
	frame, err := protocol.Encode(protocol.EvtError, protocol.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	select {
	case out <- frame:
	default:
	}
}
