package session

import (
	"time"

	"github.com/noazlee/code-off/pkg/protocol"
)

// View is a read projection of the session. Everything in it is a copy;
// holders never share memory with loop-owned state.
type View struct {
	Status    Status
	Conn      ConnStatus
	Role      Role
	RoomCode  string
	UserID    string
	Players   []string
	Names     map[string]string
	Health    map[string]int
	StartedAt time.Time

	// Player projection.
	MyCode       string
	OpponentCode string

	// Spectator projection, routed by roster position.
	LeftCode  string
	RightCode string

	ActiveQuestion   *protocol.Question
	OpponentQuestion *protocol.Question
	HardMode         bool

	Notifications map[NotificationKind]string
}

// View blocks for one loop turn and returns a snapshot. Returns the
// zero View if the session has already stopped.
func (s *Session) View() View {
	reply := make(chan View, 1)
	select {
	case s.inbox <- getViewMsg{reply: reply}:
		return <-reply
	case <-s.stopped:
		return View{Status: StatusTerminated}
	}
}

func (s *Session) view() View {
	v := View{
		Status:        s.status,
		Conn:          s.conn,
		Role:          s.role,
		RoomCode:      s.roomCode,
		UserID:        s.cfg.UserID,
		Players:       append([]string(nil), s.players...),
		Names:         copyStringMap(s.names),
		Health:        copyIntMap(s.health),
		StartedAt:     s.startedAt,
		HardMode:      s.hardMode,
		Notifications: make(map[NotificationKind]string, len(s.notifs)),
	}
	for kind, n := range s.notifs {
		v.Notifications[kind] = n.text
	}

	if s.isSpectator() {
		if len(s.players) == 2 {
			v.LeftCode = s.buffers[s.players[0]]
			v.RightCode = s.buffers[s.players[1]]
		}
	} else {
		v.MyCode = s.buffers[s.cfg.UserID]
		if opp := s.opponentID(); opp != "" {
			v.OpponentCode = s.buffers[opp]
			if q := s.questions[opp]; q != nil {
				qq := *q
				v.OpponentQuestion = &qq
			}
		}
		if q := s.questions[s.cfg.UserID]; q != nil {
			qq := *q
			v.ActiveQuestion = &qq
		}
	}
	return v
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
