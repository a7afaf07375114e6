package hub

import (
	"context"

	"github.com/noazlee/code-off/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Code   string
	Random bool // open to random matchmaking
	Reply  chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// FindRandomRoom hands out an open random room and closes it to further
// matchmaking in the same step, so two seekers never race into the same
// seat.
type FindRandomRoom struct {
	Reply chan *room.Room
}

type RemoveRoom struct {
	Code string
}

type BindUser struct {
	UserID string
	Code   string
}

type UnbindUser struct {
	UserID string
}

type GetUserRoom struct {
	UserID string
	Reply  chan string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()     {}
func (GetRoom) isHubMsg()        {}
func (FindRandomRoom) isHubMsg() {}
func (RemoveRoom) isHubMsg()     {}
func (BindUser) isHubMsg()       {}
func (UnbindUser) isHubMsg()     {}
func (GetUserRoom) isHubMsg()    {}
func (ShutdownHub) isHubMsg()    {}

// RoomFactory builds a room actor for a code; injected so the hub stays
// ignorant of clocks, logging, and persistence wiring.
type RoomFactory func(ctx context.Context, code string) *room.Room

type Hub struct {
	inbox      chan HubMsg
	rooms      map[string]*room.Room
	userRoom   map[string]string
	openRandom map[string]bool
	newRoom    RoomFactory
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(parent context.Context, factory RoomFactory) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:      make(chan HubMsg, 64),
		rooms:      make(map[string]*room.Room),
		userRoom:   make(map[string]string),
		openRandom: make(map[string]bool),
		newRoom:    factory,
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if r := h.rooms[msg.Code]; r != nil {
					msg.Reply <- r
					break
				}
				r := h.newRoom(h.ctx, msg.Code)
				h.rooms[msg.Code] = r
				if msg.Random {
					h.openRandom[msg.Code] = true
				}
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case FindRandomRoom:
				var found *room.Room
				for code := range h.openRandom {
					delete(h.openRandom, code)
					if r := h.rooms[code]; r != nil {
						found = r
						break
					}
				}
				msg.Reply <- found

			case RemoveRoom:
				delete(h.rooms, msg.Code)
				delete(h.openRandom, msg.Code)
				for user, code := range h.userRoom {
					if code == msg.Code {
						delete(h.userRoom, user)
					}
				}

			case BindUser:
				h.userRoom[msg.UserID] = msg.Code

			case UnbindUser:
				delete(h.userRoom, msg.UserID)

			case GetUserRoom:
				msg.Reply <- h.userRoom[msg.UserID]

			case ShutdownHub:
				for _, r := range h.rooms {
					r.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				clear(h.openRandom)
				clear(h.userRoom)
				h.cancel()
			}
		}
	}
}
