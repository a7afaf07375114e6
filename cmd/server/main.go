package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/internal/config"
	"github.com/noazlee/code-off/internal/engine"
	"github.com/noazlee/code-off/internal/httpapi"
	"github.com/noazlee/code-off/internal/hub"
	"github.com/noazlee/code-off/internal/room"
	"github.com/noazlee/code-off/internal/store"
	"github.com/noazlee/code-off/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	var st store.Store
	if cfg.DatabaseConfigured() {
		gs, err := store.OpenGorm(cfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("open store")
		}
		st = gs
	} else {
		log.Warn().Msg("no database configured, using in-memory store")
		st = store.NewMemoryStore()
	}

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	// The factory wires each room's hooks back into the hub and store.
	var h *hub.Hub
	factory := func(parent context.Context, code string) *room.Room {
		return room.NewRoom(parent, code, clock, log, room.Hooks{
			OnPlayerJoined: func(userID, roomCode string) {
				h.Inbox() <- hub.BindUser{UserID: userID, Code: roomCode}
			},
			OnPlayerGone: func(userID string) {
				h.Inbox() <- hub.UnbindUser{UserID: userID}
			},
			OnGameOver: func(res room.Result) {
				rec := store.GameRecord{
					WinnerID:        res.WinnerID,
					LoserID:         res.LoserID,
					WinnerQuestions: res.QuestionsAnswered[res.WinnerID],
					LoserQuestions:  res.QuestionsAnswered[res.LoserID],
					DurationSeconds: int(res.EndedAt.Sub(res.StartedAt).Seconds()),
					PlayedOn:        res.EndedAt,
				}
				if err := st.RecordGame(context.Background(), rec); err != nil {
					log.Error().Err(err).Str("room_code", res.RoomCode).Msg("record game")
				}
			},
			OnEmpty: func(roomCode string) {
				h.Inbox() <- hub.RemoveRoom{Code: roomCode}
			},
		})
	}
	h = hub.NewHub(ctx, factory)

	api := &httpapi.API{
		Hub:   h,
		Store: st,
		Judge: engine.StubJudge{},
		Rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:   log,
	}

	names := func(userID string) string {
		if u, err := st.UserByID(context.Background(), userID); err == nil {
			return u.Username
		}
		return userID
	}

	handler := httpapi.SetupRoutes(api, ws.Handler(h, names, log))

	log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
