package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(a *API, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/signup", a.Signup)
	r.Post("/api/login", a.Login)
	r.Post("/api/create-room", a.CreateRoom)
	r.Post("/api/find-random-game", a.FindRandomGame)
	r.Post("/api/get-problem", a.GetProblem)
	r.Post("/api/submit-solution", a.SubmitSolution)
	r.Post("/api/skip-problem", a.SkipProblem)
	r.Get("/api/leaderboard", a.Leaderboard)
	r.Get("/api/game-history", a.GameHistory)

	r.Get("/ws", wsHandler)
	r.Get("/healthz", Healthz)
	return r
}
