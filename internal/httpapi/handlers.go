package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	mrand "math/rand"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/noazlee/code-off/internal/engine"
	"github.com/noazlee/code-off/internal/hub"
	"github.com/noazlee/code-off/internal/room"
	"github.com/noazlee/code-off/internal/store"
	"github.com/noazlee/code-off/pkg/protocol"
)

// API carries the handler dependencies.
type API struct {
	Hub   *hub.Hub
	Store store.Store
	Judge engine.Judge
	Rand  *mrand.Rand
	Log   zerolog.Logger
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateRoomRequest
	if !a.decode(w, r, &req) || !a.requireField(w, req.UserID, "user_id") {
		return
	}
	if a.userRoom(req.UserID) != "" {
		writeError(w, http.StatusBadRequest, "User already in a game room")
		return
	}

	code, ok := a.freshCode(w)
	if !ok {
		return
	}
	reply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.CreateRoom{Code: code, Reply: reply}
	if <-reply == nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	a.Hub.Inbox() <- hub.BindUser{UserID: req.UserID, Code: code}

	a.Log.Info().Str("room_code", code).Str("user_id", req.UserID).Msg("room created")
	writeJSON(w, http.StatusCreated, protocol.CreateRoomResponse{RoomCode: code})
}

// FindRandomGame seats the caller in an open random room, creating one
// when none is waiting. created_game tells the client which role it
// enters with.
func (a *API) FindRandomGame(w http.ResponseWriter, r *http.Request) {
	var req protocol.FindRandomGameRequest
	if !a.decode(w, r, &req) || !a.requireField(w, req.UserID, "user_id") {
		return
	}
	if a.userRoom(req.UserID) != "" {
		writeError(w, http.StatusBadRequest, "User already in a game room")
		return
	}

	reply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.FindRandomRoom{Reply: reply}
	if rm := <-reply; rm != nil {
		a.Hub.Inbox() <- hub.BindUser{UserID: req.UserID, Code: rm.Code()}
		writeJSON(w, http.StatusOK, protocol.FindRandomGameResponse{RoomCode: rm.Code(), CreatedGame: false})
		return
	}

	code, ok := a.freshCode(w)
	if !ok {
		return
	}
	createReply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.CreateRoom{Code: code, Random: true, Reply: createReply}
	if <-createReply == nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	a.Hub.Inbox() <- hub.BindUser{UserID: req.UserID, Code: code}
	writeJSON(w, http.StatusOK, protocol.FindRandomGameResponse{RoomCode: code, CreatedGame: true})
}

func (a *API) GetProblem(w http.ResponseWriter, r *http.Request) {
	var req protocol.GetProblemRequest
	if !a.decode(w, r, &req) || !a.requireField(w, req.UserID, "user_id") {
		return
	}
	if !req.Difficulty.Valid() {
		writeError(w, http.StatusBadRequest, "invalid difficulty")
		return
	}
	rm := a.roomByCode(req.RoomCode)
	if rm == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	problem, err := engine.PickProblem(req.Difficulty, a.Rand)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "no problem available")
		return
	}
	rm.Inbox() <- room.SelectQuestion{UserID: req.UserID, Question: problem.Question}
	writeJSON(w, http.StatusOK, problem.Question)
}

func (a *API) SubmitSolution(w http.ResponseWriter, r *http.Request) {
	var req protocol.SubmitSolutionRequest
	if !a.decode(w, r, &req) || !a.requireField(w, req.UserID, "user_id") {
		return
	}
	problem, err := engine.ProblemByID(req.ProblemID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown problem")
		return
	}

	result := a.Judge.Evaluate(problem, req.Code)
	if result.Passed {
		if rm := a.roomByCode(req.RoomCode); rm != nil {
			rm.Inbox() <- room.SolutionVerified{UserID: req.UserID}
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) SkipProblem(w http.ResponseWriter, r *http.Request) {
	var req protocol.SkipProblemRequest
	if !a.decode(w, r, &req) || !a.requireField(w, req.UserID, "user_id") {
		return
	}
	rm := a.roomByCode(req.RoomCode)
	if rm == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	rm.Inbox() <- room.SkipQuestion{UserID: req.UserID}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Store.Leaderboard(r.Context())
	if err != nil {
		a.Log.Error().Err(err).Msg("leaderboard query failed")
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) GameHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	entries, err := a.Store.HistoryFor(r.Context(), userID)
	if err != nil {
		a.Log.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "failed to load game history")
		return
	}
	if entries == nil {
		entries = []protocol.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var req protocol.SignupRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	u := store.User{ID: uuid.NewString(), Username: req.Username, PasswordHash: string(hash)}
	if err := a.Store.CreateUser(r.Context(), u); err != nil {
		if err == store.ErrUsernameTaken {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		a.Log.Error().Err(err).Msg("signup failed")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, protocol.SignupResponse{UserID: u.ID})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	u, err := a.Store.UserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	writeJSON(w, http.StatusOK, protocol.LoginResponse{UserID: u.ID})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) roomByCode(code string) *room.Room {
	reply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
	return <-reply
}

func (a *API) userRoom(userID string) string {
	reply := make(chan string, 1)
	a.Hub.Inbox() <- hub.GetUserRoom{UserID: userID, Reply: reply}
	return <-reply
}

func (a *API) freshCode(w http.ResponseWriter) (string, bool) {
	for {
		code, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate code")
			return "", false
		}
		if a.roomByCode(code) == nil {
			return code, true
		}
		a.Log.Debug().Str("room_code", code).Msg("collision on code, regenerating")
	}
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (a *API) requireField(w http.ResponseWriter, value, name string) bool {
	if value == "" {
		writeError(w, http.StatusBadRequest, "missing "+name)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.APIError{Error: msg})
}
