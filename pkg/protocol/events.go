package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire format for the duplex channel: one JSON text frame per event,
// {"event": "...", "data": {...}}. Payload structs below mirror the
// snake_case field names the REST surface uses.

// Server -> Client
const (
	EvtConnected              = "connected"
	EvtJoinedAsSpectator      = "joined_as_spectator"
	EvtWaitingForPlayer       = "waiting_for_player"
	EvtGameReady              = "game_ready"
	EvtOpponentCodeUpdate     = "opponent_code_update"
	EvtUpdatePlayerHealth     = "update_player_health"
	EvtGameOver               = "game_over"
	EvtPlayerSelectedQuestion = "player_selected_question"
	EvtPlayerAnsweredQuestion = "player_answered_question"
	EvtSolutionVerified       = "solution-verified"
	EvtPlayerLeft             = "player_left"
	EvtPlayerDisconnected     = "player_disconnected"
	EvtError                  = "error"
)

// Client -> Server
const (
	EvtJoinGame         = "join_game"
	EvtCodeUpdate       = "code_update"
	EvtLeaveGame        = "leave_game"
	EvtAnsweredQuestion = "answered-question"
)

var ErrMalformedFrame = errors.New("malformed channel frame")

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return env, nil
}

type JoinGamePayload struct {
	RoomCode string `json:"room_code"`
	UserID   string `json:"user_id"`
}

type LeaveGamePayload struct {
	RoomCode string `json:"room_code"`
	UserID   string `json:"user_id"`
}

type CodeUpdatePayload struct {
	RoomCode string `json:"room_code,omitempty"`
	UserID   string `json:"user_id"`
	Code     string `json:"code"`
}

type AnsweredQuestionPayload struct {
	UserID         string `json:"user_id"`
	RoomCode       string `json:"room_code"`
	Question       string `json:"question"`
	HardModeActive bool   `json:"hard_mode_active"`
	Correct        bool   `json:"correct"`
}

type WaitingForPlayerPayload struct {
	RoomCode string `json:"room_code,omitempty"`
}

type GameReadyPayload struct {
	Players      []string          `json:"players"`
	DisplayNames map[string]string `json:"display_names,omitempty"`
	Health       map[string]int    `json:"health"`
	StartedAt    int64             `json:"started_at,omitempty"` // unix seconds
}

// JoinedAsSpectatorPayload carries the full mid-game snapshot a late
// observer needs: both buffers and any in-flight questions.
type JoinedAsSpectatorPayload struct {
	Players         []string            `json:"players"`
	DisplayNames    map[string]string   `json:"display_names,omitempty"`
	Health          map[string]int      `json:"health"`
	Code            map[string]string   `json:"code,omitempty"`
	ActiveQuestions map[string]Question `json:"active_questions,omitempty"`
	StartedAt       int64               `json:"started_at,omitempty"`
}

type UpdatePlayerHealthPayload struct {
	UserID string `json:"user_id"`
	Health int    `json:"health"`
}

type GameOverPayload struct {
	WinnerID          string         `json:"winner_id"`
	LoserID           string         `json:"loser_id"`
	QuestionsAnswered map[string]int `json:"questions_answered"`
	FinalHealth       map[string]int `json:"final_health"`
}

type PlayerSelectedQuestionPayload struct {
	UserID   string   `json:"user_id"`
	Question Question `json:"question"`
}

type PlayerAnsweredQuestionPayload struct {
	UserID string `json:"user_id"`
}

type SolutionVerifiedPayload struct {
	UserID  string `json:"user_id"`
	Correct bool   `json:"correct"`
}

type PlayerLeftPayload struct {
	UserID string `json:"user_id"`
}

type PlayerDisconnectedPayload struct {
	UserID string `json:"user_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
