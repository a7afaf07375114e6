package engine

import (
	"errors"

	"github.com/noazlee/code-off/pkg/protocol"
)

var ErrRoomFull = errors.New("room is full")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrAlreadyJoined = errors.New("player already joined")
var ErrQuestionInFlight = errors.New("player already has an active question")
var ErrNoActiveQuestion = errors.New("no active question")
var ErrGameAlreadyCompleted = errors.New("game already completed")
var ErrUnsupportedCommand = errors.New("unsupported command")

const MaxHealth = 100

type State struct {
	Players           []string
	Health            map[string]int
	QuestionsAnswered map[string]int
	ActiveQuestions   map[string]string // player id -> problem id
	Started           bool
	Completed         bool
	WinnerID          string
	LoserID           string
}

func NewState() State {
	return State{
		Health:            map[string]int{},
		QuestionsAnswered: map[string]int{},
		ActiveQuestions:   map[string]string{},
	}
}

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdSelectQuestion CommandType = "SelectQuestion"
	CmdAnswerQuestion CommandType = "AnswerQuestion"
	CmdSkipQuestion   CommandType = "SkipQuestion"
)

type Command struct {
	Type       CommandType
	UserID     string
	ProblemID  string
	Difficulty protocol.Difficulty
	HardMode   bool
}

type EventType string

const (
	EvtPlayerJoined     EventType = "PlayerJoined"
	EvtGameStarted      EventType = "GameStarted"
	EvtQuestionSelected EventType = "QuestionSelected"
	EvtQuestionCleared  EventType = "QuestionCleared"
	EvtDamageDealt      EventType = "DamageDealt"
	EvtGameCompleted    EventType = "GameCompleted"
)

type Event struct {
	Type      EventType
	UserID    string
	TargetID  string
	ProblemID string
	Amount    int
}

// Damage a verified-correct answer deals to the opponent. Hard mode is
// the out-of-band bonus rule: +50%, rounded down.
func Damage(d protocol.Difficulty, hardMode bool) int {
	var base int
	switch d {
	case protocol.DifficultyEasy:
		base = 10
	case protocol.DifficultyMedium:
		base = 20
	case protocol.DifficultyHard:
		base = 30
	default:
		base = 10
	}
	if hardMode {
		base += base / 2
	}
	return base
}

// Apply runs one command against the duel state and returns the events
// it produced plus the next state.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Completed && cmd.Type != CmdJoin {
		return nil, s, ErrGameAlreadyCompleted
	}
	newState := s

	switch cmd.Type {
	case CmdJoin:
		for _, id := range s.Players {
			if id == cmd.UserID {
				return nil, s, ErrAlreadyJoined
			}
		}
		if len(s.Players) >= 2 {
			return nil, s, ErrRoomFull
		}
		newState.Players = append(append([]string(nil), s.Players...), cmd.UserID)
		newState.Health[cmd.UserID] = MaxHealth
		newState.QuestionsAnswered[cmd.UserID] = 0

		events := []Event{{Type: EvtPlayerJoined, UserID: cmd.UserID}}
		if len(newState.Players) == 2 {
			newState.Started = true
			events = append(events, Event{Type: EvtGameStarted})
		}
		return events, newState, nil

	case CmdSelectQuestion:
		if !isPlayer(s, cmd.UserID) {
			return nil, s, ErrUnknownPlayer
		}
		if _, ok := s.ActiveQuestions[cmd.UserID]; ok {
			return nil, s, ErrQuestionInFlight
		}
		newState.ActiveQuestions[cmd.UserID] = cmd.ProblemID
		return []Event{{Type: EvtQuestionSelected, UserID: cmd.UserID, ProblemID: cmd.ProblemID}}, newState, nil

	case CmdSkipQuestion:
		if !isPlayer(s, cmd.UserID) {
			return nil, s, ErrUnknownPlayer
		}
		if _, ok := s.ActiveQuestions[cmd.UserID]; !ok {
			return nil, s, ErrNoActiveQuestion
		}
		delete(newState.ActiveQuestions, cmd.UserID)
		return []Event{{Type: EvtQuestionCleared, UserID: cmd.UserID}}, newState, nil

	case CmdAnswerQuestion:
		if !isPlayer(s, cmd.UserID) {
			return nil, s, ErrUnknownPlayer
		}
		if _, ok := s.ActiveQuestions[cmd.UserID]; !ok {
			return nil, s, ErrNoActiveQuestion
		}
		delete(newState.ActiveQuestions, cmd.UserID)
		newState.QuestionsAnswered[cmd.UserID]++

		events := []Event{{Type: EvtQuestionCleared, UserID: cmd.UserID}}

		opponent := opponentOf(s, cmd.UserID)
		if opponent == "" {
			// No one to damage yet; the answer still counts.
			return events, newState, nil
		}

		dmg := Damage(cmd.Difficulty, cmd.HardMode)
		hp := newState.Health[opponent] - dmg
		if hp < 0 {
			hp = 0
		}
		newState.Health[opponent] = hp
		events = append(events, Event{Type: EvtDamageDealt, UserID: cmd.UserID, TargetID: opponent, Amount: dmg})

		if hp == 0 {
			newState.Completed = true
			newState.WinnerID = cmd.UserID
			newState.LoserID = opponent
			events = append(events, Event{Type: EvtGameCompleted, UserID: cmd.UserID, TargetID: opponent})
		}
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func isPlayer(s State, id string) bool {
	for _, p := range s.Players {
		if p == id {
			return true
		}
	}
	return false
}

func opponentOf(s State, id string) string {
	for _, p := range s.Players {
		if p != id {
			return p
		}
	}
	return ""
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
