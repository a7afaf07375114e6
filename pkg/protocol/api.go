package protocol

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is the shared problem shape: handed out by the REST surface
// and mirrored over the channel in player_selected_question.
type Question struct {
	ProblemID        string     `json:"problem_id"`
	Title            string     `json:"title"`
	Difficulty       Difficulty `json:"difficulty"`
	Description      string     `json:"description"`
	SolutionTemplate string     `json:"solution_template"`
}

// REST bodies, /api/... endpoints.

type CreateRoomRequest struct {
	UserID string `json:"user_id"`
}

type CreateRoomResponse struct {
	RoomCode string `json:"room_code"`
}

type FindRandomGameRequest struct {
	UserID string `json:"user_id"`
}

type FindRandomGameResponse struct {
	RoomCode    string `json:"room_code"`
	CreatedGame bool   `json:"created_game"`
}

type GetProblemRequest struct {
	RoomCode   string     `json:"room_code"`
	UserID     string     `json:"user_id"`
	Difficulty Difficulty `json:"difficulty"`
}

type SubmitSolutionRequest struct {
	UserID    string `json:"user_id"`
	RoomCode  string `json:"room_code"`
	Code      string `json:"code"`
	ProblemID string `json:"problem_id"`
}

type TestCaseResult struct {
	Case     string `json:"case"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

type SubmitSolutionResponse struct {
	Passed      bool             `json:"passed"`
	PassedTests int              `json:"passed_tests"`
	TotalTests  int              `json:"total_tests"`
	Results     []TestCaseResult `json:"results"`
}

type SkipProblemRequest struct {
	RoomCode string `json:"room_code"`
	UserID   string `json:"user_id"`
}

type LeaderboardEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	NumWins  int    `json:"num_wins"`
}

type HistoryEntry struct {
	Opponent                  string    `json:"opponent"`
	Winner                    string    `json:"winner"`
	YourQuestionsAnswered     int       `json:"your_questions_answered"`
	OpponentQuestionsAnswered int       `json:"opponent_questions_answered"`
	DurationSeconds           int       `json:"duration_seconds"`
	PlayedOn                  time.Time `json:"played_on"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupResponse struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UserID string `json:"user_id"`
}

type APIError struct {
	Error string `json:"error"`
}
