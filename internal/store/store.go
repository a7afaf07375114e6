package store

import (
	"context"
	"errors"
	"time"

	"github.com/noazlee/code-off/pkg/protocol"
)

var ErrNotFound = errors.New("not found")
var ErrUsernameTaken = errors.New("username taken")

type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	NumWins      int
	CreatedAt    time.Time
}

type GameRecord struct {
	ID              uint `gorm:"primaryKey"`
	WinnerID        string
	LoserID         string
	WinnerQuestions int
	LoserQuestions  int
	DurationSeconds int
	PlayedOn        time.Time
}

// Store persists users, win counts, and match history.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	RecordGame(ctx context.Context, rec GameRecord) error
	Leaderboard(ctx context.Context) ([]protocol.LeaderboardEntry, error)
	HistoryFor(ctx context.Context, userID string) ([]protocol.HistoryEntry, error)
}
