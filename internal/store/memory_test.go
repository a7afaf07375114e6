package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateUser_RejectsDuplicateUsername(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "1", Username: "alice"}))
	err := s.CreateUser(ctx, User{ID: "2", Username: "alice"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = s.UserByID(ctx, "2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserLookups(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User{ID: "1", Username: "alice"}))

	byName, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "1", byName.ID)

	_, err = s.UserByUsername(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordGame_IncrementsWinnerWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User{ID: "1", Username: "alice"}))
	require.NoError(t, s.CreateUser(ctx, User{ID: "2", Username: "bob"}))

	require.NoError(t, s.RecordGame(ctx, GameRecord{WinnerID: "1", LoserID: "2"}))
	require.NoError(t, s.RecordGame(ctx, GameRecord{WinnerID: "1", LoserID: "2"}))
	require.NoError(t, s.RecordGame(ctx, GameRecord{WinnerID: "2", LoserID: "1"}))

	board, err := s.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, "alice", board[0].Username)
	require.Equal(t, 2, board[0].NumWins)
	require.Equal(t, "bob", board[1].Username)
	require.Equal(t, 1, board[1].NumWins)
}

func TestHistoryFor_NewestFirstFromUserPerspective(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User{ID: "1", Username: "alice"}))
	require.NoError(t, s.CreateUser(ctx, User{ID: "2", Username: "bob"}))

	older := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	require.NoError(t, s.RecordGame(ctx, GameRecord{
		WinnerID: "1", LoserID: "2",
		WinnerQuestions: 3, LoserQuestions: 1,
		DurationSeconds: 300, PlayedOn: older,
	}))
	require.NoError(t, s.RecordGame(ctx, GameRecord{
		WinnerID: "2", LoserID: "1",
		WinnerQuestions: 4, LoserQuestions: 2,
		DurationSeconds: 480, PlayedOn: newer,
	}))

	hist, err := s.HistoryFor(ctx, "1")
	require.NoError(t, err)
	require.Len(t, hist, 2)

	// Newest first, counts from alice's side of the table.
	require.Equal(t, "bob", hist[0].Opponent)
	require.Equal(t, "bob", hist[0].Winner)
	require.Equal(t, 2, hist[0].YourQuestionsAnswered)
	require.Equal(t, 4, hist[0].OpponentQuestionsAnswered)

	require.Equal(t, "alice", hist[1].Winner)
	require.Equal(t, 3, hist[1].YourQuestionsAnswered)
	require.Equal(t, 1, hist[1].OpponentQuestionsAnswered)

	other, err := s.HistoryFor(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, other)
}
