package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noazlee/code-off/pkg/protocol"
)

// GormStore backs the server with Postgres.
type GormStore struct {
	db *gorm.DB
}

func OpenGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &GameRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u User) error {
	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", u.Username).First(&existing).Error
	if err == nil {
		return ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(&u).Error
}

func (s *GormStore) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *GormStore) UserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *GormStore) RecordGame(ctx context.Context, rec GameRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return tx.Model(&User{}).
			Where("id = ?", rec.WinnerID).
			UpdateColumn("num_wins", gorm.Expr("num_wins + 1")).Error
	})
}

func (s *GormStore) Leaderboard(ctx context.Context) ([]protocol.LeaderboardEntry, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("num_wins DESC, username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	entries := make([]protocol.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, protocol.LeaderboardEntry{ID: u.ID, Username: u.Username, NumWins: u.NumWins})
	}
	return entries, nil
}

func (s *GormStore) HistoryFor(ctx context.Context, userID string) ([]protocol.HistoryEntry, error) {
	var recs []GameRecord
	err := s.db.WithContext(ctx).
		Where("winner_id = ? OR loser_id = ?", userID, userID).
		Order("played_on DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	entries := make([]protocol.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, s.historyEntry(ctx, rec, userID))
	}
	return entries, nil
}

func (s *GormStore) historyEntry(ctx context.Context, rec GameRecord, userID string) protocol.HistoryEntry {
	opponentID := rec.WinnerID
	yours, theirs := rec.LoserQuestions, rec.WinnerQuestions
	if rec.WinnerID == userID {
		opponentID = rec.LoserID
		yours, theirs = rec.WinnerQuestions, rec.LoserQuestions
	}

	opponent := opponentID
	if u, err := s.UserByID(ctx, opponentID); err == nil {
		opponent = u.Username
	}
	winner := rec.WinnerID
	if u, err := s.UserByID(ctx, rec.WinnerID); err == nil {
		winner = u.Username
	}

	return protocol.HistoryEntry{
		Opponent:                  opponent,
		Winner:                    winner,
		YourQuestionsAnswered:     yours,
		OpponentQuestionsAnswered: theirs,
		DurationSeconds:           rec.DurationSeconds,
		PlayedOn:                  rec.PlayedOn,
	}
}
