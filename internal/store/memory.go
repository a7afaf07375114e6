package store

import (
	"context"
	"sort"
	"sync"

	"github.com/noazlee/code-off/pkg/protocol"
)

// MemoryStore keeps everything in maps. Used by tests and by the server
// when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User // by id
	games []GameRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (s *MemoryStore) CreateUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return ErrUsernameTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) UserByUsername(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) UserByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) RecordGame(_ context.Context, rec GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = append(s.games, rec)
	if u, ok := s.users[rec.WinnerID]; ok {
		u.NumWins++
		s.users[rec.WinnerID] = u
	}
	return nil
}

func (s *MemoryStore) Leaderboard(_ context.Context) ([]protocol.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]protocol.LeaderboardEntry, 0, len(s.users))
	for _, u := range s.users {
		entries = append(entries, protocol.LeaderboardEntry{ID: u.ID, Username: u.Username, NumWins: u.NumWins})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].NumWins != entries[j].NumWins {
			return entries[i].NumWins > entries[j].NumWins
		}
		return entries[i].Username < entries[j].Username
	})
	return entries, nil
}

func (s *MemoryStore) HistoryFor(_ context.Context, userID string) ([]protocol.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []protocol.HistoryEntry
	for i := len(s.games) - 1; i >= 0; i-- {
		rec := s.games[i]
		if rec.WinnerID != userID && rec.LoserID != userID {
			continue
		}
		opponentID := rec.WinnerID
		yours, theirs := rec.LoserQuestions, rec.WinnerQuestions
		if rec.WinnerID == userID {
			opponentID = rec.LoserID
			yours, theirs = rec.WinnerQuestions, rec.LoserQuestions
		}
		entries = append(entries, protocol.HistoryEntry{
			Opponent:                  s.nameOf(opponentID),
			Winner:                    s.nameOf(rec.WinnerID),
			YourQuestionsAnswered:     yours,
			OpponentQuestionsAnswered: theirs,
			DurationSeconds:           rec.DurationSeconds,
			PlayedOn:                  rec.PlayedOn,
		})
	}
	return entries, nil
}

func (s *MemoryStore) nameOf(id string) string {
	if u, ok := s.users[id]; ok {
		return u.Username
	}
	return id
}
