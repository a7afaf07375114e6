package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noazlee/code-off/pkg/protocol"
)

func newGateway(t *testing.T, handler http.Handler) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(srv.URL, zerolog.Nop())
}

func TestCreateRoom_ReturnsCode(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/create-room", r.URL.Path)

		var req protocol.CreateRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "u1", req.UserID)

		json.NewEncoder(w).Encode(protocol.CreateRoomResponse{RoomCode: "AB12CD"})
	}))

	code, err := g.CreateRoom(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "AB12CD", code)
}

func TestCreateRoom_SecondCallSuppressed(t *testing.T) {
	var hits atomic.Int32
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(protocol.CreateRoomResponse{RoomCode: "AB12CD"})
	}))

	_, err := g.CreateRoom(context.Background(), "u1")
	require.NoError(t, err)

	_, err = g.CreateRoom(context.Background(), "u1")
	require.ErrorIs(t, err, ErrDuplicateRequest)
	require.Equal(t, int32(1), hits.Load())
}

func TestCreateRoom_GuardIsPerUser(t *testing.T) {
	var hits atomic.Int32
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(protocol.CreateRoomResponse{RoomCode: "AB12CD"})
	}))

	_, err := g.CreateRoom(context.Background(), "u1")
	require.NoError(t, err)
	_, err = g.CreateRoom(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestCreateRoom_AlreadyInRoomClassified(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(protocol.APIError{Error: "User already in a game room"})
	}))

	_, err := g.CreateRoom(context.Background(), "u1")
	require.ErrorIs(t, err, ErrAlreadyInRoom)

	// The guard stays armed: the membership exists, retrying is pointless.
	_, err = g.CreateRoom(context.Background(), "u1")
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestCreateRoom_OtherFailuresReArmGuard(t *testing.T) {
	var hits atomic.Int32
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(protocol.APIError{Error: "database unavailable"})
			return
		}
		json.NewEncoder(w).Encode(protocol.CreateRoomResponse{RoomCode: "AB12CD"})
	}))

	_, err := g.CreateRoom(context.Background(), "u1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "database unavailable", apiErr.Message)

	code, err := g.CreateRoom(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "AB12CD", code)
	require.Equal(t, int32(2), hits.Load())
}

func TestFindRandomGame_RoundTrip(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/find-random-game", r.URL.Path)
		json.NewEncoder(w).Encode(protocol.FindRandomGameResponse{RoomCode: "ZZ99XX", CreatedGame: true})
	}))

	resp, err := g.FindRandomGame(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "ZZ99XX", resp.RoomCode)
	require.True(t, resp.CreatedGame)
}

func TestFetchProblem_RoundTrip(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/get-problem", r.URL.Path)

		var req protocol.GetProblemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, protocol.DifficultyMedium, req.Difficulty)

		json.NewEncoder(w).Encode(protocol.Question{
			ProblemID:  "group-anagrams",
			Title:      "Group Anagrams",
			Difficulty: protocol.DifficultyMedium,
		})
	}))

	q, err := g.FetchProblem(context.Background(), "R", "u1", protocol.DifficultyMedium)
	require.NoError(t, err)
	require.Equal(t, "group-anagrams", q.ProblemID)
}

func TestSubmitSolution_ResultsDecoded(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.SubmitSolutionResponse{
			Passed:      false,
			PassedTests: 1,
			TotalTests:  2,
			Results: []protocol.TestCaseResult{
				{Case: "case 1", Passed: true},
				{Case: "case 2", Expected: "4", Actual: "(no output)", Passed: false},
			},
		})
	}))

	resp, err := g.SubmitSolution(context.Background(), protocol.SubmitSolutionRequest{
		UserID: "u1", RoomCode: "R", ProblemID: "two-sum", Code: "x",
	})
	require.NoError(t, err)
	require.False(t, resp.Passed)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "(no output)", resp.Results[1].Actual)
}

func TestFetchHistory_QueryEncodesUserID(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/game-history", r.URL.Path)
		require.Equal(t, "u 1", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode([]protocol.HistoryEntry{{Opponent: "bob", Winner: "bob"}})
	}))

	hist, err := g.FetchHistory(context.Background(), "u 1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "bob", hist[0].Opponent)
}

func TestNonJSONErrorBody_UsedVerbatim(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusBadGateway)
	}))

	err := g.SkipProblem(context.Background(), "R", "u1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
	require.Equal(t, "upstream timeout", apiErr.Message)
}

func TestUnreachableServer_ReturnsTransportError(t *testing.T) {
	g := NewHTTPGateway("http://127.0.0.1:1", zerolog.Nop())
	_, err := g.CreateRoom(context.Background(), "u1")
	require.Error(t, err)
	var apiErr *APIError
	require.False(t, errors.As(err, &apiErr))
}
