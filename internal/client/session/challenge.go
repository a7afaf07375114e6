package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/noazlee/code-off/pkg/protocol"
)

// Challenge flow: Idle -> Fetching -> HasActiveQuestion -> Idle. The
// local participant's entry in s.questions plus the fetching flag carry
// the state; remote entries are written only from channel events.

func (s *Session) handleSelectDifficulty(d protocol.Difficulty) {
	if s.isSpectator() {
		return
	}
	if s.fetching || s.questions[s.cfg.UserID] != nil {
		s.log.Debug().Msg("select ignored, question already in flight")
		return
	}
	if !d.Valid() {
		s.notify(NotifyError, fmt.Sprintf("Unknown difficulty %q.", d))
		return
	}
	s.fetching = true
	roomCode, userID := s.roomCode, s.cfg.UserID
	go func() {
		q, err := s.gw.FetchProblem(context.Background(), roomCode, userID, d)
		s.post(problemResultMsg{question: q, err: err})
	}()
}

func (s *Session) handleProblemResult(m problemResultMsg) {
	s.fetching = false
	if m.err != nil {
		s.log.Warn().Err(m.err).Msg("problem fetch failed")
		s.notify(NotifyError, "Could not fetch a problem. Try again.")
		return
	}
	q := m.question
	s.questions[s.cfg.UserID] = &q
	// Templates arrive with escaped newlines; expand into a real buffer
	// and propagate it like any other edit.
	s.handleEditCode(unescapeTemplate(q.SolutionTemplate))
}

func (s *Session) handleSubmit() {
	q := s.questions[s.cfg.UserID]
	if q == nil {
		s.notify(NotifyError, "Select a question before submitting.")
		return
	}
	req := protocol.SubmitSolutionRequest{
		UserID:    s.cfg.UserID,
		RoomCode:  s.roomCode,
		Code:      s.buffers[s.cfg.UserID],
		ProblemID: q.ProblemID,
	}
	go func() {
		resp, err := s.gw.SubmitSolution(context.Background(), req)
		s.post(submitResultMsg{resp: resp, err: err})
	}()
}

func (s *Session) handleSubmitResult(m submitResultMsg) {
	if m.err != nil {
		s.log.Warn().Err(m.err).Msg("submission failed")
		s.notify(NotifyError, "Submission failed. Check your connection and try again.")
		return
	}
	if m.resp.Passed {
		s.notify(NotifySuccess, fmt.Sprintf("All %d test cases passed!", m.resp.TotalTests))
		delete(s.questions, s.cfg.UserID)
		return
	}
	// Partial failure is a first-class outcome: keep the question so the
	// user can iterate, and enumerate exactly the failing cases.
	s.notify(NotifyError, failureReport(m.resp))
}

func (s *Session) handleSkip() {
	if s.questions[s.cfg.UserID] == nil {
		return
	}
	roomCode, userID := s.roomCode, s.cfg.UserID
	go func() {
		err := s.gw.SkipProblem(context.Background(), roomCode, userID)
		s.post(skipResultMsg{err: err})
	}()
}

func (s *Session) handleSkipResult(m skipResultMsg) {
	if m.err != nil {
		s.log.Warn().Err(m.err).Msg("skip failed")
		s.notify(NotifyError, "Could not skip the question.")
		return
	}
	delete(s.questions, s.cfg.UserID)
}

// handleSolutionVerified reacts to the server's authoritative verdict
// for the local participant by acknowledging the answer. The hard-mode
// flag is read live, at verification time: the server applies its bonus
// rule from the modifier's state at this moment.
func (s *Session) handleSolutionVerified(p protocol.SolutionVerifiedPayload) {
	if p.UserID != s.cfg.UserID || !p.Correct {
		return
	}
	problemID := ""
	if q := s.questions[s.cfg.UserID]; q != nil {
		problemID = q.ProblemID
	}
	_ = s.ch.Emit(protocol.EvtAnsweredQuestion, protocol.AnsweredQuestionPayload{
		UserID:         s.cfg.UserID,
		RoomCode:       s.roomCode,
		Question:       problemID,
		HardModeActive: s.hardMode,
		Correct:        true,
	})
}

func failureReport(resp protocol.SubmitSolutionResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d test cases passed.", resp.PassedTests, resp.TotalTests)
	for _, r := range resp.Results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(&b, "\n%s: expected %s, got %s", r.Case, r.Expected, r.Actual)
	}
	return b.String()
}

func unescapeTemplate(tpl string) string {
	return strings.ReplaceAll(tpl, `\n`, "\n")
}
