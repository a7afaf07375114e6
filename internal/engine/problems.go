package engine

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/noazlee/code-off/pkg/protocol"
)

var ErrUnknownProblem = errors.New("unknown problem")
var ErrNoProblemForDifficulty = errors.New("no problem for difficulty")

type TestCase struct {
	Name     string
	Input    string
	Expected string
}

type Problem struct {
	protocol.Question
	Cases []TestCase
}

// Built-in problem bank. Templates carry escaped newlines, matching how
// the REST surface serves them.
var Bank = []Problem{
	{
		Question: protocol.Question{
			ProblemID:        "two-sum",
			Title:            "Two Sum",
			Difficulty:       protocol.DifficultyEasy,
			Description:      "Given an array of integers and a target, return the indices of the two numbers that add up to the target.",
			SolutionTemplate: `function twoSum(nums, target) {\n  // your code here\n}`,
		},
		Cases: []TestCase{
			{Name: "case 1", Input: "[2,7,11,15], 9", Expected: "[0,1]"},
			{Name: "case 2", Input: "[3,2,4], 6", Expected: "[1,2]"},
			{Name: "case 3", Input: "[3,3], 6", Expected: "[0,1]"},
		},
	},
	{
		Question: protocol.Question{
			ProblemID:        "reverse-string",
			Title:            "Reverse String",
			Difficulty:       protocol.DifficultyEasy,
			Description:      "Return the input string reversed.",
			SolutionTemplate: `function reverseString(s) {\n  // your code here\n}`,
		},
		Cases: []TestCase{
			{Name: "case 1", Input: `"hello"`, Expected: `"olleh"`},
			{Name: "case 2", Input: `"ab"`, Expected: `"ba"`},
		},
	},
	{
		Question: protocol.Question{
			ProblemID:        "longest-substring",
			Title:            "Longest Substring Without Repeating Characters",
			Difficulty:       protocol.DifficultyMedium,
			Description:      "Return the length of the longest substring without repeating characters.",
			SolutionTemplate: `function lengthOfLongestSubstring(s) {\n  // your code here\n}`,
		},
		Cases: []TestCase{
			{Name: "case 1", Input: `"abcabcbb"`, Expected: "3"},
			{Name: "case 2", Input: `"bbbbb"`, Expected: "1"},
			{Name: "case 3", Input: `"pwwkew"`, Expected: "3"},
		},
	},
	{
		Question: protocol.Question{
			ProblemID:        "group-anagrams",
			Title:            "Group Anagrams",
			Difficulty:       protocol.DifficultyMedium,
			Description:      "Group the strings that are anagrams of each other.",
			SolutionTemplate: `function groupAnagrams(strs) {\n  // your code here\n}`,
		},
		Cases: []TestCase{
			{Name: "case 1", Input: `["eat","tea","tan","ate","nat","bat"]`, Expected: `[["eat","tea","ate"],["tan","nat"],["bat"]]`},
			{Name: "case 2", Input: `[""]`, Expected: `[[""]]`},
		},
	},
	{
		Question: protocol.Question{
			ProblemID:        "median-sorted-arrays",
			Title:            "Median of Two Sorted Arrays",
			Difficulty:       protocol.DifficultyHard,
			Description:      "Return the median of two sorted arrays in O(log(m+n)).",
			SolutionTemplate: `function findMedianSortedArrays(nums1, nums2) {\n  // your code here\n}`,
		},
		Cases: []TestCase{
			{Name: "case 1", Input: "[1,3], [2]", Expected: "2.0"},
			{Name: "case 2", Input: "[1,2], [3,4]", Expected: "2.5"},
		},
	},
	{
		Question: protocol.Question{
			ProblemID:        "trapping-rain-water",
			Title:            "Trapping Rain Water",
			Difficulty:       protocol.DifficultyHard,
			Description:      "Given an elevation map, compute how much water it can trap.",
			SolutionTemplate: `function trap(height) {\n  // your code here\n}`,
		},
		Cases: []TestCase{
			{Name: "case 1", Input: "[0,1,0,2,1,0,1,3,2,1,2,1]", Expected: "6"},
			{Name: "case 2", Input: "[4,2,0,3,2,5]", Expected: "9"},
		},
	},
}

func ProblemByID(id string) (Problem, error) {
	for _, p := range Bank {
		if p.ProblemID == id {
			return p, nil
		}
	}
	return Problem{}, ErrUnknownProblem
}

func PickProblem(d protocol.Difficulty, rng *rand.Rand) (Problem, error) {
	var pool []Problem
	for _, p := range Bank {
		if p.Difficulty == d {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		return Problem{}, ErrNoProblemForDifficulty
	}
	return pool[rng.Intn(len(pool))], nil
}

// Judge evaluates a submission against a problem's cases. Real code
// execution is out of scope; implementations approximate a verdict.
type Judge interface {
	Evaluate(p Problem, code string) protocol.SubmitSolutionResponse
}

// StubJudge passes every case for any non-empty submission that was
// actually edited away from the handed-out template, and fails all
// cases otherwise. Good enough to drive the duel loop end to end.
type StubJudge struct{}

func (StubJudge) Evaluate(p Problem, code string) protocol.SubmitSolutionResponse {
	trimmed := strings.TrimSpace(code)
	pass := trimmed != "" && trimmed != strings.TrimSpace(strings.ReplaceAll(p.SolutionTemplate, `\n`, "\n"))

	resp := protocol.SubmitSolutionResponse{TotalTests: len(p.Cases)}
	for _, c := range p.Cases {
		r := protocol.TestCaseResult{Case: c.Name, Expected: c.Expected, Passed: pass}
		if pass {
			r.Actual = c.Expected
			resp.PassedTests++
		} else {
			r.Actual = "(no output)"
		}
		resp.Results = append(resp.Results, r)
	}
	resp.Passed = resp.PassedTests == resp.TotalTests && resp.TotalTests > 0
	return resp
}
