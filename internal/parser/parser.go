// Package parser reads solved-problem registry files.
//
// A registry file holds one block per solved problem:
//
//	ID: two-sum
//	Title: Two Sum
//	Difficulty: Easy
//	Topics: Array, Hash Table
//
// Blocks are separated by a "---" line or by the next "ID:" line. Other lines
// (solution notes, code) are ignored.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/revisit/internal/domain"
	"github.com/conorfennell/revisit/internal/problemkey"
)

const (
	idPrefix         = "ID:"
	titlePrefix      = "Title:"
	difficultyPrefix = "Difficulty:"
	topicsPrefix     = "Topics:"
)

// ParseFile reads a file from the given path and extracts all solved problems.
func ParseFile(path string) ([]domain.SolvedProblem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all solved problems. Malformed
// blocks are skipped and reported in the returned error alongside the
// problems that did parse.
func Parse(r io.Reader) ([]domain.SolvedProblem, error) {
	scanner := bufio.NewScanner(r)
	var problems []domain.SolvedProblem
	var blockErrs []error
	var current domain.SolvedProblem
	var difficulty string
	lineNo, blockStart := 0, 0
	inBlock := false

	finishBlock := func() {
		if !inBlock {
			return
		}
		inBlock = false
		p, err := complete(current, difficulty)
		current, difficulty = domain.SolvedProblem{}, ""
		if err != nil {
			blockErrs = append(blockErrs, fmt.Errorf("line %d: %w", blockStart, err))
			return
		}
		problems = append(problems, p)
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if line == "---" {
			finishBlock()
			continue
		}

		if value, ok := field(line, idPrefix); ok {
			finishBlock()
			inBlock = true
			blockStart = lineNo
			current.ProblemID = value
			continue
		}
		if !inBlock {
			continue
		}

		if value, ok := field(line, titlePrefix); ok {
			current.Title = value
		} else if value, ok := field(line, difficultyPrefix); ok {
			difficulty = value
		} else if value, ok := field(line, topicsPrefix); ok {
			current.Topics = problemkey.SplitTopics(value)
		}
	}

	finishBlock() // Finish the very last block in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return problems, errors.Join(blockErrs...)
}

func field(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}

func complete(p domain.SolvedProblem, difficulty string) (domain.SolvedProblem, error) {
	p.ProblemID = problemkey.Normalize(p.ProblemID)
	if p.ProblemID == "" {
		return p, fmt.Errorf("%w: empty problem id", domain.ErrInvalidInput)
	}
	if p.Title == "" {
		p.Title = p.ProblemID
	}
	d, err := domain.ParseDifficulty(difficulty)
	if err != nil {
		return p, fmt.Errorf("problem %s: %w", p.ProblemID, err)
	}
	p.Difficulty = d
	if len(p.Topics) == 0 {
		return p, fmt.Errorf("%w: problem %s has no topics", domain.ErrInvalidInput, p.ProblemID)
	}
	return p, nil
}
