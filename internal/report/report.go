// Package report renders tournament results as text files, JSON and a
// terminal leaderboard.
package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/okian/promptelo/internal/domain/model"
)

// DefaultDir is where text reports are written when no directory is given.
const DefaultDir = "generated_prompts"

const maxSlugRunes = 50

// Text renders the leaderboard report: task, test cases, every candidate with
// its rating, and the best candidate.
func Text(res *model.Result) string {
	var sb strings.Builder
	sb.WriteString("=== TASK ===\n")
	sb.WriteString(res.Task.Description)
	sb.WriteString("\n\n=== TEST CASES ===\n")
	for _, tc := range res.Task.TestCases {
		sb.WriteString(tc)
		sb.WriteString("\n")
	}
	sb.WriteString("\n=== LEADERBOARD (ELO) ===\n")
	for _, c := range res.Standings {
		fmt.Fprintf(&sb, "%s\tELO=%.1f\n%s\n\n", c.ID, c.Rating, c.Content)
	}
	sb.WriteString("=== BEST PROMPT ===\n")
	if best, ok := res.Best(); ok {
		sb.WriteString(best.Content)
	}
	return sb.String()
}

// FileName derives a stable file name from a task description.
func FileName(description string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(description))
	return fmt.Sprintf("%s_%d.txt", slug(description), h.Sum32()%100000)
}

func slug(s string) string {
	var sb strings.Builder
	sep := false
	n := 0
	for _, r := range s {
		if n >= maxSlugRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if sep && sb.Len() > 0 {
				sb.WriteByte('_')
				n++
			}
			sep = false
			sb.WriteRune(r)
			n++
		case unicode.IsSpace(r) || r == '-':
			sep = true
		}
	}
	out := strings.Trim(sb.String(), "_")
	if out == "" {
		return "task"
	}
	return out
}

// WriteText writes the text report into dir, creating it if needed, and
// returns the file path.
func WriteText(dir string, res *model.Result) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(res.Task.Description))
	if err := WriteTextFile(path, res); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTextFile writes the text report to path.
func WriteTextFile(path string, res *model.Result) error {
	if err := os.WriteFile(path, []byte(Text(res)), 0o644); err != nil { //nolint:gosec // report is meant to be readable
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// WriteJSON encodes the full result, including the match log.
func WriteJSON(w io.Writer, res *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}
