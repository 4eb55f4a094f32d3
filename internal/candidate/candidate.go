// Package candidate produces the identifiers a run probes.
package candidate

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Source supplies up to max candidates for a run. A draining source returns
// what it already removed alongside any error.
type Source interface {
	Candidates(ctx context.Context, max int) ([]string, error)
}

// LoadLines reads a newline separated file, skipping blank lines and # comments.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// Normalize trims whitespace and a leading @.
func Normalize(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "@"))
}

// Dedupe normalizes ids and drops empties and repeats, keeping first occurrence order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = Normalize(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Expand turns each word into word, word{i}, word_{i} and word-{i} for i in 1..maxSuffix.
func Expand(words []string, maxSuffix int) []string {
	out := make([]string, 0, len(words)*(1+3*max(maxSuffix, 0)))
	for _, word := range words {
		word = Normalize(word)
		if word == "" {
			continue
		}
		out = append(out, word)
		for i := 1; i <= maxSuffix; i++ {
			n := strconv.Itoa(i)
			out = append(out, word+n, word+"_"+n, word+"-"+n)
		}
	}
	return Dedupe(out)
}

// WordlistSource expands a fixed word list on demand.
type WordlistSource struct {
	words     []string
	maxSuffix int
}

func NewWordlistSource(words []string, maxSuffix int) *WordlistSource {
	return &WordlistSource{words: words, maxSuffix: maxSuffix}
}

// LoadWordlistSource reads words from path.
func LoadWordlistSource(path string, maxSuffix int) (*WordlistSource, error) {
	words, err := LoadLines(path)
	if err != nil {
		return nil, err
	}
	return NewWordlistSource(words, maxSuffix), nil
}

func (s *WordlistSource) Candidates(_ context.Context, max int) ([]string, error) {
	all := Expand(s.words, s.maxSuffix)
	if max > 0 && len(all) > max {
		all = all[:max]
	}
	return all, nil
}
