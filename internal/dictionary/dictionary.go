// Package dictionary loads the source word list a match draws its N words
// from, one word per line.
package dictionary

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// List is an in-memory source word list.
type List struct {
	words []string
}

// Load reads path, one source word per line. Blank lines and lines
// beginning with "#" are skipped.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: open %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dictionary: read %s: %w", path, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("dictionary: %s contains no words", path)
	}
	return &List{words: words}, nil
}

// ErrTooFew is returned by PickWords when the list is smaller than n.
var ErrTooFew = fmt.Errorf("dictionary: not enough distinct words")

// PickWords returns n distinct words chosen without replacement. Because a
// word, once picked, is never picked again in the same match, the result
// has no duplicates.
func (l *List) PickWords(n int) ([]string, error) {
	if n > len(l.words) {
		return nil, ErrTooFew
	}
	shuffled := make([]string, len(l.words))
	copy(shuffled, l.words)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n], nil
}
