package compose

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNoBackground = errors.New("no background video found")

// SelectBackground returns path itself for a file, or a uniformly random
// .mp4 from a directory. rnd may be nil.
func SelectBackground(path string, rnd *rand.Rand) (string, error) {
	if path == "" {
		return "", ErrNoBackground
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoBackground, path)
		}
		return "", fmt.Errorf("stat background: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	candidates, err := backgroundCandidates(path)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoBackground, path)
	}

	var i int
	if rnd != nil {
		i = rnd.IntN(len(candidates))
	} else {
		i = rand.IntN(len(candidates))
	}
	return candidates[i], nil
}

func backgroundCandidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read background dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
