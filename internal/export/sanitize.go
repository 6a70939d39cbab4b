package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// ErrInvalidOutputDir is returned for export directories the agent will not
// write into.
var ErrInvalidOutputDir = errors.New("invalid output_dir")

// SanitizeName turns a render title or caption into a portable file name
// fragment. Control characters are dropped, anything outside letters, digits
// and " -_.,()" becomes '_', whitespace runs collapse to one space and the
// result is cut to maxLen runes. Trailing dots and spaces are trimmed.
func SanitizeName(s string, maxLen int) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		}
		return '_'
	}, s)

	name := []rune(strings.Join(strings.Fields(mapped), " "))
	if maxLen > 0 && len(name) > maxLen {
		name = name[:maxLen]
	}
	return strings.TrimRight(string(name), ". ")
}

// ValidateOutputDir accepts only absolute, clean paths of existing
// directories.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: required", ErrInvalidOutputDir)
	}
	if slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), "..") {
		return fmt.Errorf("%w: path traversal", ErrInvalidOutputDir)
	}
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("%w: must be absolute", ErrInvalidOutputDir)
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%w: must be a clean path", ErrInvalidOutputDir)
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: does not exist", ErrInvalidOutputDir)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrInvalidOutputDir, err)
	case !info.IsDir():
		return fmt.Errorf("%w: not a directory", ErrInvalidOutputDir)
	}
	return nil
}
