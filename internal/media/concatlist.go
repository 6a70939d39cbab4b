package media

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteConcatList writes a concat-demuxer list naming files in order.
// Paths are made absolute so the list can live in any directory.
func WriteConcatList(listPath string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("concat list: no files")
	}

	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, p := range files {
		abs, err := filepath.Abs(p)
		if err != nil {
			f.Close()
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		fmt.Fprintf(w, "file %s\n", quoteConcatPath(abs))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write concat list: %w", err)
	}
	return f.Close()
}

// quoteConcatPath single-quotes a path for the concat demuxer. A literal
// quote closes the string, is escaped, and reopens it.
func quoteConcatPath(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}
