package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// Generate renders the timeline in the requested format and returns the
// document with its event count.
func Generate(tl *timeline.Timeline, format, title, mediaPath string, frameRate float64) (string, int, error) {
	switch format {
	case FormatEDL:
		return GenerateEDL(tl, title, mediaPath, frameRate), len(tl.Intervals), nil
	case FormatSRT:
		return GenerateSRT(tl), len(Cues(tl)), nil
	case FormatVTT:
		return GenerateVTT(tl), len(Cues(tl)), nil
	}
	return "", 0, fmt.Errorf("unsupported export format %q", format)
}

// WriteFile validates the request and writes the export into OutputDir.
func WriteFile(tl *timeline.Timeline, req ExportRequest, fallbackName, mediaPath string) (*ExportResponse, error) {
	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return nil, err
	}
	ext := Extension(req.Format)
	if ext == "" {
		return nil, fmt.Errorf("format must be one of edl, srt, vtt")
	}

	name := SanitizeName(req.Name, 120)
	if name == "" {
		name = SanitizeName(fallbackName, 120)
	}
	if name == "" {
		name = "heimdex_short"
	}

	doc, n, err := Generate(tl, req.Format, name, mediaPath, req.FrameRate)
	if err != nil {
		return nil, err
	}

	outputPath := filepath.Join(req.OutputDir, name+ext)
	if err := os.WriteFile(outputPath, []byte(doc), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export file: %w", err)
	}
	return &ExportResponse{
		Status:     "ok",
		Format:     req.Format,
		OutputPath: outputPath,
		EventCount: n,
	}, nil
}
