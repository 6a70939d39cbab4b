// Package export writes a render's timeline in editor and player formats.
package export

const (
	FormatEDL = "edl"
	FormatSRT = "srt"
	FormatVTT = "vtt"
)

// Extension maps a format to its file extension, or "" if unknown.
func Extension(format string) string {
	switch format {
	case FormatEDL:
		return ".edl"
	case FormatSRT:
		return ".srt"
	case FormatVTT:
		return ".vtt"
	}
	return ""
}

type ExportRequest struct {
	Format    string  `json:"format"`
	Name      string  `json:"name,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	OutputDir string  `json:"output_dir"`
}

type ExportResponse struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	EventCount int    `json:"event_count"`
}
