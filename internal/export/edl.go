package export

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// GenerateEDL writes one CMX3600 event per interval, all cut from the
// rendered media. Source and record times match because the timeline is
// contiguous from zero.
func GenerateEDL(tl *timeline.Timeline, title, mediaPath string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, iv := range tl.Intervals {
		in := toTimecode(iv.Start, fps)
		out := toTimecode(iv.End, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "AA/V", in, out, in, out),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(iv)),
		)
		if mediaPath != "" {
			lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", mediaPath))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func clipName(iv timeline.Interval) string {
	switch {
	case iv.IsPause():
		return fmt.Sprintf("%03d PAUSE", iv.Index)
	case iv.IsOptions():
		return fmt.Sprintf("%03d OPTIONS", iv.Index)
	}
	text := strings.Join(strings.Fields(iv.Text), " ")
	return SanitizeName(fmt.Sprintf("%03d %s %s", iv.Index, iv.Speaker, text), 80)
}

func toTimecode(d time.Duration, fps int) string {
	// Integer rounding, half up, so 1.05s at 30fps is exactly 32 frames.
	totalFrames := int((d.Nanoseconds()*int64(fps) + int64(time.Second)/2) / int64(time.Second))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
