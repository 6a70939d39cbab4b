package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-shorts/internal/app"
	"github.com/heimdex/heimdex-shorts/internal/cast"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/script"
)

func newDoctorCmd(env *environment) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, ffprobe and the filters a render needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			tool, err := app.NewTool(cfg, logger)
			if err != nil {
				return err
			}
			caps, err := tool.RunDoctor(contextOrBackground(cmd))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(caps)
			}
			printCapabilities(cmd.OutOrStdout(), caps)
			if !caps.CanRender {
				return fmt.Errorf("media toolchain cannot render")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw capability report")
	return cmd
}

func printCapabilities(w io.Writer, caps *media.Capabilities) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, dep := range []struct {
		name string
		info media.DepInfo
	}{{"ffmpeg", caps.FFmpeg}, {"ffprobe", caps.FFprobe}} {
		status := mark(dep.info.Available)
		detail := dep.info.Version
		if dep.info.Error != "" {
			detail = dep.info.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", dep.name, status, detail)
	}
	for _, name := range media.RequiredFilters {
		fmt.Fprintf(tw, "filter %s\t%s\t\n", name, mark(caps.Filters[name]))
	}
	for _, name := range media.RequiredEncoders {
		fmt.Fprintf(tw, "encoder %s\t%s\t\n", name, mark(caps.Encoders[name]))
	}
	tw.Flush()
	fmt.Fprintf(w, "can render: %t\n", caps.CanRender)
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "missing"
}

func newCastCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "cast",
		Short: "List speakers with their voices, corners and portraits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := env.load()
			if err != nil {
				return err
			}
			c, err := app.LoadCast(cfg)
			if err != nil {
				return err
			}
			printCast(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func printCast(w io.Writer, c cast.Cast) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPEAKER\tVOICE\tCORNER\tPORTRAIT")
	for _, name := range c.Names() {
		voice, err := c.VoiceFor(name)
		if err != nil {
			voice = "-"
		}
		corner := "auto"
		if pinned, ok := c.PinnedCorner(name); ok {
			corner = string(pinned)
		}
		portrait, ok := c.ResolveImage(name, script.EmotionNeutral)
		if !ok {
			portrait = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, voice, corner, portrait)
	}
	tw.Flush()
	fmt.Fprintf(w, "assets: %s\n", c.AssetRoot)
}
