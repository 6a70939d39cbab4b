package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/scriptgen"
)

func newGenerateCmd(env *environment) *cobra.Command {
	var (
		source string
		out    string
		hosts  []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a dialogue script explaining a source text",
		Long: `Generate asks the language model for a two-host dialogue about the source
text and writes it as a script document ready for render. Reads stdin when
--source is "-".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSource(cmd.InOrStdin(), source)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("source text is empty")
			}

			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			speakers := make([]script.Speaker, 0, len(hosts))
			for _, h := range hosts {
				speakers = append(speakers, script.Speaker(h).Normalize())
			}
			gen, err := scriptgen.New(scriptgen.Config{
				APIKey: cfg.OpenAIAPIKey(),
				Model:  cfg.OpenAIModel(),
				Hosts:  speakers,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			lines, err := gen.Dialogue(contextOrBackground(cmd), text)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(script.Document{Lines: lines}, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d lines to %s\n", len(lines), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "-", "source text file, or - for stdin")
	cmd.Flags().StringVar(&out, "out", "", "output script path (default stdout)")
	cmd.Flags().StringSliceVar(&hosts, "hosts", nil, "host speakers (default PETER,STEWIE)")
	return cmd
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	return string(data), err
}
