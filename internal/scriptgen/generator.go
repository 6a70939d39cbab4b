// Package scriptgen asks a language model for a two-host dialogue script
// about a piece of source text.
package scriptgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/script"
)

var ErrNoAPIKey = errors.New("openai api key not configured")

// Dialogue is the structured model output.
type Dialogue struct {
	Lines []DialogueLine `json:"lines" jsonschema_description:"The dialogue in speaking order, 6 to 14 lines."`
}

type DialogueLine struct {
	Speaker string `json:"speaker" jsonschema_description:"Who speaks: one of the listed hosts, uppercase."`
	Text    string `json:"text" jsonschema_description:"What the host says, one or two short sentences."`
	Emotion string `json:"emotion" jsonschema:"enum=neutral,enum=angry,enum=excited,enum=confused,enum=teaching" jsonschema_description:"Delivery of the line."`
}

func generateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var dialogueSchema = generateSchema[Dialogue]()

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; empty uses the default.
	BaseURL string
	Hosts   []script.Speaker
	Logger  *slog.Logger
	Options []option.RequestOption
}

type Generator struct {
	client openai.Client
	model  openai.ChatModel
	hosts  []script.Speaker
	logger *slog.Logger
}

func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []script.Speaker{"PETER", "STEWIE"}
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	return &Generator{
		client: openai.NewClient(opts...),
		model:  openai.ChatModel(cfg.Model),
		hosts:  cfg.Hosts,
		logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "scriptgen"),
	}, nil
}

// Dialogue generates a script explaining sourceText. Lines from speakers
// outside the host list are attributed to the first host.
func (g *Generator) Dialogue(ctx context.Context, sourceText string) ([]script.Line, error) {
	sourceText = strings.TrimSpace(sourceText)
	if sourceText == "" {
		return nil, script.ErrEmptyScript
	}

	resp, err := g.complete(ctx, g.prompt(sourceText))
	if err != nil {
		return nil, err
	}

	hosts := make(map[script.Speaker]bool, len(g.hosts))
	for _, h := range g.hosts {
		hosts[h.Normalize()] = true
	}

	var lines []script.Line
	for _, dl := range resp.Lines {
		text := strings.TrimSpace(dl.Text)
		if text == "" {
			continue
		}
		speaker := script.Speaker(dl.Speaker).Normalize()
		if !hosts[speaker] {
			speaker = g.hosts[0].Normalize()
		}
		lines = append(lines, script.Line{
			Index:   len(lines),
			Text:    text,
			Speaker: speaker,
			Emotion: script.ParseEmotion(dl.Emotion),
		})
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("model returned no dialogue: %w", script.ErrEmptyScript)
	}

	g.logger.Info("dialogue generated", "lines", len(lines), "model", g.model)
	return lines, nil
}

func (g *Generator) prompt(sourceText string) string {
	names := make([]string, len(g.hosts))
	for i, h := range g.hosts {
		names[i] = string(h.Normalize())
	}
	return fmt.Sprintf(`You are writing a short, funny educational video script for vertical video.
The hosts are: %s. %s asks questions and reacts; the others explain.
Explain the following material in a natural back-and-forth conversation.
Keep every line short enough to read as an on-screen caption.

Material:
%s`, strings.Join(names, ", "), names[0], sourceText)
}

func (g *Generator) complete(ctx context.Context, prompt string) (*Dialogue, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "dialogue_script",
		Description: openai.String("A two-host dialogue script"),
		Schema:      dialogueSchema,
		Strict:      openai.Bool(true),
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: g.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	raw := completion.Choices[0].Message.Content
	if raw == "" {
		return nil, fmt.Errorf("openai returned empty content, finish reason %s", completion.Choices[0].FinishReason)
	}

	var d Dialogue
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("parse dialogue response: %w", err)
	}
	return &d, nil
}
