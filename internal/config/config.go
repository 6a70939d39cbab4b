// Package config provides configuration management for heimdex-shorts.
// Configuration is loaded from an optional .env file and environment
// variables with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".heimdex-shorts"

	// Environment variable names
	EnvPort     = "HEIMDEX_PORT"
	EnvLogLevel = "HEIMDEX_LOG_LEVEL"
	EnvDataDir  = "HEIMDEX_DATA_DIR"
	EnvHeadless = "HEIMDEX_HEADLESS"
	EnvDotenv   = "HEIMDEX_ENV_FILE"

	// Media tool environment variable names
	EnvFFmpegBin  = "HEIMDEX_FFMPEG"
	EnvFFprobeBin = "HEIMDEX_FFPROBE"

	// Composition inputs
	EnvCastFile   = "HEIMDEX_CAST_FILE"
	EnvBackground = "HEIMDEX_BACKGROUND"
	EnvAssetRoot  = "HEIMDEX_ASSET_ROOT"
	EnvInboxDir   = "HEIMDEX_INBOX_DIR"

	// Collaborator credentials
	EnvElevenLabsKey   = "HEIMDEX_ELEVENLABS_API_KEY"
	EnvElevenLabsModel = "HEIMDEX_ELEVENLABS_MODEL"
	EnvElevenLabsURL   = "HEIMDEX_ELEVENLABS_URL"
	EnvVoicePrefix     = "HEIMDEX_VOICE_"
	EnvOpenAIKey       = "HEIMDEX_OPENAI_API_KEY"
	EnvOpenAIModel     = "HEIMDEX_OPENAI_MODEL"
	EnvCloudEnabled    = "HEIMDEX_CLOUD_ENABLED"
	EnvCloudBaseURL    = "HEIMDEX_CLOUD_BASE_URL"
	EnvCloudToken      = "HEIMDEX_CLOUD_TOKEN"

	// Pipeline tuning
	EnvSynthConcurrency = "HEIMDEX_SYNTH_CONCURRENCY"
	EnvPauseDuration    = "HEIMDEX_PAUSE_DURATION"
	EnvOptionsDuration  = "HEIMDEX_OPTIONS_DURATION"
	EnvKeepSegments     = "HEIMDEX_KEEP_SEGMENTS"
	EnvRetention        = "HEIMDEX_RETENTION"
	EnvTimeoutRender    = "HEIMDEX_TIMEOUT_RENDER"
	EnvTimeoutProbe     = "HEIMDEX_TIMEOUT_PROBE"
	EnvTimeoutConcat    = "HEIMDEX_TIMEOUT_CONCAT"

	// Database filename
	DBFilename = "shorts.db"

	DefaultFFmpegBin        = "ffmpeg"
	DefaultFFprobeBin       = "ffprobe"
	DefaultElevenLabsModel  = "eleven_multilingual_v2"
	DefaultElevenLabsURL    = "https://api.elevenlabs.io"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultSynthConcurrency = 4
	DefaultPauseDuration    = 2 * time.Second
	DefaultOptionsDuration  = 5 * time.Second
	DefaultRetention        = 72 * time.Hour
	DefaultTimeoutRender    = 30 * time.Minute
	DefaultTimeoutProbe     = 30 * time.Second
	DefaultTimeoutConcat    = 5 * time.Minute
	DefaultTimeoutDoctor    = 10 * time.Second
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	WorkDir() string
	OutputDir() string
	Headless() bool

	FFmpegBin() string
	FFprobeBin() string

	CastFile() string
	Background() string
	AssetRoot() string
	InboxDir() string

	ElevenLabsAPIKey() string
	ElevenLabsModel() string
	ElevenLabsURL() string
	Voices() map[string]string
	OpenAIAPIKey() string
	OpenAIModel() string
	CloudEnabled() bool
	CloudBaseURL() string
	CloudToken() string

	SynthConcurrency() int
	PauseDuration() time.Duration
	OptionsDuration() time.Duration
	KeepSegments() bool
	Retention() time.Duration
	TimeoutRender() time.Duration
	TimeoutProbe() time.Duration
	TimeoutConcat() time.Duration
	TimeoutDoctor() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	ffmpegBin  string
	ffprobeBin string

	castFile   string
	background string
	assetRoot  string
	inboxDir   string

	elevenLabsKey   string
	elevenLabsModel string
	elevenLabsURL   string
	voices          map[string]string
	openAIKey       string
	openAIModel     string
	cloudEnabled    bool
	cloudBaseURL    string
	cloudToken      string

	synthConcurrency int
	pauseDuration    time.Duration
	optionsDuration  time.Duration
	keepSegments     bool
	retention        time.Duration
	timeoutRender    time.Duration
	timeoutProbe     time.Duration
	timeoutConcat    time.Duration
}

// New loads the optional .env file and creates an EnvConfig with defaults
// and environment variable overrides. Variables already set in the process
// environment win over the .env file.
func New() (*EnvConfig, error) {
	envFile := os.Getenv(EnvDotenv)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		ffmpegBin:        DefaultFFmpegBin,
		ffprobeBin:       DefaultFFprobeBin,
		elevenLabsModel:  DefaultElevenLabsModel,
		elevenLabsURL:    DefaultElevenLabsURL,
		openAIModel:      DefaultOpenAIModel,
		voices:           voicesFromEnv(os.Environ()),
		synthConcurrency: DefaultSynthConcurrency,
		pauseDuration:    DefaultPauseDuration,
		optionsDuration:  DefaultOptionsDuration,
		retention:        DefaultRetention,
		timeoutRender:    DefaultTimeoutRender,
		timeoutProbe:     DefaultTimeoutProbe,
		timeoutConcat:    DefaultTimeoutConcat,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	setString(&cfg.ffmpegBin, EnvFFmpegBin)
	setString(&cfg.ffprobeBin, EnvFFprobeBin)
	setString(&cfg.castFile, EnvCastFile)
	setString(&cfg.background, EnvBackground)
	setString(&cfg.assetRoot, EnvAssetRoot)
	setString(&cfg.inboxDir, EnvInboxDir)
	setString(&cfg.elevenLabsKey, EnvElevenLabsKey)
	setString(&cfg.elevenLabsModel, EnvElevenLabsModel)
	setString(&cfg.elevenLabsURL, EnvElevenLabsURL)
	setString(&cfg.openAIKey, EnvOpenAIKey)
	setString(&cfg.openAIModel, EnvOpenAIModel)
	setString(&cfg.cloudBaseURL, EnvCloudBaseURL)
	setString(&cfg.cloudToken, EnvCloudToken)

	for _, b := range []struct {
		dst *bool
		key string
	}{
		{&cfg.headless, EnvHeadless},
		{&cfg.cloudEnabled, EnvCloudEnabled},
		{&cfg.keepSegments, EnvKeepSegments},
	} {
		if err := setBool(b.dst, b.key); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv(EnvSynthConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvSynthConcurrency)
		}
		cfg.synthConcurrency = n
	}

	for _, d := range []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.pauseDuration, EnvPauseDuration},
		{&cfg.optionsDuration, EnvOptionsDuration},
		{&cfg.retention, EnvRetention},
		{&cfg.timeoutRender, EnvTimeoutRender},
		{&cfg.timeoutProbe, EnvTimeoutProbe},
		{&cfg.timeoutConcat, EnvTimeoutConcat},
	} {
		if err := setDuration(d.dst, d.key); err != nil {
			return nil, err
		}
	}

	if cfg.cloudEnabled && cfg.cloudBaseURL == "" {
		return nil, fmt.Errorf("%s is required when %s is set", EnvCloudBaseURL, EnvCloudEnabled)
	}

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// setDuration accepts Go duration strings ("2s", "72h") or plain seconds.
func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		secs, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be positive", key)
	}
	*dst = d
	return nil
}

// voicesFromEnv collects HEIMDEX_VOICE_<SPEAKER>=<voice id> pairs.
func voicesFromEnv(environ []string) map[string]string {
	voices := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvVoicePrefix) || value == "" {
			continue
		}
		speaker := strings.ToUpper(strings.TrimPrefix(key, EnvVoicePrefix))
		if speaker != "" {
			voices[speaker] = value
		}
	}
	return voices
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// WorkDir holds per-run scratch directories.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// OutputDir holds rendered audio and video files.
func (c *EnvConfig) OutputDir() string {
	return filepath.Join(c.dataDir, "renders")
}

func (c *EnvConfig) Headless() bool { return c.headless }

func (c *EnvConfig) FFmpegBin() string  { return c.ffmpegBin }
func (c *EnvConfig) FFprobeBin() string { return c.ffprobeBin }

// CastFile defaults to cast.yaml inside the data directory.
func (c *EnvConfig) CastFile() string {
	if c.castFile != "" {
		return c.castFile
	}
	return filepath.Join(c.dataDir, "cast.yaml")
}

func (c *EnvConfig) Background() string { return c.background }
func (c *EnvConfig) AssetRoot() string  { return c.assetRoot }

// InboxDir defaults to inbox inside the data directory.
func (c *EnvConfig) InboxDir() string {
	if c.inboxDir != "" {
		return c.inboxDir
	}
	return filepath.Join(c.dataDir, "inbox")
}

func (c *EnvConfig) ElevenLabsAPIKey() string { return c.elevenLabsKey }
func (c *EnvConfig) ElevenLabsModel() string  { return c.elevenLabsModel }
func (c *EnvConfig) ElevenLabsURL() string    { return c.elevenLabsURL }

// Voices returns a copy of the speaker to voice id overrides.
func (c *EnvConfig) Voices() map[string]string {
	out := make(map[string]string, len(c.voices))
	for k, v := range c.voices {
		out[k] = v
	}
	return out
}

func (c *EnvConfig) OpenAIAPIKey() string { return c.openAIKey }
func (c *EnvConfig) OpenAIModel() string  { return c.openAIModel }
func (c *EnvConfig) CloudEnabled() bool   { return c.cloudEnabled }
func (c *EnvConfig) CloudBaseURL() string { return c.cloudBaseURL }
func (c *EnvConfig) CloudToken() string   { return c.cloudToken }

func (c *EnvConfig) SynthConcurrency() int          { return c.synthConcurrency }
func (c *EnvConfig) PauseDuration() time.Duration   { return c.pauseDuration }
func (c *EnvConfig) OptionsDuration() time.Duration { return c.optionsDuration }
func (c *EnvConfig) KeepSegments() bool             { return c.keepSegments }
func (c *EnvConfig) Retention() time.Duration       { return c.retention }
func (c *EnvConfig) TimeoutRender() time.Duration   { return c.timeoutRender }
func (c *EnvConfig) TimeoutProbe() time.Duration    { return c.timeoutProbe }
func (c *EnvConfig) TimeoutConcat() time.Duration   { return c.timeoutConcat }
func (c *EnvConfig) TimeoutDoctor() time.Duration   { return DefaultTimeoutDoctor }

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
