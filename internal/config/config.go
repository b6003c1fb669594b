package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all SyncScribe environment variables.
const EnvPrefix = "SYNCSCRIBE_"

// TranscribeConfig selects and tunes the server-side transcription backend.
type TranscribeConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// ForceReal engages the real provider outside production mode.
	ForceReal bool `yaml:"force_real"`
	// DebugDumpDir receives audio chunks whose transcription failed.
	DebugDumpDir string `yaml:"debug_dump_dir"`
}

// Config holds all application configuration. Secrets (API keys, the
// ingestion auth token) are loaded exclusively from environment variables
// and never appear in the config file.
type Config struct {
	ListenAddr            string           `yaml:"listen_addr"`
	ServerURL             string           `yaml:"server_url"`
	DBPath                string           `yaml:"db_path"`
	Mode                  string           `yaml:"mode"`
	ChunkInterval         string           `yaml:"chunk_interval"`
	MicSampleRate         int              `yaml:"mic_sample_rate"`
	MicSampleRates        []int            `yaml:"mic_sample_rates"`
	Transcribe            TranscribeConfig `yaml:"transcribe"`
	SummaryModel          string           `yaml:"summary_model"`
	ChatModel             string           `yaml:"chat_model"`
	// ArchiveDir receives local markdown exports of finished sessions.
	// Empty disables the export.
	ArchiveDir            string           `yaml:"archive_dir"`
	GDriveFolderID        string           `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string           `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	GeminiAPIKey    string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	AuthToken       string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:     ":8080",
		ServerURL:      "http://localhost:8080",
		DBPath:         "data/syncscribe.db",
		Mode:           "development",
		ChunkInterval:  "5s",
		MicSampleRate:  16000,
		MicSampleRates: []int{48000, 24000, 16000},
		Transcribe: TranscribeConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
		},
		SummaryModel:          "gpt-4o-mini",
		ChatModel:             "gpt-4o-mini",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedChunkInterval returns ChunkInterval as a time.Duration, falling
// back to 5s if the value is invalid.
func (c *Config) ParsedChunkInterval() time.Duration {
	d, err := time.ParseDuration(c.ChunkInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 24000, 12000, 8000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_INTERVAL"); v != "" {
		cfg.ChunkInterval = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_PROVIDER"); v != "" {
		cfg.Transcribe.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_MODEL"); v != "" {
		cfg.Transcribe.Model = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_FORCE_REAL"); v != "" {
		cfg.Transcribe.ForceReal = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_DEBUG_DUMP_DIR"); v != "" {
		cfg.Transcribe.DebugDumpDir = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv(EnvPrefix + "CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv(EnvPrefix + "ARCHIVE_DIR"); v != "" {
		cfg.ArchiveDir = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.AuthToken = os.Getenv(EnvPrefix + "AUTH_TOKEN")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcribe.Provider {
	case "", "simulated":
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			warnings = append(warnings, "Gemini API key not configured — transcription falls back to simulation. Set "+EnvPrefix+"GEMINI_API_KEY.")
		}
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured — transcription falls back to simulation. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcribe provider %q — transcription falls back to simulation.", cfg.Transcribe.Provider))
	}

	if cfg.OpenAIAPIKey == "" && cfg.AnthropicAPIKey == "" && cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "No LLM API key configured — session summaries and chat are disabled.")
	}
	if cfg.AuthToken == "" {
		warnings = append(warnings, "Auth token not configured — the ingestion API accepts unauthenticated requests. Set "+EnvPrefix+"AUTH_TOKEN.")
	}
	if _, err := time.ParseDuration(cfg.ChunkInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid chunk_interval %q — using default 5s.", cfg.ChunkInterval))
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
