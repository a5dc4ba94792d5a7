package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. VIST_BACKEND_URL.
const EnvPrefix = "VIST"

// LoadEnv loads a .env file. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("backend.url", cfg.Backend.URL)
	v.SetDefault("backend.uid", cfg.Backend.UID)
	v.SetDefault("backend.timeout", cfg.Backend.Timeout)
	v.SetDefault("backend.proxy", cfg.Backend.Proxy)
	v.SetDefault("assistant.continuous", cfg.Assistant.Continuous)
	v.SetDefault("assistant.greeting", cfg.Assistant.Greeting)
	v.SetDefault("assistant.display_name", cfg.Assistant.DisplayName)
	v.SetDefault("assistant.history_limit", cfg.Assistant.HistoryLimit)
	v.SetDefault("assistant.narrate", cfg.Assistant.Narrate)
	v.SetDefault("assistant.image_timeout", cfg.Assistant.ImageTimeout)
	v.SetDefault("assistant.time_format", cfg.Assistant.TimeFormat)
	setSynthDefaults(v, "speech.primary", cfg.Speech.Primary)
	setSynthDefaults(v, "speech.fallback", cfg.Speech.Fallback)
	v.SetDefault("speech.duck.enabled", cfg.Speech.Duck.Enabled)
	v.SetDefault("speech.duck.factor", cfg.Speech.Duck.Factor)
	v.SetDefault("speech.duck.min_volume", cfg.Speech.Duck.MinVolume)
	v.SetDefault("speech.duck.fade", cfg.Speech.Duck.Fade)
	v.SetDefault("speech.duck.self_names", cfg.Speech.Duck.SelfNames)
	v.SetDefault("recognition.kind", cfg.Recognition.Kind)
	v.SetDefault("recognition.command", cfg.Recognition.Command)
	v.SetDefault("recognition.args", cfg.Recognition.Args)
	v.SetDefault("recognition.listening_marker", cfg.Recognition.ListeningMarker)
	v.SetDefault("recognition.result_prefix", cfg.Recognition.ResultPrefix)
	v.SetDefault("recognition.error_prefix", cfg.Recognition.ErrorPrefix)
	v.SetDefault("recognition.whisper_model", cfg.Recognition.WhisperModel)
	v.SetDefault("recognition.language", cfg.Recognition.Language)
	v.SetDefault("recognition.max_duration", cfg.Recognition.MaxDuration)
	v.SetDefault("notify.earcon", cfg.Notify.Earcon)
	v.SetDefault("notify.desktop", cfg.Notify.Desktop)
	v.SetDefault("shell.addr", cfg.Shell.Addr)
	v.SetDefault("shell.socket", cfg.Shell.Socket)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	expandPaths(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setSynthDefaults(v *viper.Viper, prefix string, s SynthConfig) {
	v.SetDefault(prefix+".kind", s.Kind)
	v.SetDefault(prefix+".command", s.Command)
	v.SetDefault(prefix+".args", s.Args)
	v.SetDefault(prefix+".voice", s.Voice)
	v.SetDefault(prefix+".format", s.Format)
}

// Validate reports the first invalid setting by its key.
func Validate(cfg Config) error {
	u, err := url.Parse(strings.TrimSpace(cfg.Backend.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url must include scheme and host (e.g. http://127.0.0.1:5000)")
	}
	if cfg.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	switch cfg.Assistant.Narrate {
	case "", "joined", "each":
	default:
		return fmt.Errorf("assistant.narrate must be joined or each, got %q", cfg.Assistant.Narrate)
	}
	if cfg.Assistant.HistoryLimit < 0 {
		return fmt.Errorf("assistant.history_limit must not be negative")
	}
	if err := validateSynth("speech.primary", cfg.Speech.Primary); err != nil {
		return err
	}
	if err := validateSynth("speech.fallback", cfg.Speech.Fallback); err != nil {
		return err
	}
	if f := cfg.Speech.Duck.Factor; f < 0 || f > 1 {
		return fmt.Errorf("speech.duck.factor must be between 0 and 1, got %v", f)
	}
	switch cfg.Recognition.Kind {
	case "", RecognizerHelper:
	case RecognizerWhisper:
		if cfg.Recognition.WhisperModel == "" {
			return fmt.Errorf("recognition.whisper_model is required for recognition.kind whisper")
		}
	default:
		return fmt.Errorf("unsupported recognition.kind %q", cfg.Recognition.Kind)
	}
	return nil
}

func validateSynth(key string, s SynthConfig) error {
	switch s.Kind {
	case "", SynthNone, SynthEspeak:
	case SynthCommand:
		if s.Command == "" {
			return fmt.Errorf("%s.command is required for kind command", key)
		}
	case SynthMedia:
		if s.Command == "" {
			return fmt.Errorf("%s.command is required for kind media", key)
		}
		switch s.Format {
		case "", "mp3", "wav":
		default:
			return fmt.Errorf("%s.format must be mp3 or wav, got %q", key, s.Format)
		}
	default:
		return fmt.Errorf("unsupported %s.kind %q", key, s.Kind)
	}
	return nil
}

func expandPaths(cfg *Config) {
	cfg.Notify.Earcon = expandPath(cfg.Notify.Earcon)
	cfg.Shell.Socket = expandPath(cfg.Shell.Socket)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Recognition.WhisperModel = expandPath(cfg.Recognition.WhisperModel)
}

// expandPath expands environment variables and a leading ~.
func expandPath(value string) string {
	if value == "" {
		return value
	}
	value = os.ExpandEnv(value)
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, strings.TrimPrefix(value, "~"))
		}
	}
	return value
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
