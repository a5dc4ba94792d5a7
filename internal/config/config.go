// Package config loads the client configuration from YAML, .env and VIST_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vist/internal/ipc"
)

// Config is the top-level configuration.
type Config struct {
	ConfigVersion int               `mapstructure:"config_version" yaml:"config_version"`
	Backend       BackendConfig     `mapstructure:"backend" yaml:"backend"`
	Assistant     AssistantConfig   `mapstructure:"assistant" yaml:"assistant"`
	Speech        SpeechConfig      `mapstructure:"speech" yaml:"speech"`
	Recognition   RecognitionConfig `mapstructure:"recognition" yaml:"recognition"`
	Notify        NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Shell         ShellConfig       `mapstructure:"shell" yaml:"shell"`
	Log           LogConfig         `mapstructure:"log" yaml:"log"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BackendConfig points at the assistant server.
type BackendConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	UID     string        `mapstructure:"uid" yaml:"uid"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Proxy is a SOCKS5 address; empty dials directly.
	Proxy string `mapstructure:"proxy" yaml:"proxy"`
}

// AssistantConfig controls the conversation.
type AssistantConfig struct {
	Continuous   bool          `mapstructure:"continuous" yaml:"continuous"`
	Greeting     string        `mapstructure:"greeting" yaml:"greeting"`
	DisplayName  string        `mapstructure:"display_name" yaml:"display_name"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"`
	Narrate      string        `mapstructure:"narrate" yaml:"narrate"`
	ImageTimeout time.Duration `mapstructure:"image_timeout" yaml:"image_timeout"`
	TimeFormat   string        `mapstructure:"time_format" yaml:"time_format"`
}

// Synth kinds.
const (
	SynthMedia   = "media"
	SynthCommand = "command"
	SynthEspeak  = "espeak"
	SynthNone    = "none"
)

// SynthConfig describes one narration mechanism.
type SynthConfig struct {
	Kind    string   `mapstructure:"kind" yaml:"kind"`
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	Voice   string   `mapstructure:"voice" yaml:"voice"`
	Format  string   `mapstructure:"format" yaml:"format"`
}

// DuckConfig lowers other audio streams while narrating.
type DuckConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Factor    float64       `mapstructure:"factor" yaml:"factor"`
	MinVolume int           `mapstructure:"min_volume" yaml:"min_volume"`
	Fade      time.Duration `mapstructure:"fade" yaml:"fade"`
	SelfNames []string      `mapstructure:"self_names" yaml:"self_names"`
}

type SpeechConfig struct {
	Primary  SynthConfig `mapstructure:"primary" yaml:"primary"`
	Fallback SynthConfig `mapstructure:"fallback" yaml:"fallback"`
	Duck     DuckConfig  `mapstructure:"duck" yaml:"duck"`
}

// Recognizer kinds.
const (
	RecognizerHelper  = "helper"
	RecognizerWhisper = "whisper"
)

type RecognitionConfig struct {
	Kind            string        `mapstructure:"kind" yaml:"kind"`
	Command         string        `mapstructure:"command" yaml:"command"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	ListeningMarker string        `mapstructure:"listening_marker" yaml:"listening_marker"`
	ResultPrefix    string        `mapstructure:"result_prefix" yaml:"result_prefix"`
	ErrorPrefix     string        `mapstructure:"error_prefix" yaml:"error_prefix"`
	WhisperModel    string        `mapstructure:"whisper_model" yaml:"whisper_model"`
	Language        string        `mapstructure:"language" yaml:"language"`
	MaxDuration     time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
}

type NotifyConfig struct {
	// Earcon is an mp3 or wav played when listening starts; empty disables it.
	Earcon  string `mapstructure:"earcon" yaml:"earcon"`
	Desktop bool   `mapstructure:"desktop" yaml:"desktop"`
}

// ShellConfig configures the daemon's front-end channels.
type ShellConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	Socket string `mapstructure:"socket" yaml:"socket"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	stateDir, err := stateDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Backend: BackendConfig{
			URL:     "http://127.0.0.1:5000",
			Timeout: 120 * time.Second,
		},
		Assistant: AssistantConfig{
			Greeting:     "Hi {name}, how can I help you today?",
			HistoryLimit: 50,
			Narrate:      "joined",
			ImageTimeout: 90 * time.Second,
			TimeFormat:   "15:04",
		},
		Speech: SpeechConfig{
			Primary: SynthConfig{
				Kind:    SynthMedia,
				Command: "edge-tts",
				Args:    []string{"--text", "{text}", "--voice", "{voice}", "--write-media", "{out}"},
				Voice:   "en-US-AriaNeural",
				Format:  "mp3",
			},
			Fallback: SynthConfig{
				Kind:  SynthEspeak,
				Voice: "en",
			},
			Duck: DuckConfig{
				Enabled:   true,
				Factor:    0.3,
				MinVolume: 0,
				Fade:      150 * time.Millisecond,
				SelfNames: []string{"vist", "espeak-ng", "edge-tts"},
			},
		},
		Recognition: RecognitionConfig{
			Kind:            RecognizerHelper,
			Command:         "vist-stt-helper",
			ListeningMarker: "listening",
			ResultPrefix:    "result:",
			ErrorPrefix:     "error:",
			Language:        "auto",
			MaxDuration:     15 * time.Second,
		},
		Notify: NotifyConfig{Desktop: false},
		Shell: ShellConfig{
			Addr:   "127.0.0.1:8092",
			Socket: ipc.DefaultSocketPath(),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(stateDir, "vist.log"),
		},
	}, nil
}

// DefaultConfigPath is ~/.config/vist/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "vist", "config.yaml"), nil
}

func stateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "vist"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "vist"), nil
}
