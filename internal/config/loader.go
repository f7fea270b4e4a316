package config

import (
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML document shape for the optional ambient config file.
// It never carries the six CLI-mandated fields.
type FileConfig struct {
	LogLevel       string             `toml:"log_level"`
	DatabasePath   string             `toml:"database_path"`
	DictionaryPath string             `toml:"dictionary_path"`
	Translator     TranslatorConfig   `toml:"translator"`
	Registration   RegistrationConfig `toml:"registration"`
	Metrics        MetricsConfig      `toml:"metrics"`
	ReadBufferSize int                `toml:"read_buffer_size"`
	MaxConnections int                `toml:"max_connections"`
}

// LoadFile parses the optional TOML configuration file at path and layers it
// over Default(). A missing file is not an error — it simply yields defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fc FileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg = mergeFile(cfg, fc)
	return cfg, nil
}

func mergeFile(dst Config, src FileConfig) Config {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DatabasePath != "" {
		dst.DatabasePath = src.DatabasePath
	}
	if src.DictionaryPath != "" {
		dst.DictionaryPath = src.DictionaryPath
	}
	if src.Translator.BaseURL != "" {
		dst.Translator.BaseURL = src.Translator.BaseURL
	}
	if src.Translator.TimeoutRaw != "" {
		dst.Translator.TimeoutRaw = src.Translator.TimeoutRaw
	}
	if src.Registration.Address != "" {
		dst.Registration.Address = src.Registration.Address
	}
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}
	if src.ReadBufferSize > 0 {
		dst.ReadBufferSize = src.ReadBufferSize
	}
	if src.MaxConnections > 0 {
		dst.MaxConnections = src.MaxConnections
	}
	return dst
}

// Args holds the parsed command-line invocation: the six mandatory
// positional arguments plus the ambient trailing flags.
type Args struct {
	TCPPort           int
	UDPPort           int
	MatchMinutes      int
	InvitationSeconds int
	WordsPerMatch     int
	WorkerThreads     int
	ConfigPath        string
	MetricsAddr       string
	DictPath          string
}

const usage = "usage: wqserver <tcpPort> <udpPort> <matchMinutes> <invitationSeconds> <numWords> <workerThreads> [-config path] [-metrics-addr addr] [-dict path]"

// ParseArgs parses argv (excluding the program name) into Args.
// The six positional arguments are mandatory, must be positive integers,
// ports must be > 1024, and workerThreads must be >= 4; any violation, or
// any unrecognised argument, is reported as an error with the usage line.
func ParseArgs(argv []string) (Args, error) {
	if len(argv) < 6 {
		return Args{}, fmt.Errorf("%s", usage)
	}

	var a Args
	positional := []*int{
		&a.TCPPort, &a.UDPPort, &a.MatchMinutes,
		&a.InvitationSeconds, &a.WordsPerMatch, &a.WorkerThreads,
	}
	for i, dst := range positional {
		v, err := strconv.Atoi(argv[i])
		if err != nil || v <= 0 {
			return Args{}, fmt.Errorf("%s: argument %d must be a positive integer", usage, i+1)
		}
		*dst = v
	}

	if a.TCPPort <= 1024 || a.UDPPort <= 1024 {
		return Args{}, fmt.Errorf("%s: ports must be greater than 1024", usage)
	}
	if a.WorkerThreads < 4 {
		return Args{}, fmt.Errorf("%s: workerThreads must be at least 4", usage)
	}

	rest := argv[6:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "-config":
			if i+1 >= len(rest) {
				return Args{}, fmt.Errorf("%s: -config requires a value", usage)
			}
			i++
			a.ConfigPath = rest[i]
		case "-metrics-addr":
			if i+1 >= len(rest) {
				return Args{}, fmt.Errorf("%s: -metrics-addr requires a value", usage)
			}
			i++
			a.MetricsAddr = rest[i]
		case "-dict":
			if i+1 >= len(rest) {
				return Args{}, fmt.Errorf("%s: -dict requires a value", usage)
			}
			i++
			a.DictPath = rest[i]
		default:
			return Args{}, fmt.Errorf("%s: unrecognised argument %q", usage, rest[i])
		}
	}

	return a, nil
}

// Build produces the final Config from the parsed CLI arguments, layering
// them over whatever the optional TOML file (or its absence) provided.
func Build(a Args) (Config, error) {
	cfg, err := LoadFile(a.ConfigPath)
	if err != nil {
		return cfg, err
	}

	cfg.TCPPort = a.TCPPort
	cfg.UDPPort = a.UDPPort
	cfg.MatchMinutes = a.MatchMinutes
	cfg.InvitationSeconds = a.InvitationSeconds
	cfg.WordsPerMatch = a.WordsPerMatch
	cfg.WorkerThreads = a.WorkerThreads

	if a.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = a.MetricsAddr
	}
	if a.DictPath != "" {
		cfg.DictionaryPath = a.DictPath
	}

	return cfg, cfg.Validate()
}
