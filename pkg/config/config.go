package config

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config describes all configuration options
type Config struct {
	Home string `usage:"Override the home directory lingle operates on"`
	Log  struct {
		Level string `default:"info"`
		File  string
		JSON  bool `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Tmpfs struct {
		Size string `default:"4g" usage:"Size of the tmpfs mounted at ~/Lingle"`
		Mode string `default:"0700" usage:"Permission bits of the tmpfs mount"`
	}
	Update struct {
		Repo    string `default:"Flammable-Bunny/Lingle" usage:"GitHub repository releases are fetched from"`
		API     string `default:"https://api.github.com" usage:"Base URL of the GitHub API"`
		Timeout time.Duration `default:"5s" usage:"Timeout for API requests"`
	}
	HTTP struct {
		Timeout time.Duration `default:"30m" usage:"Timeout for downloads"`
	}
	ADW struct {
		Keep         int    `default:"6" usage:"Number of worlds kept per instance"`
		IgnorePrefix string `default:"Z" usage:"Worlds starting with this prefix are never deleted"`
	}
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

var (
	tmpfsSizeRe = regexp.MustCompile(`^[0-9]+[kmgKMG%]?$`)
	tmpfsModeRe = regexp.MustCompile(`^0?[0-7]{3}$`)
	repoRe      = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// Loader initializes an empty config object and returns a new Loader for this object.
// configDir is searched for a config.toml in addition to the working directory.
func Loader(configDir string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	// command line flags belong to cobra
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "LINGLE",
		Files:     []string{filepath.Join(configDir, "config.toml"), "config.toml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if !tmpfsSizeRe.MatchString(cfg.Tmpfs.Size) {
		return eris.Errorf(`Invalid value for tmpfs.size: %s (expected something like 4g or 50%%)`, cfg.Tmpfs.Size)
	}

	if !tmpfsModeRe.MatchString(cfg.Tmpfs.Mode) {
		return eris.Errorf(`Invalid value for tmpfs.mode: %s`, cfg.Tmpfs.Mode)
	}

	if !repoRe.MatchString(cfg.Update.Repo) {
		return eris.Errorf(`Invalid value for update.repo: %s (must be owner/name)`, cfg.Update.Repo)
	}

	if cfg.ADW.Keep < 1 {
		return eris.Errorf(`Invalid value for adw.keep: %d (must be at least 1)`, cfg.ADW.Keep)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
