// Package config loads release-gen settings from .release-gen.yaml, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. RELEASE_GEN_RELEASE_BRANCH.
const EnvPrefix = "RELEASE_GEN"

// FileName is the optional per-repository configuration file.
const FileName = ".release-gen"

// Config holds every tunable of a release run.
type Config struct {
	ReleaseBranch string `mapstructure:"release_branch"`
	Remote        string `mapstructure:"remote"`

	Changelog     bool   `mapstructure:"changelog"`
	ChangelogFile string `mapstructure:"changelog_file"`

	TestCommand    string `mapstructure:"test_command"`
	LintCommand    string `mapstructure:"lint_command"`
	PublishCommand string `mapstructure:"publish_command"`

	RegistryURL   string        `mapstructure:"registry_url"`
	TokenURL      string        `mapstructure:"token_url"`
	AccountEnv    string        `mapstructure:"account_env"`
	LoginAttempts int           `mapstructure:"login_attempts"`
	PromptTimeout time.Duration `mapstructure:"prompt_timeout"`
	BrowserPause  time.Duration `mapstructure:"browser_pause"`

	ManifestConcurrency int  `mapstructure:"manifest_concurrency"`
	Rollback            bool `mapstructure:"rollback"`

	GitHubRelease  bool   `mapstructure:"github_release"`
	GitHubTokenEnv string `mapstructure:"github_token_env"`

	SkipTest bool `mapstructure:"skip_test"`
	SkipLint bool `mapstructure:"skip_lint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("release_branch", "main")
	v.SetDefault("remote", "origin")
	v.SetDefault("changelog", true)
	v.SetDefault("changelog_file", "CHANGELOG.md")
	v.SetDefault("test_command", "npm test")
	v.SetDefault("lint_command", "npm run lint")
	v.SetDefault("publish_command", "npm publish")
	v.SetDefault("registry_url", "https://registry.npmjs.org")
	v.SetDefault("token_url", "https://www.npmjs.com/settings/{account}/tokens/granular-access-tokens/new")
	v.SetDefault("account_env", "NPM_USERNAME")
	v.SetDefault("login_attempts", 3)
	v.SetDefault("prompt_timeout", 5*time.Minute)
	v.SetDefault("browser_pause", 2*time.Second)
	v.SetDefault("manifest_concurrency", 4)
	v.SetDefault("rollback", true)
	v.SetDefault("github_release", true)
	v.SetDefault("github_token_env", "GITHUB_TOKEN")
	v.SetDefault("skip_test", false)
	v.SetDefault("skip_lint", false)
}

// Load reads configuration for the repository rooted at root. A .env file in
// root, when present, is loaded into the process environment first without
// overriding variables that are already set. Flags in fs whose names match a
// key (with '-' for '_') take precedence over everything else.
func Load(root string, fs *pflag.FlagSet) (*Config, error) {
	envFile := filepath.Join(root, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load %s", envFile)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(root)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrapf(err, "read %s.yaml", FileName)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = errors.Wrapf(err, "bind flag %s", f.Name)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isKnownKey(key string) bool {
	switch key {
	case "release_branch", "remote", "changelog", "changelog_file",
		"skip_test", "skip_lint", "rollback", "github_release":
		return true
	}
	return false
}

func (c *Config) validate() error {
	switch {
	case strings.TrimSpace(c.ReleaseBranch) == "":
		return errors.New("config: release_branch must not be empty")
	case strings.TrimSpace(c.Remote) == "":
		return errors.New("config: remote must not be empty")
	case c.LoginAttempts < 1:
		return errors.Newf("config: login_attempts must be at least 1, got %d", c.LoginAttempts)
	case c.ManifestConcurrency < 1:
		return errors.Newf("config: manifest_concurrency must be at least 1, got %d", c.ManifestConcurrency)
	case c.PromptTimeout <= 0:
		return errors.New("config: prompt_timeout must be positive")
	case !strings.Contains(c.TokenURL, "{account}"):
		return errors.Newf("config: token_url %q must contain {account}", c.TokenURL)
	}
	return nil
}
