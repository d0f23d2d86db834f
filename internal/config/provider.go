// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/akkumar/closure-util/internal/issue"
	"github.com/akkumar/closure-util/pkg/cueutil"
)

const dotEnvFile = ".env"

//go:embed settings_schema.cue
var settingsSchema []byte

// settingKeys are the keys accepted in settings files and the environment.
var settingKeys = []string{"compiler_path", "library_path", "loglevel", "host", "port", "loader", "debounce"}

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// InstallDir is where the executable lives. Empty means the directory
	// of the running executable.
	InstallDir string
	// WorkDir is searched, with its ancestors, for a settings file and
	// holds the .env file. Empty means the working directory.
	WorkDir string
	// ConfigFile, when set, is the only settings file read. It must exist.
	ConfigFile string
}

// Provider loads configuration from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Settings, error)
}

type fileProvider struct{}

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads configuration from the requested sources.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Settings, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load settings canceled: %w", ctx.Err())
	default:
	}

	installDir, workDir, err := resolveDirs(opts)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	defaults := DefaultSettings(installDir)
	v.SetDefault("compiler_path", defaults.CompilerPath)
	v.SetDefault("library_path", defaults.LibraryPath)
	v.SetDefault("loglevel", defaults.LogLevel.String())
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("loader", defaults.Loader)
	v.SetDefault("debounce", defaults.Debounce)

	var sources []string
	if opts.ConfigFile != "" {
		if !fileExists(opts.ConfigFile) {
			return nil, issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(opts.ConfigFile).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'closure-util config show' without --config to see the defaults").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("settings file not found: %s: %w", opts.ConfigFile, fs.ErrNotExist)).
				BuildError()
		}
		sources = append(sources, opts.ConfigFile)
	} else {
		if p := findUp(installDir, FileName); p != "" {
			sources = append(sources, p)
		}
		if p := findUp(workDir, FileName); p != "" && (len(sources) == 0 || !sameFile(sources[0], p)) {
			sources = append(sources, p)
		}
	}

	for _, path := range sources {
		if err := mergeSettingsFile(v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(path).
				WithSuggestion("Check that the file is valid JSON").
				WithSuggestion("Verify the keys and values match the settings schema").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	dotEnv := filepath.Join(workDir, dotEnvFile)
	if fileExists(dotEnv) {
		if err := mergeDotEnv(v, dotEnv); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(dotEnv).
				WithSuggestion("Check the KEY=value syntax of the file").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
		sources = append(sources, dotEnv)
	}

	for _, key := range settingKeys {
		if err := v.BindEnv(key, EnvPrefix+key, strings.ToUpper(EnvPrefix+key)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("decode settings").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	if err := s.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate settings").
			WithSuggestion("Check closure_-prefixed environment variables and .env entries").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	s.Sources = sources
	return &s, nil
}

func resolveDirs(opts LoadOptions) (installDir, workDir string, err error) {
	installDir = opts.InstallDir
	if installDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", "", fmt.Errorf("locate executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		installDir = filepath.Dir(exe)
	}
	workDir = opts.WorkDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("determine working directory: %w", err)
		}
	}
	if installDir, err = filepath.Abs(installDir); err != nil {
		return "", "", err
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return "", "", err
	}
	return installDir, workDir, nil
}

// mergeSettingsFile validates the file at path against #Settings and merges
// its contents into v.
func mergeSettingsFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	values, err := cueutil.DecodeMap(settingsSchema, data, "#Settings", path)
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("failed to merge settings: %w", err)
	}
	return nil
}

// mergeDotEnv merges prefixed entries of a .env file. Environment variables
// bound later still take precedence over them.
func mergeDotEnv(v *viper.Viper, path string) error {
	entries, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dotEnvFile, err)
	}
	values := make(map[string]any)
	for name, value := range entries {
		key, ok := settingKey(name)
		if !ok {
			continue
		}
		values[key] = value
	}
	if len(values) == 0 {
		return nil
	}
	return v.MergeConfigMap(values)
}

// settingKey strips the prefix from an environment name in either case.
func settingKey(name string) (string, bool) {
	if len(name) <= len(EnvPrefix) || !strings.EqualFold(name[:len(EnvPrefix)], EnvPrefix) {
		return "", false
	}
	key := strings.ToLower(name[len(EnvPrefix):])
	return key, slices.Contains(settingKeys, key)
}

// findUp returns the first file called name in dir or one of its ancestors.
func findUp(dir, name string) string {
	for {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func sameFile(a, b string) bool {
	sa, errA := os.Stat(a)
	sb, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && !info.IsDir()
}
