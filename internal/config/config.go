// Package config loads run settings from flags, FACEPREP_* environment
// variables, an optional YAML file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/andresmejia3/faceprep/internal/batch"
	"github.com/andresmejia3/faceprep/internal/frontal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. FACEPREP_SAVE_STEP.
const EnvPrefix = "FACEPREP"

// Settings is the complete configuration of a run.
type Settings struct {
	Landmarks   string  `mapstructure:"landmarks"`
	Images      string  `mapstructure:"images"`
	Output      string  `mapstructure:"output"`
	Threshold   float64 `mapstructure:"threshold"`
	VerboseStep int     `mapstructure:"verbose_step"`
	SaveStep    int     `mapstructure:"save_step"`
	Workers     int     `mapstructure:"workers"`
	SkipErrors  bool    `mapstructure:"skip_errors"`
	Progress    bool    `mapstructure:"progress"`
	SaveDir     string  `mapstructure:"save_dir"`
	LogLevel    string  `mapstructure:"log_level"`
	DB          string  `mapstructure:"db"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("landmarks", "list_landmarks_align_celeba.csv")
	v.SetDefault("images", "img_align_celeba")
	v.SetDefault("output", "batches")
	v.SetDefault("threshold", frontal.DefaultThreshold)
	v.SetDefault("verbose_step", batch.DefaultVerboseStep)
	v.SetDefault("save_step", batch.DefaultSaveStep)
	v.SetDefault("workers", 1)
	v.SetDefault("skip_errors", false)
	v.SetDefault("progress", true)
	v.SetDefault("save_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("db", "")
}

// BindFlags binds every flag in fs to the key of the same name with dashes
// turned into underscores, so --save-step sets save_step.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if bindErr := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); bindErr != nil {
			err = fmt.Errorf("error binding flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Load resolves the settings held by v. When file is not empty it is read as
// YAML first; a missing file is an error.
func Load(v *viper.Viper, file string) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return s, nil
}

// Validate rejects settings a run cannot start with.
func (s *Settings) Validate() error {
	var errs []error
	if s.Landmarks == "" {
		errs = append(errs, errors.New("landmarks path is empty"))
	}
	if s.Images == "" {
		errs = append(errs, errors.New("images directory is empty"))
	}
	if s.Output == "" {
		errs = append(errs, errors.New("output directory is empty"))
	}
	if s.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must be >= 0, got %g", s.Threshold))
	}
	if s.SaveStep < 1 {
		errs = append(errs, fmt.Errorf("save_step must be >= 1, got %d", s.SaveStep))
	}
	if s.VerboseStep < 1 {
		errs = append(errs, fmt.Errorf("verbose_step must be >= 1, got %d", s.VerboseStep))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", s.Workers))
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", name)
	}
	return l, nil
}

// DatabaseURL returns the ledger connection string. An explicit db setting
// wins; otherwise one is built from the POSTGRES_* variables. It returns ""
// when neither is present.
func (s *Settings) DatabaseURL() string {
	if s.DB != "" {
		return s.DB
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
