package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SchedulerConfig tunes the cron pass. It is reloaded from scheduler.yml
// without a restart.
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Spec       string        `mapstructure:"spec"`
	BatchSize  int           `mapstructure:"batchSize"`
	JobTimeout time.Duration `mapstructure:"jobTimeout"`
	LockTTL    time.Duration `mapstructure:"lockTTL"`
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:    true,
		Spec:       "@every 1m",
		BatchSize:  500,
		JobTimeout: 30 * time.Second,
		LockTTL:    2 * time.Minute,
	}
}

type SchedulerConfigHolder struct {
	current atomic.Value // holds SchedulerConfig
}

// NewStaticSchedulerConfigHolder serves cfg without watching any file.
func NewStaticSchedulerConfigHolder(cfg SchedulerConfig) *SchedulerConfigHolder {
	holder := &SchedulerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSchedulerConfigHolder(log *zap.Logger) (*SchedulerConfigHolder, error) {
	return newSchedulerConfigHolder(log, "/etc/recurring", "/var/lib/recurring/config", ".")
}

func newSchedulerConfigHolder(log *zap.Logger, paths ...string) (*SchedulerConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.scheduler")

	v := viper.New()
	v.SetConfigName("scheduler")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("RECURRING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSchedulerConfig()
	v.SetDefault("scheduler.enabled", defaults.Enabled)
	v.SetDefault("scheduler.spec", defaults.Spec)
	v.SetDefault("scheduler.batchSize", defaults.BatchSize)
	v.SetDefault("scheduler.jobTimeout", defaults.JobTimeout)
	v.SetDefault("scheduler.lockTTL", defaults.LockTTL)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	cfg, err := decodeSchedulerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSchedulerConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSchedulerConfig(v)
		if err != nil {
			log.Warn("scheduler config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("scheduler config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *SchedulerConfigHolder) Get() SchedulerConfig {
	return h.current.Load().(SchedulerConfig)
}

func decodeSchedulerConfig(v *viper.Viper) (SchedulerConfig, error) {
	// Unmarshal, unlike UnmarshalKey, merges defaults into a partial section.
	var file struct {
		Scheduler SchedulerConfig `mapstructure:"scheduler"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return SchedulerConfig{}, err
	}
	if err := validateSchedulerConfig(file.Scheduler); err != nil {
		return SchedulerConfig{}, err
	}
	return file.Scheduler, nil
}

func validateSchedulerConfig(cfg SchedulerConfig) error {
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return errors.New("scheduler.spec is not a valid cron expression")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("scheduler.batchSize must be positive")
	}
	if cfg.JobTimeout < 0 {
		return errors.New("scheduler.jobTimeout cannot be negative")
	}
	return nil
}
