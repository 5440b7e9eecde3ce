package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyConfig holds business knobs that operators may tune without a redeploy.
type PolicyConfig struct {
	InstallmentIntervalDays int           `mapstructure:"installmentIntervalDays"`
	MaxPhotosPerReport      int           `mapstructure:"maxPhotosPerReport"`
	PhotoMaxDimension       int           `mapstructure:"photoMaxDimension"`
	PhotoMaxPixels          int           `mapstructure:"photoMaxPixels"`
	PhotoJPEGQuality        int           `mapstructure:"photoJpegQuality"`
	SummaryCacheTTL         time.Duration `mapstructure:"summaryCacheTTL"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		InstallmentIntervalDays: 30,
		MaxPhotosPerReport:      5,
		PhotoMaxDimension:       1280,
		PhotoMaxPixels:          40_000_000,
		PhotoJPEGQuality:        80,
		SummaryCacheTTL:         30 * time.Second,
	}
}

// InstallmentInterval is the spacing between default installment due dates.
func (p PolicyConfig) InstallmentInterval() time.Duration {
	return time.Duration(p.InstallmentIntervalDays) * 24 * time.Hour
}

type PolicyConfigHolder struct {
	current atomic.Value // holds PolicyConfig
}

// NewStaticPolicyHolder returns a holder that never reloads, used by tests and tools.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyConfigHolder {
	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPolicyConfigHolder() (*PolicyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/fieldops")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FIELDOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	v.SetDefault("policy.installmentIntervalDays", defaults.InstallmentIntervalDays)
	v.SetDefault("policy.maxPhotosPerReport", defaults.MaxPhotosPerReport)
	v.SetDefault("policy.photoMaxDimension", defaults.PhotoMaxDimension)
	v.SetDefault("policy.photoMaxPixels", defaults.PhotoMaxPixels)
	v.SetDefault("policy.photoJpegQuality", defaults.PhotoJPEGQuality)
	v.SetDefault("policy.summaryCacheTTL", defaults.SummaryCacheTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy-config] reload failed: %v", err)
			return
		}
		if err := validatePolicyConfig(updated); err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyConfigHolder) Get() PolicyConfig {
	if h == nil {
		return DefaultPolicyConfig()
	}
	return h.current.Load().(PolicyConfig)
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.InstallmentIntervalDays <= 0 {
		return errors.New("policy.installmentIntervalDays must be positive")
	}
	if cfg.MaxPhotosPerReport < 0 {
		return errors.New("policy.maxPhotosPerReport cannot be negative")
	}
	if cfg.PhotoMaxDimension <= 0 {
		return errors.New("policy.photoMaxDimension must be positive")
	}
	if cfg.PhotoMaxPixels <= 0 {
		return errors.New("policy.photoMaxPixels must be positive")
	}
	if cfg.PhotoJPEGQuality < 1 || cfg.PhotoJPEGQuality > 100 {
		return errors.New("policy.photoJpegQuality must be within 1..100")
	}
	return nil
}
