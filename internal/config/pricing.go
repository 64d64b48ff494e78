package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TierBand maps a ticket quantity range to a B2B discount percent.
// MaxQuantity nil means the band is open ended.
type TierBand struct {
	MinQuantity int  `mapstructure:"minQuantity" yaml:"minQuantity"`
	MaxQuantity *int `mapstructure:"maxQuantity" yaml:"maxQuantity"`
	Percent     int  `mapstructure:"percent" yaml:"percent"`
}

type ReminderPolicy struct {
	FirstReminderAfter  time.Duration `mapstructure:"firstReminderAfter" yaml:"firstReminderAfter"`
	SecondReminderAfter time.Duration `mapstructure:"secondReminderAfter" yaml:"secondReminderAfter"`
	ExpireAfter         time.Duration `mapstructure:"expireAfter" yaml:"expireAfter"`
}

type PricingConfig struct {
	TierBands []TierBand     `mapstructure:"tierBands" yaml:"tierBands"`
	Reminders ReminderPolicy `mapstructure:"reminders" yaml:"reminders"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TierBands: []TierBand{
			{MinQuantity: 50, MaxQuantity: intPtr(99), Percent: 10},
			{MinQuantity: 100, MaxQuantity: intPtr(149), Percent: 12},
			{MinQuantity: 150, MaxQuantity: intPtr(199), Percent: 15},
			{MinQuantity: 200, MaxQuantity: nil, Percent: 20},
		},
		Reminders: ReminderPolicy{
			FirstReminderAfter:  time.Hour,
			SecondReminderAfter: 24 * time.Hour,
			ExpireAfter:         24 * time.Hour,
		},
	}
}

func intPtr(v int) *int { return &v }

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricingConfigHolder returns a holder that never reloads.
func NewStaticPricingConfigHolder(cfg PricingConfig) (*PricingConfigHolder, error) {
	if err := ValidatePricingConfig(cfg); err != nil {
		return nil, err
	}
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewPricingConfigHolder(log *zap.Logger) (*PricingConfigHolder, error) {
	log = log.Named("config.pricing")
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/boxoffice/config")
	v.AddConfigPath("/etc/boxoffice")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOXOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.reminders.firstReminderAfter", defaults.Reminders.FirstReminderAfter)
	v.SetDefault("pricing.reminders.secondReminderAfter", defaults.Reminders.SecondReminderAfter)
	v.SetDefault("pricing.reminders.expireAfter", defaults.Reminders.ExpireAfter)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("pricing.tierBands", defaults.TierBands)
	}

	cfg, err := decodePricing(v)
	if err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePricing(v)
		if err != nil {
			log.Warn("pricing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing config reloaded", zap.String("file", e.Name), zap.Int("tier_bands", len(updated.TierBands)))
	})

	return holder, nil
}

func decodePricing(v *viper.Viper) (PricingConfig, error) {
	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return PricingConfig{}, err
	}
	if len(cfg.TierBands) == 0 {
		cfg.TierBands = DefaultPricingConfig().TierBands
	}
	if err := ValidatePricingConfig(cfg); err != nil {
		return PricingConfig{}, err
	}
	return cfg, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

// ValidatePricingConfig rejects band tables that overlap, leave the percent
// decreasing as quantity grows, or place an open-ended band before the last slot.
func ValidatePricingConfig(cfg PricingConfig) error {
	if len(cfg.TierBands) == 0 {
		return errors.New("pricing.tierBands cannot be empty")
	}
	bands := append([]TierBand(nil), cfg.TierBands...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinQuantity < bands[j].MinQuantity })

	for i, band := range bands {
		if band.MinQuantity <= 0 {
			return fmt.Errorf("pricing.tierBands[%d]: minQuantity must be positive", i)
		}
		if band.Percent < 0 || band.Percent > 100 {
			return fmt.Errorf("pricing.tierBands[%d]: percent must be within 0..100", i)
		}
		if band.MaxQuantity != nil && *band.MaxQuantity < band.MinQuantity {
			return fmt.Errorf("pricing.tierBands[%d]: maxQuantity below minQuantity", i)
		}
		if i == 0 {
			continue
		}
		prev := bands[i-1]
		if prev.MaxQuantity == nil || *prev.MaxQuantity >= band.MinQuantity {
			return fmt.Errorf("pricing.tierBands[%d]: overlaps previous band", i)
		}
		if band.Percent < prev.Percent {
			return fmt.Errorf("pricing.tierBands[%d]: percent decreases with quantity", i)
		}
	}

	r := cfg.Reminders
	if r.FirstReminderAfter <= 0 || r.SecondReminderAfter <= 0 || r.ExpireAfter <= 0 {
		return errors.New("pricing.reminders: durations must be positive")
	}
	return nil
}
