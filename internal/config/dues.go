package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DuesPolicy holds the recurring charge rules applied to every resident.
type DuesPolicy struct {
	MonthlyAmount    string `mapstructure:"monthlyAmount"`
	DueDay           int    `mapstructure:"dueDay"`
	OverdueCutoffDay int    `mapstructure:"overdueCutoffDay"`
	OverdueMonths    int    `mapstructure:"overdueMonths"`
}

func DefaultDuesPolicy() DuesPolicy {
	return DuesPolicy{
		MonthlyAmount:    "200.00",
		DueDay:           5,
		OverdueCutoffDay: 5,
		OverdueMonths:    3,
	}
}

// Amount returns the monthly charge as a fixed-point value.
func (p DuesPolicy) Amount() decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(p.MonthlyAmount))
	if err != nil {
		return decimal.Zero
	}
	return amount.Round(2)
}

type DuesPolicyHolder struct {
	current atomic.Value // holds DuesPolicy
}

// NewStaticDuesPolicyHolder returns a holder that never reloads.
func NewStaticDuesPolicyHolder(policy DuesPolicy) *DuesPolicyHolder {
	holder := &DuesPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewDuesPolicyHolder(log *zap.Logger) (*DuesPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.dues")

	v := viper.New()

	v.SetConfigName("dues")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/duesledger/config")
	v.AddConfigPath("/etc/duesledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DUES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDuesPolicy()
	v.SetDefault("dues.monthlyAmount", defaults.MonthlyAmount)
	v.SetDefault("dues.dueDay", defaults.DueDay)
	v.SetDefault("dues.overdueCutoffDay", defaults.OverdueCutoffDay)
	v.SetDefault("dues.overdueMonths", defaults.OverdueMonths)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy DuesPolicy
	if err := v.UnmarshalKey("dues", &policy); err != nil {
		return nil, err
	}
	if err := validateDuesPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticDuesPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DuesPolicy
		if err := v.UnmarshalKey("dues", &updated); err != nil {
			log.Warn("dues policy reload failed", zap.Error(err))
			return
		}
		if err := validateDuesPolicy(updated); err != nil {
			log.Warn("invalid dues policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("dues policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DuesPolicyHolder) Get() DuesPolicy {
	if h == nil {
		return DefaultDuesPolicy()
	}
	policy, ok := h.current.Load().(DuesPolicy)
	if !ok {
		return DefaultDuesPolicy()
	}
	return policy
}

func validateDuesPolicy(policy DuesPolicy) error {
	amount, err := decimal.NewFromString(strings.TrimSpace(policy.MonthlyAmount))
	if err != nil {
		return fmt.Errorf("dues.monthlyAmount: %w", err)
	}
	if !amount.IsPositive() {
		return errors.New("dues.monthlyAmount must be positive")
	}
	if policy.DueDay < 1 || policy.DueDay > 28 {
		return errors.New("dues.dueDay must be between 1 and 28")
	}
	if policy.OverdueCutoffDay < 1 || policy.OverdueCutoffDay > 28 {
		return errors.New("dues.overdueCutoffDay must be between 1 and 28")
	}
	if policy.OverdueMonths < 1 {
		return errors.New("dues.overdueMonths must be at least 1")
	}
	return nil
}
