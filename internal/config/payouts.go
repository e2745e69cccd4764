package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PayoutPolicy carries the operator-tunable payout parameters. The fee
// values are the platform contract; changing them only affects briefs
// funded after the change.
type PayoutPolicy struct {
	FeeBasisPoints int64 `mapstructure:"feeBasisPoints"`
	FeeFloorCents  int64 `mapstructure:"feeFloorCents"`
	Currency       string `mapstructure:"currency"`
	MaxBulkBatch   int   `mapstructure:"maxBulkBatch"`
}

func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		FeeBasisPoints: 500,
		FeeFloorCents:  50,
		Currency:       "usd",
		MaxBulkBatch:   100,
	}
}

// PayoutPolicyHolder exposes the current policy and hot-reloads it when
// the config file changes.
type PayoutPolicyHolder struct {
	current atomic.Value // holds PayoutPolicy
}

func NewPayoutPolicyHolder() (*PayoutPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("payouts")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/briefworks/config")
	v.AddConfigPath("/etc/briefworks")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BRIEFWORKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayoutPolicy()
	v.SetDefault("payouts.feeBasisPoints", defaults.FeeBasisPoints)
	v.SetDefault("payouts.feeFloorCents", defaults.FeeFloorCents)
	v.SetDefault("payouts.currency", defaults.Currency)
	v.SetDefault("payouts.maxBulkBatch", defaults.MaxBulkBatch)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy PayoutPolicy
	if err := v.UnmarshalKey("payouts", &policy); err != nil {
		return nil, err
	}
	if err := validatePayoutPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PayoutPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutPolicy
		if err := v.UnmarshalKey("payouts", &updated); err != nil {
			log.Printf("[payout-policy] reload failed: %v", err)
			return
		}
		if err := validatePayoutPolicy(updated); err != nil {
			log.Printf("[payout-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPayoutPolicyHolder pins a policy without file watching.
func NewStaticPayoutPolicyHolder(policy PayoutPolicy) *PayoutPolicyHolder {
	holder := &PayoutPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PayoutPolicyHolder) Get() PayoutPolicy {
	return h.current.Load().(PayoutPolicy)
}

func validatePayoutPolicy(policy PayoutPolicy) error {
	if policy.FeeBasisPoints < 0 || policy.FeeBasisPoints >= 10_000 {
		return errors.New("payouts.feeBasisPoints must be within [0, 10000)")
	}
	if policy.FeeFloorCents < 0 {
		return errors.New("payouts.feeFloorCents cannot be negative")
	}
	if strings.TrimSpace(policy.Currency) == "" {
		return errors.New("payouts.currency cannot be empty")
	}
	if policy.MaxBulkBatch <= 0 {
		return errors.New("payouts.maxBulkBatch must be positive")
	}
	return nil
}
