package fees

import (
	"fmt"
	"sort"

	"bot-panel/internal/snapshot"
)

const (
	KeyFeeRate                = "trade_fee_percentage"
	KeyPnLAutoCalTimes        = "pnl_auto_cal_times"
	KeyPnLAutoCalLossTimes    = "pnl_auto_cal_loss_times"
	KeySizeAutoCalTimes       = "size_auto_cal_times"
	KeySizeAutoCalLossTimes   = "size_auto_cal_loss_times"
	KeyAddPosProfitMultiplier = "add_pos_profit_multiplier"
	KeyUsePnLAutoCal          = "use_pnl_auto_cal"
	KeyUsePnLAutoCalLoss      = "use_pnl_auto_cal_loss"
	KeyUseSizeAutoCal         = "use_size_auto_cal"
	KeyUseSizeAutoCalLoss     = "use_size_auto_cal_loss"
)

// LiveConfig is the slice of strategy configuration the fee and auto-exit
// figures depend on.
type LiveConfig struct {
	FeeRate                float64 `json:"trade_fee_percentage"`
	PnLProfitTimes         float64 `json:"pnl_auto_cal_times"`
	PnLLossTimes           float64 `json:"pnl_auto_cal_loss_times"`
	SizeProfitTimes        float64 `json:"size_auto_cal_times"`
	SizeLossTimes          float64 `json:"size_auto_cal_loss_times"`
	AddPosProfitMultiplier float64 `json:"add_pos_profit_multiplier"`
	UsePnLAutoCal          bool    `json:"use_pnl_auto_cal"`
	UsePnLAutoCalLoss      bool    `json:"use_pnl_auto_cal_loss"`
	UseSizeAutoCal         bool    `json:"use_size_auto_cal"`
	UseSizeAutoCalLoss     bool    `json:"use_size_auto_cal_loss"`
}

func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		FeeRate:                0.07,
		PnLProfitTimes:         4,
		PnLLossTimes:           1.5,
		SizeProfitTimes:        2,
		SizeLossTimes:          1.5,
		AddPosProfitMultiplier: 1.5,
	}
}

// ParseLiveConfig reads the fee subset out of a full backend config object.
// Missing or malformed values keep their defaults.
func ParseLiveConfig(raw map[string]any) LiveConfig {
	cfg := DefaultLiveConfig()
	next, _, err := cfg.apply(raw, false)
	if err != nil {
		return cfg
	}
	return next
}

// Apply returns a copy with changes applied. Keys outside the live subset
// are ignored here and left for the caller to forward. touched lists the
// live keys that changed value.
func (c LiveConfig) Apply(changes map[string]any) (next LiveConfig, touched []string, err error) {
	return c.apply(changes, true)
}

func (c LiveConfig) apply(changes map[string]any, strict bool) (LiveConfig, []string, error) {
	next := c
	var touched []string
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := changes[key]
		if field := next.floatField(key); field != nil {
			f, ok := snapshot.Float(val)
			if !ok || f < 0 {
				if strict {
					return c, nil, fmt.Errorf("%s: expected a non-negative number, got %v", key, val)
				}
				continue
			}
			if *field != f {
				*field = f
				touched = append(touched, key)
			}
			continue
		}
		if field := next.boolField(key); field != nil {
			b := snapshot.Bool(val)
			if *field != b {
				*field = b
				touched = append(touched, key)
			}
		}
	}
	return next, touched, nil
}

func (c LiveConfig) Map() map[string]any {
	return map[string]any{
		KeyFeeRate:                c.FeeRate,
		KeyPnLAutoCalTimes:        c.PnLProfitTimes,
		KeyPnLAutoCalLossTimes:    c.PnLLossTimes,
		KeySizeAutoCalTimes:       c.SizeProfitTimes,
		KeySizeAutoCalLossTimes:   c.SizeLossTimes,
		KeyAddPosProfitMultiplier: c.AddPosProfitMultiplier,
		KeyUsePnLAutoCal:          c.UsePnLAutoCal,
		KeyUsePnLAutoCalLoss:      c.UsePnLAutoCalLoss,
		KeyUseSizeAutoCal:         c.UseSizeAutoCal,
		KeyUseSizeAutoCalLoss:     c.UseSizeAutoCalLoss,
	}
}

func IsLiveKey(key string) bool {
	var probe LiveConfig
	return probe.floatField(key) != nil || probe.boolField(key) != nil
}

func (c *LiveConfig) floatField(key string) *float64 {
	switch key {
	case KeyFeeRate:
		return &c.FeeRate
	case KeyPnLAutoCalTimes:
		return &c.PnLProfitTimes
	case KeyPnLAutoCalLossTimes:
		return &c.PnLLossTimes
	case KeySizeAutoCalTimes:
		return &c.SizeProfitTimes
	case KeySizeAutoCalLossTimes:
		return &c.SizeLossTimes
	case KeyAddPosProfitMultiplier:
		return &c.AddPosProfitMultiplier
	}
	return nil
}

func (c *LiveConfig) boolField(key string) *bool {
	switch key {
	case KeyUsePnLAutoCal:
		return &c.UsePnLAutoCal
	case KeyUsePnLAutoCalLoss:
		return &c.UsePnLAutoCalLoss
	case KeyUseSizeAutoCal:
		return &c.UseSizeAutoCal
	case KeyUseSizeAutoCalLoss:
		return &c.UseSizeAutoCalLoss
	}
	return nil
}
