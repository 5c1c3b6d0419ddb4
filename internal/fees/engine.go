package fees

import (
	"github.com/shopspring/decimal"

	"bot-panel/internal/snapshot"
)

type Source string

const (
	SourceBackend Source = "backend"
	SourceLocal   Source = "local"
)

type Figures struct {
	UsedFee      float64 `json:"used_fee"`
	SizeFee      float64 `json:"size_fee"`
	RemainingFee float64 `json:"remaining_fee"`
	TotalFee     float64 `json:"total_fee"`

	// ReportedTotalFee is the backend's own trade_fees figure, kept apart so
	// TotalFee stays UsedFee + RemainingFee.
	ReportedTotalFee *float64 `json:"reported_total_fee,omitempty"`

	UsedFeeSource Source `json:"used_fee_source"`
	SizeFeeSource Source `json:"size_fee_source"`

	AutoCalProfitTarget float64 `json:"auto_cal_profit_target"`
	AutoCalLossTarget   float64 `json:"auto_cal_loss_target"`
	SizeProfitTarget    float64 `json:"size_profit_target"`
	SizeLossTarget      float64 `json:"size_loss_target"`
	AddPosProfitTarget  float64 `json:"add_pos_profit_target"`

	NeedAddUSDT      float64 `json:"need_add_usdt"`
	NeedAddAboveZero float64 `json:"need_add_above_zero"`
}

var hundred = decimal.NewFromInt(100)

// Compute derives every fee and auto-exit figure from one account snapshot
// and the live config. Backend fee figures win over the local estimate when
// present. The remaining fee is always estimated locally.
func Compute(acct snapshot.Account, cfg LiveConfig) Figures {
	rate := decimal.NewFromFloat(cfg.FeeRate)

	used, usedSrc := feeFor(acct.UsedAmount, acct.Fees.Used, rate)
	size, sizeSrc := feeFor(acct.SizeAmount, acct.Fees.Size, rate)
	remaining := estimate(acct.RemainingAmount, rate)

	out := Figures{
		UsedFee:          used.InexactFloat64(),
		SizeFee:          size.InexactFloat64(),
		RemainingFee:     remaining.InexactFloat64(),
		TotalFee:         used.Add(remaining).InexactFloat64(),
		UsedFeeSource:    usedSrc,
		SizeFeeSource:    sizeSrc,
		NeedAddUSDT:      acct.NeedAddUSDT,
		NeedAddAboveZero: acct.NeedAddAboveZero,
	}
	if acct.Fees.Total != nil {
		total := *acct.Fees.Total
		out.ReportedTotalFee = &total
	}
	applyTargets(&out, used, size, cfg)
	return out
}

func feeFor(amount float64, reported *float64, rate decimal.Decimal) (decimal.Decimal, Source) {
	if reported != nil {
		return decimal.NewFromFloat(*reported), SourceBackend
	}
	return estimate(amount, rate), SourceLocal
}

func estimate(amount float64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(amount).Mul(rate).Div(hundred)
}

func applyTargets(out *Figures, used, size decimal.Decimal, cfg LiveConfig) {
	out.AutoCalProfitTarget = used.Mul(decimal.NewFromFloat(cfg.PnLProfitTimes)).InexactFloat64()
	out.AutoCalLossTarget = used.Mul(decimal.NewFromFloat(cfg.PnLLossTimes)).Neg().InexactFloat64()
	out.SizeProfitTarget = size.Mul(decimal.NewFromFloat(cfg.SizeProfitTimes)).InexactFloat64()
	out.SizeLossTarget = size.Mul(decimal.NewFromFloat(cfg.SizeLossTimes)).Neg().InexactFloat64()
	out.AddPosProfitTarget = size.Mul(decimal.NewFromFloat(cfg.AddPosProfitMultiplier)).InexactFloat64()
}

// Engine keeps the last snapshot so a config edit can be reflected without
// waiting for the next account update. It is not safe for concurrent use.
type Engine struct {
	cfg     LiveConfig
	acct    snapshot.Account
	hasAcct bool
	figures Figures
}

func NewEngine(cfg LiveConfig) *Engine {
	e := &Engine{cfg: cfg}
	e.figures = Compute(e.acct, cfg)
	return e
}

// Snapshot replaces the basis with acct and recomputes.
func (e *Engine) Snapshot(acct snapshot.Account) Figures {
	e.acct = acct
	e.hasAcct = true
	return e.recompute()
}

// Configure swaps the live config and recomputes from the retained snapshot.
func (e *Engine) Configure(cfg LiveConfig) Figures {
	e.cfg = cfg
	return e.recompute()
}

func (e *Engine) recompute() Figures {
	e.figures = Compute(e.acct, e.cfg)
	return e.figures
}

func (e *Engine) Figures() Figures {
	return e.figures
}

func (e *Engine) Config() LiveConfig {
	return e.cfg
}

func (e *Engine) Account() (snapshot.Account, bool) {
	return e.acct, e.hasAcct
}
