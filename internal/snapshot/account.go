package snapshot

type DailyReport struct {
	Date             string  `json:"date"`
	TotalCapital     float64 `json:"total_capital"`
	NetTradeProfit   float64 `json:"net_trade_profit"`
	CompoundInterest float64 `json:"compound_interest"`
}

// Fee figures the backend computed itself. A nil field means the payload
// omitted it and the local rate x amount estimate applies.
type BackendFees struct {
	Used  *float64 `json:"used_fees,omitempty"`
	Size  *float64 `json:"size_fees,omitempty"`
	Total *float64 `json:"trade_fees,omitempty"`
}

type Account struct {
	TotalCapital          float64 `json:"total_capital"`
	TotalCapital2nd       float64 `json:"total_capital_2nd"`
	TotalBalance          float64 `json:"total_balance"`
	AvailableBalance      float64 `json:"available_balance"`
	MaxAllowedUsedDisplay float64 `json:"max_allowed_used_display"`
	MaxAmountDisplay      float64 `json:"max_amount_display"`
	UsedAmount            float64 `json:"used_amount"`
	SizeAmount            float64 `json:"size_amount"`
	RemainingAmount       float64 `json:"remaining_amount"`
	NetProfit             float64 `json:"net_profit"`
	NetTradeProfit        float64 `json:"net_trade_profit"`
	TotalTradeProfit      float64 `json:"total_trade_profit"`
	TotalTradeLoss        float64 `json:"total_trade_loss"`
	TotalTrades           int     `json:"total_trades"`
	NeedAddUSDT           float64 `json:"need_add_usdt"`
	NeedAddAboveZero      float64 `json:"need_add_above_zero"`

	Fees         BackendFees   `json:"backend_fees"`
	DailyReports []DailyReport `json:"daily_reports,omitempty"`
}

// ParseAccount builds a full replacement snapshot. Missing or malformed
// numeric fields become zero. DailyReports is nil when the payload carried
// no daily_reports key so callers can keep the previous list.
func ParseAccount(payload map[string]any) Account {
	acct := Account{
		TotalCapital:          floatFromMap(payload, "total_capital"),
		TotalCapital2nd:       floatFromMap(payload, "total_capital_2nd"),
		TotalBalance:          floatFromMap(payload, "total_balance"),
		AvailableBalance:      floatFromMap(payload, "available_balance"),
		MaxAllowedUsedDisplay: floatFromMap(payload, "max_allowed_used_display"),
		MaxAmountDisplay:      floatFromMap(payload, "max_amount_display"),
		UsedAmount:            floatFromMap(payload, "used_amount"),
		SizeAmount:            floatFromMap(payload, "size_amount"),
		RemainingAmount:       floatFromMap(payload, "remaining_amount"),
		NetProfit:             floatFromMap(payload, "net_profit"),
		NetTradeProfit:        floatFromMap(payload, "net_trade_profit"),
		TotalTradeProfit:      floatFromMap(payload, "total_trade_profit"),
		TotalTradeLoss:        floatFromMap(payload, "total_trade_loss"),
		TotalTrades:           int(floatFromMap(payload, "total_trades")),
		NeedAddUSDT:           floatFromMap(payload, "need_add_usdt"),
		NeedAddAboveZero:      floatFromMap(payload, "need_add_above_zero"),
		Fees: BackendFees{
			Used:  optionalFloat(payload, "used_fees"),
			Size:  optionalFloat(payload, "size_fees"),
			Total: optionalFloat(payload, "trade_fees"),
		},
	}
	if raw, ok := payload["daily_reports"]; ok {
		acct.DailyReports = parseDailyReports(raw)
	}
	return acct
}

func parseDailyReports(raw any) []DailyReport {
	items, ok := toSlice(raw)
	if !ok {
		return []DailyReport{}
	}
	reports := make([]DailyReport, 0, len(items))
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		reports = append(reports, DailyReport{
			Date:             stringFromMap(m, "date"),
			TotalCapital:     floatFromMap(m, "total_capital"),
			NetTradeProfit:   floatFromMap(m, "net_trade_profit"),
			CompoundInterest: floatFromMap(m, "compound_interest"),
		})
	}
	return reports
}

func optionalFloat(m map[string]any, key string) *float64 {
	f, ok := lookupFloat(m, key)
	if !ok {
		return nil
	}
	return &f
}
