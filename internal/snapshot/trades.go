package snapshot

type Trade struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	EntryPrice float64  `json:"entry_spot_price"`
	Stake      float64  `json:"stake"`
	TPPrice    float64  `json:"tp_price"`
	SLPrice    float64  `json:"sl_price"`
	Status     string   `json:"status"`
	InstID     string   `json:"inst_id"`
	TimeLeft   *float64 `json:"time_left"`
}

// ParseTrades reads a trades list from either {"trades": [...]} or a bare
// list. Entries without an id are dropped. ok is false when the payload
// carries no list at all, so callers can tell it apart from an empty one.
func ParseTrades(payload any) (trades []Trade, ok bool) {
	items, ok := toSlice(payload)
	if !ok {
		if m, isMap := toMap(payload); isMap {
			items, ok = toSlice(m["trades"])
		}
	}
	if !ok {
		return nil, false
	}
	trades = make([]Trade, 0, len(items))
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		id := stringFromMap(m, "id", "order_id", "ordId")
		if id == "" {
			continue
		}
		trade := Trade{
			ID:         id,
			Type:       stringFromMap(m, "type", "side"),
			EntryPrice: floatFromMap(m, "entry_spot_price", "price"),
			Stake:      floatFromMap(m, "stake"),
			TPPrice:    floatFromMap(m, "tp_price"),
			SLPrice:    floatFromMap(m, "sl_price"),
			Status:     stringFromMap(m, "status"),
			InstID:     stringFromMap(m, "instId", "inst_id"),
		}
		if left, ok := lookupFloat(m, "time_left"); ok {
			trade.TimeLeft = &left
		}
		trades = append(trades, trade)
	}
	return trades, true
}
