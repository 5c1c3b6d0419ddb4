package snapshot

type Side struct {
	In         bool    `json:"in"`
	Qty        float64 `json:"qty"`
	EntryPrice float64 `json:"entry_price"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

type Position struct {
	Long  Side `json:"long"`
	Short Side `json:"short"`
}

func (p Position) InPosition() bool {
	return p.Long.In || p.Short.In
}

// ParsePosition accepts the per-side "positions" block and the scalar
// fields. A scalar describes the display side (long unless only short is
// open); a map value is keyed by "long"/"short". When the block is present
// it is authoritative for in/qty/price and scalars only fill TP/SL.
func ParsePosition(payload map[string]any) Position {
	var pos Position
	sides, hasBlock := toMap(payload["positions"])
	if hasBlock {
		if long, ok := toMap(sides["long"]); ok {
			pos.Long = parseSide(long)
		}
		if short, ok := toMap(sides["short"]); ok {
			pos.Short = parseSide(short)
		}
	} else {
		applyField(payload["in_position"], &pos, func(s *Side, v any) { s.In = boolFromAny(v) })
		applyField(payload["position_qty"], &pos, func(s *Side, v any) { s.Qty, _ = floatFromAny(v) })
		applyField(payload["position_entry_price"], &pos, func(s *Side, v any) { s.EntryPrice, _ = floatFromAny(v) })
	}
	applyField(payload["current_take_profit"], &pos, func(s *Side, v any) { s.TakeProfit, _ = floatFromAny(v) })
	applyField(payload["current_stop_loss"], &pos, func(s *Side, v any) { s.StopLoss, _ = floatFromAny(v) })
	return pos
}

func parseSide(m map[string]any) Side {
	return Side{
		In:         boolFromAny(m["in"]),
		Qty:        floatFromMap(m, "qty"),
		EntryPrice: floatFromMap(m, "price", "entry_price"),
		TakeProfit: floatFromMap(m, "tp", "take_profit"),
		StopLoss:   floatFromMap(m, "sl", "stop_loss"),
	}
}

func applyField(raw any, pos *Position, set func(*Side, any)) {
	if raw == nil {
		return
	}
	if sides, ok := toMap(raw); ok {
		if v, ok := sides["long"]; ok {
			set(&pos.Long, v)
		}
		if v, ok := sides["short"]; ok {
			set(&pos.Short, v)
		}
		return
	}
	set(displaySide(pos), raw)
}

func displaySide(pos *Position) *Side {
	if !pos.Long.In && pos.Short.In {
		return &pos.Short
	}
	return &pos.Long
}
