package snapshot

// Status is the full resync payload returned by the status endpoint.
type Status struct {
	Running    bool
	HasRunning bool
	Account    Account
	Trades     []Trade
	HasTrades  bool
	Position   Position
}

func ParseStatus(payload map[string]any) Status {
	running, hasRunning := ParseRunning(payload)
	status := Status{
		Running:    running,
		HasRunning: hasRunning,
		Account:    ParseAccount(payload),
		Position:   ParsePosition(payload),
	}
	status.Trades, status.HasTrades = ParseTrades(payload["open_trades"])
	return status
}
