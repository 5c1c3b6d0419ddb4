package snapshot

type LogLine struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
}

func ParseLogLine(payload map[string]any) LogLine {
	level := stringFromMap(payload, "level")
	if level == "" {
		level = "info"
	}
	return LogLine{
		Timestamp: stringFromMap(payload, "timestamp"),
		Message:   stringFromMap(payload, "message"),
		Level:     level,
	}
}

// ParseMessage extracts the message of a success/warning/error notice.
func ParseMessage(payload map[string]any) string {
	return stringFromMap(payload, "message", "error")
}

// ParseRunning reads the bot_status flag. ok is false when the payload did
// not carry a running field at all.
func ParseRunning(payload map[string]any) (running bool, ok bool) {
	raw, present := payload["running"]
	if !present || raw == nil {
		return false, false
	}
	return boolFromAny(raw), true
}
