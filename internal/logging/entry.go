package logging

import "time"

// Entry is one row of the gateway's persisted log stream, mirroring the `logs` table column for column.
type Entry struct {
	Timestamp    time.Time
	Level        Level
	Subsystem    string
	Module       string
	FunctionName string
	FilePath     string
	LineNumber   int
	Topic        string
	Message      string
	UserUUID     string
	SessionID    string
	TraceID      string
	Extra        map[string]any
}

// TopicPrefix is the bus topic prefix every log entry is published under; the consumer subscribes to
// TopicPrefix + "/**".
const TopicPrefix = "logs"

// wirePayload is the JSON shape an Entry takes on the bus, timestamped as RFC3339Nano text to match the `logs`
// table's TEXT timestamp column exactly as persisted.
type wirePayload struct {
	Timestamp    string         `json:"timestamp"`
	Level        string         `json:"level"`
	Subsystem    string         `json:"subsystem"`
	Module       string         `json:"module"`
	FunctionName string         `json:"function_name,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	LineNumber   int            `json:"line_number,omitempty"`
	Topic        string         `json:"topic,omitempty"`
	Message      string         `json:"message"`
	UserUUID     string         `json:"user_uuid,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	TraceID      string         `json:"trace_id,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

func (e Entry) toWire() wirePayload {
	return wirePayload{
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		Level:        e.Level.String(),
		Subsystem:    e.Subsystem,
		Module:       e.Module,
		FunctionName: e.FunctionName,
		FilePath:     e.FilePath,
		LineNumber:   e.LineNumber,
		Topic:        e.Topic,
		Message:      e.Message,
		UserUUID:     e.UserUUID,
		SessionID:    e.SessionID,
		TraceID:      e.TraceID,
		Extra:        e.Extra,
	}
}

func (w wirePayload) toEntry() (Entry, error) {
	lvl, err := ParseLevel(w.Level)
	if err != nil {
		return Entry{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Timestamp:    ts,
		Level:        lvl,
		Subsystem:    w.Subsystem,
		Module:       w.Module,
		FunctionName: w.FunctionName,
		FilePath:     w.FilePath,
		LineNumber:   w.LineNumber,
		Topic:        w.Topic,
		Message:      w.Message,
		UserUUID:     w.UserUUID,
		SessionID:    w.SessionID,
		TraceID:      w.TraceID,
		Extra:        w.Extra,
	}, nil
}
