package clidriver

import "encoding/json"

// EventKind is the demultiplexed event type recognized by the driver
// (spec §4.4 step 5).
type EventKind string

const (
	EventSession    EventKind = "session"
	EventToolUse    EventKind = "tool_use"
	EventToolCode   EventKind = "tool_code"
	EventToolResult EventKind = "tool_result"
	EventText       EventKind = "text"
	EventMessage    EventKind = "message"
	EventUsage      EventKind = "usage"
	EventStats      EventKind = "stats"
	EventError      EventKind = "error"
	EventResult     EventKind = "result"
	EventDone       EventKind = "done"
	// EventPlainText marks a line that failed structured decoding, or a
	// recognized-but-unknown kind carrying a textual payload (spec §4.4
	// step 4 and step 5's "unknown kinds with a textual payload are
	// treated as text").
	EventPlainText EventKind = "plain_text"
)

// Event is the normalized shape of one line of worker CLI output.
type Event struct {
	Kind EventKind

	Text      string
	ToolName  string
	ToolInput json.RawMessage
	ToolID    string

	SessionID string
	Model     string

	InputTokens  int64
	OutputTokens int64

	ErrorMessage string

	Raw json.RawMessage
}

// wireEvent is the envelope the worker CLI emits: a "type" (or "kind")
// discriminator plus whichever fields that type carries. Extra fields
// are tolerated; missing ones are zero-valued.
type wireEvent struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Content string `json:"content"`

	Name  string          `json:"name"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
	ID    string          `json:"id"`

	SessionID string `json:"session_id"`
	Model     string `json:"model"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Usage        *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`

	Error   string `json:"error"`
	Message string `json:"message"`
}

// parseLine implements spec §4.4 step 4: decode a structured event, or
// fall back to plain text if decoding fails.
func parseLine(line []byte) Event {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{Kind: EventPlainText, Text: string(line), Raw: json.RawMessage(line)}
	}

	kind := w.Type
	if kind == "" {
		kind = w.Kind
	}

	text := w.Text
	if text == "" {
		text = w.Content
	}

	switch EventKind(kind) {
	case EventSession:
		return Event{Kind: EventSession, SessionID: w.SessionID, Raw: line}
	case EventToolUse, EventToolCode:
		name := w.Name
		if name == "" {
			name = w.Tool
		}
		return Event{Kind: EventToolUse, ToolName: name, ToolInput: w.Input, ToolID: w.ID, Raw: line}
	case EventToolResult:
		return Event{Kind: EventToolResult, ToolID: w.ID, Text: text, Raw: line}
	case EventText, EventMessage:
		return Event{Kind: EventText, Text: text, Model: w.Model, Raw: line}
	case EventUsage, EventStats:
		in, out := w.InputTokens, w.OutputTokens
		if w.Usage != nil {
			in, out = w.Usage.InputTokens, w.Usage.OutputTokens
		}
		return Event{Kind: EventUsage, InputTokens: in, OutputTokens: out, Model: w.Model, Raw: line}
	case EventError:
		msg := w.Error
		if msg == "" {
			msg = w.Message
		}
		return Event{Kind: EventError, ErrorMessage: msg, Raw: line}
	case EventResult, EventDone:
		in, out := w.InputTokens, w.OutputTokens
		if w.Usage != nil {
			in, out = w.Usage.InputTokens, w.Usage.OutputTokens
		}
		return Event{Kind: EventResult, Text: text, Model: w.Model, InputTokens: in, OutputTokens: out, Raw: line}
	default:
		if text != "" {
			return Event{Kind: EventPlainText, Text: text, Raw: line}
		}
		return Event{Kind: EventPlainText, Text: string(line), Raw: line}
	}
}
