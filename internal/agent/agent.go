package agent

type EventType string

const (
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event reports loop progress to an optional observer.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}
