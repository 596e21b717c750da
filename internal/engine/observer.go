package engine

import "time"

// EventType names a phase of statement execution
type EventType string

const (
	EventLexStart   EventType = "lex_start"
	EventLexEnd     EventType = "lex_end"
	EventParseStart EventType = "parse_start"
	EventParseEnd   EventType = "parse_end"
	EventExecStart  EventType = "exec_start"
	EventExecEnd    EventType = "exec_end"
)

// Event is emitted by a session at each phase of a statement
type Event struct {
	Type      EventType
	TxID      string
	Timestamp time.Time
	Data      interface{} // SQL text, token count, statement type or outcome
}

// Observer receives session events. OnEvent runs on the statement's
// goroutine and must not call back into the session.
type Observer interface {
	OnEvent(event Event)
}
