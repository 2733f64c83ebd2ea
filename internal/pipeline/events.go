package pipeline

import (
	"sync"
	"time"
)

// EventType identifies a progress event.
type EventType string

// Progress event types.
const (
	EventStarted        EventType = "started"
	EventSecurityDone   EventType = "security_done"
	EventSecurityFailed EventType = "security_failed"
	EventFinished       EventType = "finished"
)

// Event reports run progress. Done counts securities finished so far,
// failed ones included.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`
	Code  string    `json:"code,omitempty"`
	Done  int       `json:"done"`
	Total int       `json:"total"`
	Rows  int       `json:"rows,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// progress serializes event delivery so Done increases monotonically.
type progress struct {
	mu    sync.Mutex
	runID string
	total int
	done  int
	emit  func(Event)
	clock func() time.Time
}

func (p *progress) send(e Event) {
	if p.emit == nil {
		return
	}
	e.RunID = p.runID
	e.Total = p.total
	e.Time = p.clock()
	p.emit(e)
}

func (p *progress) started() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send(Event{Type: EventStarted})
}

func (p *progress) security(code string, rows int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	e := Event{Type: EventSecurityDone, Code: code, Done: p.done, Rows: rows}
	if err != nil {
		e.Type = EventSecurityFailed
		e.Error = err.Error()
	}
	p.send(e)
}

func (p *progress) finished() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send(Event{Type: EventFinished, Done: p.done})
}
