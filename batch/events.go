package batch

import "time"

type EventType string

const (
	EventTaskQueued     EventType = "task_queued"
	EventTaskDispatched EventType = "task_dispatched"
	EventTaskStarted    EventType = "task_started"
	EventTaskRetrying   EventType = "task_retrying"
	EventTaskSucceeded  EventType = "task_succeeded"
	EventTaskFailed     EventType = "task_failed"
	EventBudgetBlocked  EventType = "budget_blocked"
)

type Event struct {
	Type      EventType      `json:"type"`
	Repo      string         `json:"repo"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// emit sends an event to the event channel (non-blocking)
func (r *Runner) emit(eventType EventType, repo string, data map[string]any) {
	if r.events == nil {
		return
	}

	event := &Event{
		Type:      eventType,
		Repo:      repo,
		Timestamp: time.Now(),
		Data:      data,
	}

	select {
	case r.events <- event:
		// Event sent successfully
	default:
		// Channel full, drop event to avoid blocking
	}
}
