package audit

import "time"

type AccessEvent struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса

	// Кто и что просил
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	Intent  string `json:"intent"`
	Op      string `json:"op"`
	Cluster string `json:"cluster"`
	RawText string `json:"raw_text"`

	// Вердикт авторизации и итог исполнения
	Allowed    bool      `json:"allowed"`
	DenyReason string    `json:"deny_reason,omitempty"` // пусто, если allowed
	Status     string    `json:"status"`                // "ALLOWED", "DENIED", "EXECUTED", "FAILED"
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}
