package job

import (
	"encoding/json"
	"fmt"
	"time"
)

type Type string
type State string

const (
	TypeNotification  Type = "notification"
	TypeChatEvent     Type = "chat_event"
	TypeDailyBoundary Type = "daily_boundary"
	TypeDispatchDue   Type = "dispatch_due"
)

// Types lists every job type a worker may serve.
var Types = []Type{TypeNotification, TypeChatEvent, TypeDailyBoundary, TypeDispatchDue}

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED" // reserved; retryable failures go back to PENDING
	StateAbandoned State = "ABANDONED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateAbandoned
}

type Job struct {
	ID             string          `json:"id"`
	Type           Type            `json:"type"`
	State          State           `json:"state"`
	Recipient      string          `json:"recipient,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	UniqueKey      string          `json:"unique_key,omitempty"`
	NotBefore      time.Time       `json:"not_before"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	WorkerID       string          `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	Seq            int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NotificationPayload is the body of a TypeNotification job.
type NotificationPayload struct {
	EmpID        string `json:"emp_id"`
	Email        string `json:"email"`
	EmployeeName string `json:"employee_name"`
	Message      string `json:"message"`
}

// ChatEventPayload is the body of a TypeChatEvent job. EventID is the
// idempotency key of the aggregate update.
type ChatEventPayload struct {
	EventID           string    `json:"event_id"`
	EmpID             string    `json:"emp_id"`
	CurrentMood       string    `json:"current_mood"`
	IsEscalated       bool      `json:"is_escalated"`
	BriefSummary      string    `json:"brief_summary"`
	MoodScorePercent  string    `json:"mood_score_percent"`
	UserChat          string    `json:"user_chat"`
	BotChat           string    `json:"bot_chat"`
	WellnessScore     int       `json:"wellness_score"`
	MoodAnalysis      string    `json:"mood_analysis"`
	RecommendedAction string    `json:"recommended_action"`
	DetailedAnalysis  string    `json:"detailed_analysis"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// BoundaryPayload is the body of the recurring jobs. Date is the business
// calendar date (YYYY-MM-DD) the run is for.
type BoundaryPayload struct {
	Date string `json:"date"`
}

// Encode marshals a payload for storage on a job.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding job payload: %w", err)
	}
	return b, nil
}

// Decode unmarshals a job's payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload of job %s: %w", j.Type, j.ID, err)
	}
	return nil
}
