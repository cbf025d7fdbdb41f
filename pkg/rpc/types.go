// Package rpc is the JSON-over-HTTP surface of the scheduler: the chi
// router served by the api binary and a Go client for it.
package rpc

// ScheduleNotificationRequest asks for one notification. Timestamp is in
// unix seconds; zero or a past value means as soon as possible.
type ScheduleNotificationRequest struct {
	EmpID        string `json:"empId"`
	EmailAddress string `json:"emailAddress"`
	Message      string `json:"message"`
	EmployeeName string `json:"employeeName"`
	Timestamp    int64  `json:"timestamp"`
}

// ScheduleNotificationResponse reports Success=false with a Reason for an
// invalid or deduplicated request.
type ScheduleNotificationResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SubmitChatEventRequest is one classified chat interaction. EventID is the
// idempotency key of the aggregate update; one is generated when empty.
// WellnessScore is required: an absent score is not the same as a score of 0.
type SubmitChatEventRequest struct {
	EventID           string `json:"eventId,omitempty"`
	EmpID             string `json:"empId" validate:"required"`
	CurrentMood       string `json:"currentMood"`
	IsEscalated       bool   `json:"isEscalated"`
	BriefSummary      string `json:"briefSummary"`
	MoodScorePercent  string `json:"moodScorePercent"`
	UserChat          string `json:"userChat"`
	BotChat           string `json:"botChat"`
	WellnessScore     *int   `json:"wellnessScore" validate:"required,min=0,max=100"`
	MoodAnalysis      string `json:"moodAnalysis"`
	RecommendedAction string `json:"recommendedAction"`
	DetailedAnalysis  string `json:"detailedAnalysis"`
}

type SubmitChatEventResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"jobId,omitempty"`
}

type CheckInRequest struct {
	EventID string `json:"eventId,omitempty"`
	EmpID   string `json:"empId" validate:"required"`
}

type ActivityRequest struct {
	EventID          string `json:"eventId,omitempty"`
	EmpID            string `json:"empId" validate:"required"`
	TeamMessages     int    `json:"teamMessages" validate:"min=0"`
	EmailsSent       int    `json:"emailsSent" validate:"min=0"`
	MeetingsAttended int    `json:"meetingsAttended" validate:"min=0"`
	WorkHours        *int   `json:"workHours,omitempty" validate:"omitempty,min=0"`
}

type RegisterEmployeeResponse struct {
	Created bool `json:"created"`
}

type StatusResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
