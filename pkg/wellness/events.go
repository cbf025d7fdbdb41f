package wellness

import (
	"slices"
	"strings"
	"time"
)

const (
	checkInPoints        = 10
	streakBonusPerDay    = 10
	levelProgressPerChat = 5
	levelSize            = 100
)

// ChatEvent is one classified chat interaction.
type ChatEvent struct {
	EventID           string
	EmpID             string
	CurrentMood       string
	IsEscalated       bool
	BriefSummary      string
	MoodScorePercent  string
	UserChat          string
	BotChat           string
	WellnessScore     int
	MoodAnalysis      string
	RecommendedAction string
	DetailedAnalysis  string
	OccurredAt        time.Time
}

// ApplyChatEvent updates the three records for one chat interaction at time
// at. The caller commits them together. Escalation set membership follows
// the classifier's IsEscalated flag of the latest event and nothing else.
func ApplyChatEvent(e *Employee, d *Detail, org *Organization, ev ChatEvent, at time.Time, loc *time.Location) {
	org.EnsureMaps()

	checkIn(e, at, loc)
	AddLevelProgress(e, levelProgressPerChat)
	e.WellnessScore = ev.WellnessScore

	recordParticipation(org, DateOf(at, loc))
	org.TotalChatInteractions++

	brief := e.Brief()
	if existing, ok := org.Roster[e.EmpID]; ok {
		brief = existing
	}
	brief.LastActive = at
	brief.CurrentMood = ev.CurrentMood
	brief.IsEscalated = ev.IsEscalated
	brief.BriefMoodSummary = ev.BriefSummary
	org.Roster[e.EmpID] = brief

	d.Brief = brief
	d.CurrentMoodRate = ev.MoodScorePercent
	d.MoodAnalysis = ev.MoodAnalysis
	d.RecommendedAction = ev.RecommendedAction
	d.ChatAIAnalysis = ev.DetailedAnalysis
	d.ChatHistory = append(d.ChatHistory,
		ChatMessage{Message: ev.UserChat, Timestamp: at, Sender: SenderUser},
		ChatMessage{Message: ev.BotChat, Timestamp: at, Sender: SenderAI},
	)

	setEscalation(org, brief, ev.IsEscalated)
}

// CheckIn is the start-of-day check-in: points, streak and participation
// without a chat turn.
func CheckIn(e *Employee, org *Organization, at time.Time, loc *time.Location) {
	checkIn(e, at, loc)
	recordParticipation(org, DateOf(at, loc))
}

func checkIn(e *Employee, at time.Time, loc *time.Location) {
	e.Points.ChatCheckIn.Points += checkInPoints
	evaluateStreak(e, at, loc)
	e.WellnessPoints = e.Points.Total()
}

// evaluateStreak extends the streak when the last mood entry is from
// yesterday and restarts it when the employee skipped a day. At most one
// decision is taken per business day.
func evaluateStreak(e *Employee, at time.Time, loc *time.Location) {
	if len(e.MoodCalendar) == 0 {
		e.StreakDays = 1
		e.IsStreakBonusUpdated = true
		return
	}
	if e.IsStreakBonusUpdated {
		return
	}
	last := DateOf(e.MoodCalendar[len(e.MoodCalendar)-1].Timestamp, loc)
	switch {
	case last == yesterdayOf(at, loc):
		e.StreakDays++
		e.Points.StreakBonus.Points += streakBonusPerDay * e.StreakDays
		e.IsStreakBonusUpdated = true
	case last != DateOf(at, loc):
		e.StreakDays = 1
		e.IsStreakBonusUpdated = true
	}
}

// AddLevelProgress adds n progress points, levelling up once per full 100.
func AddLevelProgress(e *Employee, n int) {
	if e.Level < 1 {
		e.Level = 1
	}
	e.LevelProgress += n
	for e.LevelProgress >= levelSize {
		e.LevelProgress -= levelSize
		e.Level++
	}
}

func recordParticipation(org *Organization, date string) {
	for i := range org.DailyChatParticipation {
		if org.DailyChatParticipation[i].Date == date {
			org.DailyChatParticipation[i].Participants++
			return
		}
	}
	org.DailyChatParticipation = append(org.DailyChatParticipation, DailyParticipation{Date: date, Participants: 1})
	slices.SortFunc(org.DailyChatParticipation, func(a, b DailyParticipation) int {
		return strings.Compare(a.Date, b.Date)
	})
}

// setEscalation keeps Escalated a set keyed by employee and the counter
// equal to its size.
func setEscalation(org *Organization, brief BriefEmployee, escalated bool) {
	_, present := org.Escalated[brief.EmpID]
	switch {
	case escalated && !present:
		org.Escalated[brief.EmpID] = brief
	case !escalated && present:
		delete(org.Escalated, brief.EmpID)
	}
	org.NoOfEscalatedIssues = len(org.Escalated)
}

// Activity is a batch of workplace activity counters. Counters are added;
// WorkHours, when set, replaces the stored value.
type Activity struct {
	TeamMessages     int  `json:"teamMessages" validate:"min=0"`
	EmailsSent       int  `json:"emailsSent" validate:"min=0"`
	MeetingsAttended int  `json:"meetingsAttended" validate:"min=0"`
	WorkHours        *int `json:"workHours,omitempty" validate:"omitempty,min=0"`
}

func RecordActivity(e *Employee, a Activity) {
	e.TeamMessages += a.TeamMessages
	e.EmailsSent += a.EmailsSent
	e.MeetingsAttended += a.MeetingsAttended
	if a.WorkHours != nil {
		e.WorkHours = *a.WorkHours
	}
}

// RecordOutreach appends a message sent to the employee on the assistant's
// behalf to the chat history.
func RecordOutreach(d *Detail, message string, at time.Time) {
	d.ChatHistory = append(d.ChatHistory, ChatMessage{Message: message, Timestamp: at, Sender: SenderAI})
}

// Register adds a new employee to the organization roster. It returns false
// when the employee is already on it.
func Register(org *Organization, e *Employee) bool {
	org.EnsureMaps()
	if _, ok := org.Roster[e.EmpID]; ok {
		return false
	}
	org.Roster[e.EmpID] = e.Brief()
	org.TotalEmployees++
	return true
}
