// Package wellness holds the per-employee and organization-wide wellness
// records and the pure rules that update them. Nothing here performs I/O;
// the aggregate package loads, applies and commits these records.
package wellness

import (
	"time"
)

type Badge struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

var (
	BadgeConsistencyChampion = Badge{
		Slug:        "consistency-champion",
		Name:        "Consistency Champion",
		Description: "Checked in for 30 days",
	}
	BadgeWellnessWarrior = Badge{
		Slug:        "wellness-warrior",
		Name:        "Wellness Warrior",
		Description: "Maintain balance for a month",
	}
	BadgeGrowthGuru = Badge{
		Slug:        "growth-guru",
		Name:        "Growth Guru",
		Description: "Showed a positive trend for 3 weeks",
	}
)

// DefaultBadgesToUnlock is the milestone list of a new employee.
func DefaultBadgesToUnlock() []Badge {
	return []Badge{BadgeConsistencyChampion, BadgeWellnessWarrior, BadgeGrowthGuru}
}

type PointEntry struct {
	Points      int    `json:"points"`
	Description string `json:"description"`
}

// Points are the three components of WellnessPoints.
type Points struct {
	ChatCheckIn        PointEntry `json:"chatCheckIn"`
	StreakBonus        PointEntry `json:"streakBonus"`
	WellnessActivities PointEntry `json:"wellnessActivities"`
}

func (p Points) Total() int {
	return p.ChatCheckIn.Points + p.StreakBonus.Points + p.WellnessActivities.Points
}

// MoodEntry is one day of the mood calendar. MoodLevel is in [1,4].
type MoodEntry struct {
	MoodLevel int       `json:"moodLevel"`
	Timestamp time.Time `json:"timestamp"`
}

type TrendEntry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Trends struct {
	ImprovingTrend     TrendEntry `json:"improvingTrend"`
	ConsistentCheckIns TrendEntry `json:"consistentCheckIns"`
	WellnessScore      TrendEntry `json:"wellnessScore"`
}

// Profile is the identity part of an employee supplied at registration.
type Profile struct {
	EmpID     string `json:"empId" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Dept      string `json:"dept"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
}

// Employee is the wellness record of one employee.
type Employee struct {
	Profile

	JoinedOn             time.Time   `json:"joinedOn"`
	StreakDays           int         `json:"streakDays"`
	WellnessScore        int         `json:"wellnessScore"`
	Points               Points      `json:"wellnessPointEntry"`
	WellnessPoints       int         `json:"wellnessPoints"`
	Level                int         `json:"level"`
	LevelProgress        int         `json:"levelProgress"`
	MoodCalendar         []MoodEntry `json:"moodCalendar"`
	EarnedBadges         []Badge     `json:"earnedBadges"`
	BadgesToUnlock       []Badge     `json:"badgesToUnlock"`
	IsStreakBonusUpdated bool        `json:"isStreakBonusUpdated"`
	CurrentVibe          string      `json:"currentVibe"`
	RecentTrends         Trends      `json:"recentTrends"`

	TeamMessages     int `json:"numberOfTeamMessages"`
	EmailsSent       int `json:"numberOfEmailsSent"`
	MeetingsAttended int `json:"numberOfMeetingsAttended"`
	WorkHours        int `json:"workHours"`

	// LastBoundary is the business date of the last daily boundary applied.
	LastBoundary  string `json:"lastBoundary,omitempty"`
	NeedsOutreach bool   `json:"needsOutreach"`
}

func NewEmployee(p Profile, now time.Time) *Employee {
	return &Employee{
		Profile:  p,
		JoinedOn: now,
		Level:    1,
		Points: Points{
			ChatCheckIn:        PointEntry{Description: "Daily chat check-ins"},
			StreakBonus:        PointEntry{Description: "Streak bonuses"},
			WellnessActivities: PointEntry{Description: "Wellness activities"},
		},
		MoodCalendar:   []MoodEntry{},
		EarnedBadges:   []Badge{},
		BadgesToUnlock: DefaultBadgesToUnlock(),
	}
}

func (e *Employee) HasBadge(slug string) bool {
	for _, b := range e.EarnedBadges {
		if b.Slug == slug {
			return true
		}
	}
	return false
}

// Brief returns the roster view of the employee.
func (e *Employee) Brief() BriefEmployee {
	return BriefEmployee{
		EmpID:     e.EmpID,
		Name:      e.Name,
		Dept:      e.Dept,
		AvatarURL: e.AvatarURL,
	}
}

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

type ChatMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
}

type MoodTrend struct {
	Date time.Time `json:"date"`
	Mood string    `json:"mood"`
}

// BriefEmployee is the denormalized roster entry mirrored into the
// organization record and the detail record.
type BriefEmployee struct {
	EmpID            string    `json:"empId"`
	Name             string    `json:"name"`
	Dept             string    `json:"dept"`
	AvatarURL        string    `json:"avatarUrl"`
	LastActive       time.Time `json:"lastActive"`
	CurrentMood      string    `json:"currentMood"`
	IsEscalated      bool      `json:"isEscalated"`
	BriefMoodSummary string    `json:"briefMoodSummary"`
}

const maxPastMoodTrends = 5

// Detail is the per-employee reporting record.
type Detail struct {
	Brief              BriefEmployee `json:"briefUserDetails"`
	CurrentMoodRate    string        `json:"currentMoodRate"`
	MoodAnalysis       string        `json:"moodAnalysis"`
	RecommendedAction  string        `json:"recommendedAction"`
	ChatAIAnalysis     string        `json:"chatAIAnalysis"`
	ChatHistory        []ChatMessage `json:"chatHistory"`
	EarnedBadges       []Badge       `json:"earnedBadges"`
	PastFiveMoodTrends []MoodTrend   `json:"pastFiveMoodTrends"`
}

func NewDetail(e *Employee) *Detail {
	return &Detail{
		Brief:              e.Brief(),
		ChatHistory:        []ChatMessage{},
		EarnedBadges:       []Badge{},
		PastFiveMoodTrends: []MoodTrend{},
	}
}

type MoodDistribution struct {
	Angry          int `json:"angry"`
	Sad            int `json:"sad"`
	Neutral        int `json:"neutral"`
	TendingToHappy int `json:"tendingToHappy"`
	Happy          int `json:"happy"`
}

func (m MoodDistribution) Total() int {
	return m.Angry + m.Sad + m.Neutral + m.TendingToHappy + m.Happy
}

// DailyParticipation counts chat participants on one business date
// (YYYY-MM-DD).
type DailyParticipation struct {
	Date         string `json:"date"`
	Participants int    `json:"numberOfParticipants"`
}

// Organization is the singleton organization-wide aggregate.
type Organization struct {
	TotalEmployees         int                      `json:"totalEmployees"`
	TotalChatInteractions  int                      `json:"totalChatInteractions"`
	DailyChatParticipation []DailyParticipation     `json:"dailyChatParticipation"`
	MoodDistribution       MoodDistribution         `json:"employeeMoodDistribution"`
	Escalated              map[string]BriefEmployee `json:"briefEscalatedUsers"`
	NoOfEscalatedIssues    int                      `json:"noOfEscalatedIssues"`
	Roster                 map[string]BriefEmployee `json:"briefTotalUsers"`
}

func NewOrganization() *Organization {
	return &Organization{
		DailyChatParticipation: []DailyParticipation{},
		Escalated:              map[string]BriefEmployee{},
		Roster:                 map[string]BriefEmployee{},
	}
}

// EnsureMaps initializes maps left nil by decoding an older document.
func (o *Organization) EnsureMaps() {
	if o.Escalated == nil {
		o.Escalated = map[string]BriefEmployee{}
	}
	if o.Roster == nil {
		o.Roster = map[string]BriefEmployee{}
	}
}
