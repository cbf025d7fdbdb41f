package wellness

import (
	"time"
)

// Policy holds the product constants of the rules.
type Policy struct {
	// OutreachScoreThreshold marks employees at or below it for outreach.
	OutreachScoreThreshold int
	ConsistencyDays        int
	SteadyWindow           int
	GrowthWindow           int
}

func DefaultPolicy() Policy {
	return Policy{
		OutreachScoreThreshold:   45,
		ConsistencyDays:          30,
		SteadyWindow:             30,
		GrowthWindow:             21,
	}
}

const (
	RemarkAngry          = "angry"
	RemarkSad            = "sad"
	RemarkNeutral        = "neutral"
	RemarkTendingToHappy = "tending to happy"
	RemarkHappy          = "happy"
)

// Remark partitions a 0-100 wellness score into five bands of 20.
func Remark(score int) string {
	switch {
	case score <= 20:
		return RemarkAngry
	case score <= 40:
		return RemarkSad
	case score <= 60:
		return RemarkNeutral
	case score <= 80:
		return RemarkTendingToHappy
	default:
		return RemarkHappy
	}
}

// MoodLevel is ceil(score/20) clamped to [1,4].
func MoodLevel(score int) int {
	level := (score + 19) / 20
	if level < 1 {
		return 1
	}
	if level > 4 {
		return 4
	}
	return level
}

// DateOf returns the business date of t as YYYY-MM-DD.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func yesterdayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).AddDate(0, 0, -1).Format(time.DateOnly)
}
