package wellness

import (
	"fmt"
	"strings"
	"time"
)

type badgeRule struct {
	badge    Badge
	eligible func(e *Employee) bool
}

func (p Policy) badgeRules() []badgeRule {
	return []badgeRule{
		{BadgeConsistencyChampion, func(e *Employee) bool {
			return e.StreakDays >= p.ConsistencyDays
		}},
		{BadgeWellnessWarrior, func(e *Employee) bool {
			return len(e.MoodCalendar) >= p.SteadyWindow && trailingAtLeast(e.MoodCalendar, 3) >= p.SteadyWindow
		}},
		{BadgeGrowthGuru, func(e *Employee) bool {
			return len(e.MoodCalendar) >= p.GrowthWindow && trailingAtLeast(e.MoodCalendar, 4) >= p.GrowthWindow
		}},
	}
}

// trailingAtLeast counts the calendar entries at the end with a mood level
// of at least level.
func trailingAtLeast(cal []MoodEntry, level int) int {
	n := 0
	for i := len(cal) - 1; i >= 0 && cal[i].MoodLevel >= level; i-- {
		n++
	}
	return n
}

// BoundaryTime is the timestamp of the mood entry written for date: now,
// unless the run is late and now already falls on a later date, in which
// case the last second of date.
func BoundaryTime(date string, now time.Time, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid boundary date %q: %w", date, err)
	}
	end := day.AddDate(0, 0, 1).Add(-time.Second)
	if now.After(end) {
		return end, nil
	}
	return now, nil
}

// ApplyDailyBoundary closes the business date for one employee. It is a
// no-op returning false when date was already applied, so a crashed run can
// be redone safely.
func ApplyDailyBoundary(e *Employee, d *Detail, date string, at time.Time, p Policy) bool {
	if e.LastBoundary == date {
		return false
	}

	e.MoodCalendar = append(e.MoodCalendar, MoodEntry{MoodLevel: MoodLevel(e.WellnessScore), Timestamp: at})

	for _, rule := range p.badgeRules() {
		if e.HasBadge(rule.badge.Slug) || !rule.eligible(e) {
			continue
		}
		awardBadge(e, d, rule.badge)
	}

	remark := Remark(e.WellnessScore)
	e.CurrentVibe = remark
	e.RecentTrends = Trends{
		ImprovingTrend: TrendEntry{
			Title:       "Improving Trend",
			Description: plural(trailingAtLeast(e.MoodCalendar, 4), "Last %d Day", "Last %d Days"),
		},
		ConsistentCheckIns: TrendEntry{
			Title:       "Consistent Check-Ins",
			Description: fmt.Sprintf("%d Day Streak", e.StreakDays),
		},
		WellnessScore: TrendEntry{
			Title:       "Wellness Score",
			Description: fmt.Sprintf("%d/100 (%s)", e.WellnessScore, remark),
		},
	}

	d.PastFiveMoodTrends = append(d.PastFiveMoodTrends, MoodTrend{Date: at, Mood: capitalize(remark)})
	if n := len(d.PastFiveMoodTrends); n > maxPastMoodTrends {
		d.PastFiveMoodTrends = d.PastFiveMoodTrends[n-maxPastMoodTrends:]
	}

	e.NeedsOutreach = e.WellnessScore <= p.OutreachScoreThreshold
	e.IsStreakBonusUpdated = false
	e.LastBoundary = date
	return true
}

func awardBadge(e *Employee, d *Detail, b Badge) {
	e.EarnedBadges = append(e.EarnedBadges, b)
	remaining := e.BadgesToUnlock[:0]
	for _, pending := range e.BadgesToUnlock {
		if pending.Slug != b.Slug {
			remaining = append(remaining, pending)
		}
	}
	e.BadgesToUnlock = remaining

	for _, mirrored := range d.EarnedBadges {
		if mirrored.Slug == b.Slug {
			return
		}
	}
	d.EarnedBadges = append(d.EarnedBadges, b)
}

// MoodDistributionOf counts employees by their current remark.
func MoodDistributionOf(employees []*Employee) MoodDistribution {
	var dist MoodDistribution
	for _, e := range employees {
		switch Remark(e.WellnessScore) {
		case RemarkAngry:
			dist.Angry++
		case RemarkSad:
			dist.Sad++
		case RemarkNeutral:
			dist.Neutral++
		case RemarkTendingToHappy:
			dist.TendingToHappy++
		case RemarkHappy:
			dist.Happy++
		}
	}
	return dist
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf(one, n)
	}
	return fmt.Sprintf(many, n)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
