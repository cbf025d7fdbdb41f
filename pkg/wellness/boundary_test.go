package wellness

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendar(levels ...int) []MoodEntry {
	start := time.Date(2026, 1, 1, 23, 59, 0, 0, ist)
	cal := make([]MoodEntry, len(levels))
	for i, l := range levels {
		cal[i] = MoodEntry{MoodLevel: l, Timestamp: start.AddDate(0, 0, i)}
	}
	return cal
}

func repeat(level, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func countBadge(badges []Badge, slug string) int {
	n := 0
	for _, b := range badges {
		if b.Slug == slug {
			n++
		}
	}
	return n
}

func TestRemark(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, RemarkAngry},
		{1, RemarkAngry},
		{20, RemarkAngry},
		{21, RemarkSad},
		{40, RemarkSad},
		{41, RemarkNeutral},
		{60, RemarkNeutral},
		{61, RemarkTendingToHappy},
		{80, RemarkTendingToHappy},
		{81, RemarkHappy},
		{100, RemarkHappy},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, Remark(tt.score))
		})
	}
}

func TestMoodLevel(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 20: 1, 21: 2, 40: 2, 41: 3, 60: 3, 61: 4, 80: 4, 81: 4, 100: 4}
	for score, want := range tests {
		assert.Equal(t, want, MoodLevel(score), "score %d", score)
	}
}

func TestDailyBoundary_WellnessWarriorAwardedExactlyOnce(t *testing.T) {
	e, d, _ := newRecords(t, "E1")
	e.MoodCalendar = calendar(repeat(3, 29)...)
	e.WellnessScore = 55 // level 3
	p := DefaultPolicy()

	require.True(t, ApplyDailyBoundary(e, d, "2026-01-30", time.Date(2026, 1, 30, 23, 59, 0, 0, ist), p))

	require.Len(t, e.MoodCalendar, 30)
	assert.Equal(t, 1, countBadge(e.EarnedBadges, BadgeWellnessWarrior.Slug))
	assert.Equal(t, 0, countBadge(e.BadgesToUnlock, BadgeWellnessWarrior.Slug))
	assert.Equal(t, 1, countBadge(d.EarnedBadges, BadgeWellnessWarrior.Slug))

	// Still eligible the next day; must not be appended again.
	require.True(t, ApplyDailyBoundary(e, d, "2026-01-31", time.Date(2026, 1, 31, 23, 59, 0, 0, ist), p))
	assert.Equal(t, 1, countBadge(e.EarnedBadges, BadgeWellnessWarrior.Slug))
	assert.Equal(t, 1, countBadge(d.EarnedBadges, BadgeWellnessWarrior.Slug))
}

func TestDailyBoundary_BadgeRules(t *testing.T) {
	tests := []struct {
		name     string
		levels   []int
		score    int
		streak   int
		awarded  []string
		withheld []string
	}{
		{
			name:     "too few entries for steady",
			levels:   repeat(4, 20),
			score:    55,
			withheld: []string{BadgeWellnessWarrior.Slug, BadgeGrowthGuru.Slug, BadgeConsistencyChampion.Slug},
		},
		{
			name:     "growth after 21 entries at level 4",
			levels:   repeat(4, 20),
			score:    75,
			awarded:  []string{BadgeGrowthGuru.Slug},
			withheld: []string{BadgeWellnessWarrior.Slug},
		},
		{
			name:     "one low day inside the window breaks steady",
			levels:   append(append(repeat(3, 10), 2), repeat(3, 18)...),
			score:    55,
			withheld: []string{BadgeWellnessWarrior.Slug},
		},
		{
			name:     "consistency from streak alone",
			levels:   nil,
			score:    10,
			streak:   30,
			awarded:  []string{BadgeConsistencyChampion.Slug},
			withheld: []string{BadgeWellnessWarrior.Slug, BadgeGrowthGuru.Slug},
		},
		{
			name:    "all three at once",
			levels:  repeat(4, 29),
			score:   90,
			streak:  31,
			awarded: []string{BadgeConsistencyChampion.Slug, BadgeWellnessWarrior.Slug, BadgeGrowthGuru.Slug},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, d, _ := newRecords(t, "E1")
			e.MoodCalendar = calendar(tt.levels...)
			e.WellnessScore = tt.score
			e.StreakDays = tt.streak

			ApplyDailyBoundary(e, d, "2026-03-01", time.Date(2026, 3, 1, 23, 59, 0, 0, ist), DefaultPolicy())

			for _, slug := range tt.awarded {
				assert.Equal(t, 1, countBadge(e.EarnedBadges, slug), "expected %s", slug)
				assert.Equal(t, 0, countBadge(e.BadgesToUnlock, slug))
			}
			for _, slug := range tt.withheld {
				assert.Equal(t, 0, countBadge(e.EarnedBadges, slug), "unexpected %s", slug)
				assert.Equal(t, 1, countBadge(e.BadgesToUnlock, slug))
			}
		})
	}
}

func TestDailyBoundary_SameDateIsNoOp(t *testing.T) {
	e, d, _ := newRecords(t, "E1")
	e.WellnessScore = 50
	at := time.Date(2026, 3, 1, 23, 59, 0, 0, ist)

	require.True(t, ApplyDailyBoundary(e, d, "2026-03-01", at, DefaultPolicy()))
	e.IsStreakBonusUpdated = true

	assert.False(t, ApplyDailyBoundary(e, d, "2026-03-01", at, DefaultPolicy()))
	assert.Len(t, e.MoodCalendar, 1)
	assert.Len(t, d.PastFiveMoodTrends, 1)
	assert.True(t, e.IsStreakBonusUpdated, "a redo must not touch the record")
}

func TestDailyBoundary_TrendsRemarkAndFlags(t *testing.T) {
	e, d, _ := newRecords(t, "E1")
	e.MoodCalendar = calendar(2, 4, 4)
	e.WellnessScore = 66
	e.StreakDays = 1
	e.IsStreakBonusUpdated = true

	ApplyDailyBoundary(e, d, "2026-03-01", time.Date(2026, 3, 1, 23, 59, 0, 0, ist), DefaultPolicy())

	assert.Equal(t, "Last 3 Days", e.RecentTrends.ImprovingTrend.Description)
	assert.Equal(t, "1 Day Streak", e.RecentTrends.ConsistentCheckIns.Description)
	assert.Equal(t, "66/100 (tending to happy)", e.RecentTrends.WellnessScore.Description)
	assert.Equal(t, RemarkTendingToHappy, e.CurrentVibe)
	assert.False(t, e.IsStreakBonusUpdated)
	assert.False(t, e.NeedsOutreach)
	assert.Equal(t, "2026-03-01", e.LastBoundary)
	require.Len(t, d.PastFiveMoodTrends, 1)
	assert.Equal(t, "Tending to happy", d.PastFiveMoodTrends[0].Mood)
}

func TestDailyBoundary_ImprovingTrendSingular(t *testing.T) {
	e, d, _ := newRecords(t, "E1")
	e.MoodCalendar = calendar(2)
	e.WellnessScore = 70

	ApplyDailyBoundary(e, d, "2026-03-01", time.Now(), DefaultPolicy())
	assert.Equal(t, "Last 1 Day", e.RecentTrends.ImprovingTrend.Description)
}

func TestDailyBoundary_NeedsOutreachAtThreshold(t *testing.T) {
	for score, want := range map[int]bool{45: true, 46: false, 0: true} {
		e, d, _ := newRecords(t, "E1")
		e.WellnessScore = score
		ApplyDailyBoundary(e, d, "2026-03-01", time.Now(), DefaultPolicy())
		assert.Equal(t, want, e.NeedsOutreach, "score %d", score)
	}
}

func TestDailyBoundary_PastFiveMoodTrendsBounded(t *testing.T) {
	e, d, _ := newRecords(t, "E1")
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, ist)
	for i := 0; i < 8; i++ {
		e.WellnessScore = i * 10
		ApplyDailyBoundary(e, d, DateOf(day, ist), day, DefaultPolicy())
		day = day.AddDate(0, 0, 1)
	}

	require.Len(t, d.PastFiveMoodTrends, 5)
	assert.Equal(t, time.Date(2026, 3, 4, 23, 0, 0, 0, ist), d.PastFiveMoodTrends[0].Date)
	assert.Len(t, e.MoodCalendar, 8)
}

func TestMoodDistributionOf(t *testing.T) {
	var emps []*Employee
	for _, score := range []int{5, 25, 30, 50, 70, 90, 100} {
		emps = append(emps, &Employee{WellnessScore: score})
	}
	dist := MoodDistributionOf(emps)

	assert.Equal(t, MoodDistribution{Angry: 1, Sad: 2, Neutral: 1, TendingToHappy: 1, Happy: 2}, dist)
	assert.Equal(t, len(emps), dist.Total())
}

func TestBoundaryTime(t *testing.T) {
	onTime := time.Date(2026, 3, 1, 23, 59, 0, 0, ist)
	got, err := BoundaryTime("2026-03-01", onTime, ist)
	require.NoError(t, err)
	assert.Equal(t, onTime, got)

	late := time.Date(2026, 3, 2, 0, 30, 0, 0, ist)
	got, err = BoundaryTime("2026-03-01", late, ist)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", DateOf(got, ist))

	_, err = BoundaryTime("03/01/2026", late, ist)
	assert.Error(t, err)
}
