package workoutstats

import (
	"sort"
	"time"
)

type StreakResult struct {
	CurrentStreak   int        `json:"currentStreak"`
	LongestStreak   int        `json:"longestStreak"`
	LastWorkoutDate *time.Time `json:"lastWorkoutDate,omitempty"`
	StreakStartDate *time.Time `json:"streakStartDate,omitempty"`
}

func toDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CalculateStreak computes the current and longest run of consecutive
// workout days. Multiple workouts on the same calendar day count once.
// The current streak stays alive if the last workout was today or
// yesterday, so a streak is not considered broken before the day is over.
func CalculateStreak(workoutDates []time.Time, today time.Time) StreakResult {
	if len(workoutDates) == 0 {
		return StreakResult{}
	}

	daysSet := make(map[time.Time]bool, len(workoutDates))
	for _, d := range workoutDates {
		daysSet[toDay(d)] = true
	}

	days := make([]time.Time, 0, len(daysSet))
	for d := range daysSet {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Before(days[j])
	})

	var longest, runLength int
	var runStart time.Time
	var lastRunStart time.Time

	for i, day := range days {
		if i > 0 && day.Sub(days[i-1]) == 24*time.Hour {
			runLength++
		} else {
			runLength = 1
			runStart = day
		}
		if runLength > longest {
			longest = runLength
		}
		lastRunStart = runStart
	}

	lastDay := days[len(days)-1]
	result := StreakResult{
		LongestStreak:   longest,
		LastWorkoutDate: &lastDay,
	}

	// the last run only counts as the current streak while it can still
	// be extended, i.e. the last workout was today or yesterday
	todayDay := toDay(today)
	yesterday := todayDay.Add(-24 * time.Hour)
	if lastDay.Equal(todayDay) || lastDay.Equal(yesterday) {
		result.CurrentStreak = runLength
		result.StreakStartDate = &lastRunStart
	}

	return result
}
