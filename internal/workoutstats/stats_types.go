package workoutstats

import "time"

// Snapshot holds the cached lifetime counters for a user. The rolling
// windows and effort numbers are never cached, only these totals are.
type Snapshot struct {
	UserID        int       `json:"userId"`
	TotalWorkouts int       `json:"totalWorkouts"`
	TotalMinutes  int       `json:"totalMinutes"`
	TotalCalories int       `json:"totalCalories"`
	LongestStreak int       `json:"longestStreak"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type WindowStats struct {
	Workouts int `json:"workouts"`
	Minutes  int `json:"minutes"`
	Calories int `json:"calories"`
}

type Stats struct {
	UserID          int        `json:"userId"`
	TotalWorkouts   int        `json:"totalWorkouts"`
	TotalMinutes    int        `json:"totalMinutes"`
	TotalCalories   int        `json:"totalCalories"`
	CurrentStreak   int        `json:"currentStreak"`
	LongestStreak   int        `json:"longestStreak"`
	LastWorkoutDate *time.Time `json:"lastWorkoutDate,omitempty"`
	StreakStartDate *time.Time `json:"streakStartDate,omitempty"`
	AvgRPE          float64    `json:"averageRpe"`

	// flat rolling minute totals next to the full window objects
	WeeklyMinutes  int         `json:"weeklyMinutes"`
	MonthlyMinutes int         `json:"monthlyMinutes"`
	Last7Days      WindowStats `json:"last7Days"`
	Last30Days     WindowStats `json:"last30Days"`

	WeeklyProgress  [7]bool        `json:"weeklyProgress"`
	FocusAreaCounts map[string]int `json:"focusAreaCounts"`
	TypeBreakdown   map[string]int `json:"workoutTypeBreakdown"`
}
