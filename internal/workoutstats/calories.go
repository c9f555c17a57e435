package workoutstats

import "math"

// MET values per workout type, from the Compendium of Physical Activities
// entries for pilates and calisthenics-style conditioning.
var metByWorkoutType = map[string]float64{
	"mat":      3.0,
	"reformer": 3.5,
	"tower":    3.8,
	"other":    3.2,
}

const (
	metFallback     = 3.2
	DefaultWeightKg = 65
)

// EstimateCalories returns the estimated energy expenditure of a workout
// in kilocalories. The reported effort (RPE 1..10) scales the base MET
// value within [0.84, 1.2]. A non-positive weight falls back to
// DefaultWeightKg, for users who never set their weight in the profile.
func EstimateCalories(workoutType string, durationMinutes, rpe int, weightKg float64) int {
	met, ok := metByWorkoutType[workoutType]
	if !ok {
		met = metFallback
	}

	if weightKg <= 0 {
		weightKg = DefaultWeightKg
	}

	intensityMultiplier := 0.8 + (float64(rpe)/10)*0.4

	calories := met * intensityMultiplier * weightKg * float64(durationMinutes) / 60
	return int(math.Round(calories))
}
