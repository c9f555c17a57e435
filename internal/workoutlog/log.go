package workoutlog

import (
	"errors"
	"fmt"
	"time"
)

const (
	TypeMat      = "mat"
	TypeReformer = "reformer"
	TypeTower    = "tower"
	TypeOther    = "other"
)

const MaxDurationMinutes = 180

var validTypes = map[string]bool{
	TypeMat:      true,
	TypeReformer: true,
	TypeTower:    true,
	TypeOther:    true,
}

// Log is a single completed workout session. The ID is generated on the
// client so that retried sync uploads of the same session stay idempotent.
type Log struct {
	ID              string    `json:"id"`
	UserID          int       `json:"userId"`
	WorkoutDate     time.Time `json:"workoutDate"`
	DurationMinutes int       `json:"durationMinutes"`
	Type            string    `json:"type"`
	RPE             int       `json:"rpe"`
	FocusAreas      []string  `json:"focusAreas,omitempty"`
	CalorieEstimate int       `json:"calorieEstimate"`
	StudioID        *int      `json:"studioId,omitempty"`
	TemplateID      *int      `json:"templateId,omitempty"`
	ImagePath       string    `json:"imagePath,omitempty"`
	IsShared        bool      `json:"isShared"`
	SharedPostID    *int      `json:"sharedPostId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

var (
	ErrLogNotFound   = errors.New("workout log not found")
	ErrAlreadyShared = errors.New("workout log already shared")
	ErrNotShared     = errors.New("workout log not shared")
)

func (l *Log) Validate(now time.Time) error {
	if l.ID == "" {
		return errors.New("id empty")
	}
	if l.UserID <= 0 {
		return errors.New("user id empty")
	}
	if l.DurationMinutes <= 0 || l.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("duration must be within (0, %d] minutes", MaxDurationMinutes)
	}
	if !validTypes[l.Type] {
		return fmt.Errorf("invalid workout type: %s", l.Type)
	}
	if l.RPE < 1 || l.RPE > 10 {
		return errors.New("rpe must be within [1, 10]")
	}
	if l.WorkoutDate.After(now) {
		return errors.New("workout date in the future")
	}
	return nil
}
