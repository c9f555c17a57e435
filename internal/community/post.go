package community

import (
	"errors"
	"time"
)

var ErrPostNotFound = errors.New("post not found")

// Post is an entry in the community feed. Posts created by sharing a
// workout carry the originating log ID.
type Post struct {
	ID           int       `json:"id"`
	UserID       int       `json:"userId"`
	WorkoutLogID *string   `json:"workoutLogId,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}
