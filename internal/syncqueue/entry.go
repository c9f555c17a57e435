package syncqueue

import (
	"errors"
	"time"

	"github.com/pilatesloop/backend/internal/workoutlog"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in-flight"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

var ErrEntryNotFound = errors.New("sync queue entry not found")

// Entry is a workout log waiting to be committed to the server side
// store. The entry ID equals the client generated log ID, so retried
// uploads of the same workout collapse into one entry.
type Entry struct {
	ID         string         `json:"id"`
	UserID     int            `json:"userId"`
	Log        workoutlog.Log `json:"log"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	LastError  string         `json:"lastError,omitempty"`
}

// Trigger names the event that kicked off a sync pass.
type Trigger string

const (
	TriggerForeground   Trigger = "foreground"
	TriggerConnectivity Trigger = "connectivity"
	TriggerColdStart    Trigger = "cold-start"
	TriggerManual       Trigger = "manual"
	TriggerEnqueue      Trigger = "enqueue"
)
