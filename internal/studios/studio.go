package studios

import (
	"errors"
	"time"
)

var ErrStudioNotFound = errors.New("studio not found")

type Studio struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Address   string    `json:"address,omitempty"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
