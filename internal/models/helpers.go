package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRunID generates the identifier carried by a run's logs and notifications
func NewRunID() string {
	id := uuid.New().String()

	return fmt.Sprintf("run-%s", id[:8])
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}
