package common

import (
	"github.com/google/uuid"
)

// NewEventID generates a unique notification ID with the "evt_" prefix
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

// NewRequestID generates an ID used to correlate HTTP request logs
func NewRequestID() string {
	return uuid.New().String()
}
