package models

import (
	"encoding/json"
	"time"
)

// JobsListPayload is published whenever the set of tracked job ids is read.
type JobsListPayload struct {
	IDs []string `json:"ids"`
}

// ServerStatusPayload reports detection service reachability.
type ServerStatusPayload struct {
	Up bool `json:"up"`
}

// JobEventPayload identifies the job an event refers to.
type JobEventPayload struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// EventRecord is a published notification kept in the history store.
type EventRecord struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
