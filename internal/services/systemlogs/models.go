package systemlogs

import "time"

// LogEntry is one parsed line of an application log file
type LogEntry struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogFile describes a log file in the logs directory
type LogFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
