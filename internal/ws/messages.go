package ws

import (
	"time"

	"github.com/zerverless/tabular/internal/job"
)

type BaseMessage struct {
	Type string `json:"type"`
}

// Server → Subscriber

// JobMessage carries a snapshot of the job after a state change.
type JobMessage struct {
	Type string   `json:"type"`
	Job  *job.Job `json:"job"`
}

type HeartbeatMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
