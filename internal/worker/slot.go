package worker

import (
	"sync"
	"time"
)

type SlotStatus string

const (
	SlotIdle    SlotStatus = "idle"
	SlotBusy    SlotStatus = "busy"
	SlotStopped SlotStatus = "stopped"
)

// Slot is one pool goroutine as seen from /stats.
type Slot struct {
	ID            int        `json:"id"`
	Status        SlotStatus `json:"status"`
	CurrentJobID  string     `json:"current_job_id,omitempty"`
	BusySince     *time.Time `json:"busy_since,omitempty"`
	JobsCompleted int        `json:"jobs_completed"`
	JobsFailed    int        `json:"jobs_failed"`
}

type Stats struct {
	Workers   int    `json:"workers"`
	Idle      int    `json:"idle"`
	Busy      int    `json:"busy"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	TimedOut  int    `json:"timed_out"`
	Queued    int    `json:"queued"`
	Slots     []Slot `json:"slots"`
}

type slots struct {
	mu       sync.RWMutex
	slots    []Slot
	timedOut int
}

func newSlots(n int) *slots {
	s := &slots{slots: make([]Slot, n)}
	for i := range s.slots {
		s.slots[i] = Slot{ID: i, Status: SlotIdle}
	}
	return s
}

func (s *slots) setBusy(i int, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.slots[i].Status = SlotBusy
	s.slots[i].CurrentJobID = jobID
	s.slots[i].BusySince = &now
}

func (s *slots) setIdle(i int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failed {
		s.slots[i].JobsFailed++
	} else {
		s.slots[i].JobsCompleted++
	}
	s.slots[i].Status = SlotIdle
	s.slots[i].CurrentJobID = ""
	s.slots[i].BusySince = nil
}

func (s *slots) setStopped(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[i].Status = SlotStopped
}

func (s *slots) timeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timedOut++
}

func (s *slots) stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Workers:  len(s.slots),
		TimedOut: s.timedOut,
		Slots:    make([]Slot, len(s.slots)),
	}
	for i, sl := range s.slots {
		switch sl.Status {
		case SlotIdle:
			st.Idle++
		case SlotBusy:
			st.Busy++
		}
		st.Completed += sl.JobsCompleted
		st.Failed += sl.JobsFailed
		st.Slots[i] = sl
		if sl.BusySince != nil {
			t := *sl.BusySince
			st.Slots[i].BusySince = &t
		}
	}
	return st
}
