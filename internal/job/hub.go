package job

import "sync"

const subscriberBuffer = 8

// Hub fans job snapshots out to subscribers. A slow subscriber loses
// intermediate snapshots but always receives the latest one.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch   chan *Job
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscription]struct{})}
}

// Subscribe returns a channel of snapshots for job id and a cancel func
// that must be called once the caller stops reading.
func (h *Hub) Subscribe(id string) (<-chan *Job, func()) {
	sub := &subscription{ch: make(chan *Job, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[*subscription]struct{})
	}
	h.subs[id][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[id], sub)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
		}
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

func (h *Hub) Publish(j *Job) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[j.ID] {
		snapshot := j.Clone()
		select {
		case sub.ch <- snapshot:
			continue
		default:
		}
		// Full: drop the oldest so the newest state is never lost.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions for id.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}
