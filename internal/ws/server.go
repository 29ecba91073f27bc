package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/zerverless/tabular/internal/job"
	"github.com/zerverless/tabular/internal/logging"
)

const writeTimeout = 5 * time.Second

// JobSource is the part of the job manager the websocket server needs.
type JobSource interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	Hub() *job.Hub
}

// Server streams job snapshots to websocket subscribers until the job
// reaches a terminal state.
type Server struct {
	jobs      JobSource
	heartbeat time.Duration

	connsMu sync.RWMutex
	conns   map[*websocket.Conn]string
}

func NewServer(jobs JobSource) *Server {
	return &Server{
		jobs:      jobs,
		heartbeat: 30 * time.Second,
		conns:     make(map[*websocket.Conn]string),
	}
}

// SetHeartbeat changes the keepalive interval.
func (s *Server) SetHeartbeat(d time.Duration) {
	s.heartbeat = d
}

// Connections returns the number of open subscriptions.
func (s *Server) Connections() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := logging.WithFields(r.Context(), "job_id", id)

	// Subscribe before reading the current state so no transition is missed.
	updates, cancel := s.jobs.Hub().Subscribe(id)
	defer cancel()

	current, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, job.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Allow all origins
	})
	if err != nil {
		logger.Warn("websocket accept error", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	s.connsMu.Lock()
	s.conns[conn] = id
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	// Subscribers only listen; CloseRead notices when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if done, err := s.send(ctx, conn, current); err != nil || done {
		s.finish(conn, err, logger)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if done, err := s.send(ctx, conn, snapshot); err != nil || done {
				s.finish(conn, err, logger)
				return
			}

		case <-ticker.C:
			hb := HeartbeatMessage{Type: "heartbeat", Timestamp: time.Now().UTC()}
			if err := s.write(ctx, conn, hb); err != nil {
				logger.Debug("heartbeat failed", "error", err)
				return
			}
		}
	}
}

// send writes one snapshot and reports whether it was terminal.
func (s *Server) send(ctx context.Context, conn *websocket.Conn, j *job.Job) (bool, error) {
	if err := s.write(ctx, conn, JobMessage{Type: "job", Job: j}); err != nil {
		return false, err
	}
	return j.Status.Terminal(), nil
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (s *Server) finish(conn *websocket.Conn, err error, logger *slog.Logger) {
	if err != nil {
		if websocket.CloseStatus(err) == -1 {
			logger.Debug("websocket write error", "error", err)
		}
		return
	}
	conn.Close(websocket.StatusNormalClosure, "job finished")
}
