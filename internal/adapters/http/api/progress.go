package api

import (
	"context"
	"net/http"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/progress"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	readLimit           = 512
)

// ProgressDependencies defines the interface for progress streaming.
type ProgressDependencies interface {
	SubscribeProgress(ctx context.Context, id string) (*progress.Subscription, model.StatusView, error)
}

// ProgressHandler streams progress events over a WebSocket.
type ProgressHandler struct {
	deps         ProgressDependencies
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	now          func() time.Time
	log          logger.Logger
}

// NewProgressHandler creates a new progress handler. A nil checkOrigin keeps
// the upgrader's same-origin default.
func NewProgressHandler(deps ProgressDependencies, ping time.Duration, checkOrigin func(*http.Request) bool, log logger.Logger) *ProgressHandler {
	return &ProgressHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		pingInterval: ping,
		now:          time.Now,
		log:          log,
	}
}

// HandleProgress handles GET /submissions/{id}/progress. The first frame is
// a snapshot of the current status; events follow until the run ends or the
// client goes away. Events older than the snapshot are dropped. Unknown submissions fail before the upgrade.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, view, err := h.deps.SubscribeProgress(ctx, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Debug(ctx, "progress upgrade failed", logger.String("submission_id", id), logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx = logger.WithFields(ctx, logger.String("submission_id", id))

	snapshot := h.snapshot(id, view)
	if err := h.write(conn, snapshot); err != nil {
		return
	}
	if snapshot.Done {
		h.closeNormal(conn)
		return
	}

	gone := h.readPump(conn, cancel)
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			h.log.Debug(ctx, "progress client disconnected")
			return
		case ev, ok := <-sub.C:
			if !ok {
				h.closeNormal(conn)
				return
			}
			if behind(ev, snapshot) {
				continue
			}
			if err := h.write(conn, ev); err != nil {
				h.log.Debug(ctx, "progress write failed", logger.Error(err))
				return
			}
			if ev.Done {
				h.closeNormal(conn)
				return
			}
		case <-ticker.C:
			deadline := h.now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *ProgressHandler) snapshot(id string, view model.StatusView) model.ProgressEvent {
	ev := model.ProgressEvent{
		SubmissionID: id,
		Stage:        view.Stage,
		Progress:     view.Progress,
		Message:      "current status",
		Done:         view.Status.Terminal(),
		Timestamp:    h.now(),
	}
	if view.Status == model.StatusFailed {
		ev.Error = true
		ev.Message = view.ErrorMessage
	}
	return ev
}

// behind reports whether ev was buffered before the snapshot was read and
// describes an earlier point of the run. Terminal events always pass.
func behind(ev, snapshot model.ProgressEvent) bool {
	if ev.Done {
		return false
	}
	return ev.Progress < snapshot.Progress || ev.Stage.Index() < snapshot.Stage.Index()
}

// readPump drains client frames so control messages are processed. The
// returned channel closes once the peer disconnects.
func (h *ProgressHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadLimit(readLimit)
	go func() {
		defer close(gone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

func (h *ProgressHandler) write(conn *websocket.Conn, ev model.ProgressEvent) error {
	_ = conn.SetWriteDeadline(h.now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func (h *ProgressHandler) closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, h.now().Add(writeWait))
}
