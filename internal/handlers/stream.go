package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/middleware"
	"apexdispatch/internal/models"
	"apexdispatch/internal/services"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler pushes periodic status snapshots over websockets.
type StreamHandler struct {
	users      middleware.UserResolver
	processing *services.ProcessingService
	upscaling  *services.UpscalingService
	interval   time.Duration
}

func NewStreamHandler(users middleware.UserResolver, processing *services.ProcessingService, upscaling *services.UpscalingService, interval time.Duration) *StreamHandler {
	return &StreamHandler{users: users, processing: processing, upscaling: upscaling, interval: interval}
}

// snapshotFunc loads one status snapshot for the session owner.
type snapshotFunc func(ctx context.Context, token, userID string) (any, error)

type streamSession struct {
	conn   *websocket.Conn
	log    *logrus.Entry
	jobID  *int64
	taskID *int64
}

func (s *streamSession) send(msg models.StreamMessage) error {
	msg.JobID = s.jobID
	msg.TaskID = s.taskID
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *streamSession) close(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

// fail reports err to the client and closes the session. Not found ends the stream normally.
func (s *streamSession) fail(err error, requestID string) {
	_, body := apierr.ToResponse(err, requestID)
	_ = s.send(models.StreamMessage{Type: models.StreamError, Message: body.Message, Code: body.ErrorCode})
	if services.IsNotFound(err) {
		s.close(websocket.CloseNormalClosure, body.Message)
		return
	}
	s.log.WithError(err).Error("Status stream aborted")
	s.close(websocket.CloseInternalServerErr, "status stream failed")
}

func (h *StreamHandler) JobsStatus(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, nil, nil, func(ctx context.Context, token, userID string) (any, error) {
		return collectJobsStatus(ctx, h.processing, h.upscaling, token, userID)
	})
}

func (h *StreamHandler) UnitJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.serve(w, r, &id, nil, func(ctx context.Context, token, userID string) (any, error) {
		job, err := h.processing.GetJob(ctx, token, userID, id)
		if err == nil && job == nil {
			err = apierr.JobNotFound(id)
		}
		return job, err
	})
}

func (h *StreamHandler) UpscaleTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.serve(w, r, nil, &id, func(ctx context.Context, token, userID string) (any, error) {
		task, err := h.upscaling.GetTask(ctx, token, userID, id)
		if err == nil && task == nil {
			err = apierr.TaskNotFound(id)
		}
		return task, err
	})
}

// maxStreamInterval bounds ?interval= so the ticker period cannot overflow.
const maxStreamInterval = time.Hour

func (h *StreamHandler) pollInterval(r *http.Request) time.Duration {
	if v := r.URL.Query().Get("interval"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 && secs <= int(maxStreamInterval/time.Second) {
			return time.Duration(secs) * time.Second
		}
	}
	return h.interval
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, jobID, taskID *int64, snapshot snapshotFunc) {
	log := logging.FromContext(r.Context()).WithField("stream", r.URL.Path)
	interval := h.pollInterval(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade websocket")
		return
	}
	defer conn.Close()

	session := &streamSession{conn: conn, log: log, jobID: jobID, taskID: taskID}

	token := middleware.TokenFromRequest(r)
	userID, err := h.users.CurrentUser(token)
	if token == "" || err != nil {
		session.close(websocket.ClosePolicyViolation, "authentication failed")
		return
	}
	session.log = log.WithField("user_id", userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Inbound frames are discarded; a read error means the client went away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-readerDone
	}()

	if err := session.send(models.StreamMessage{Type: models.StreamInit, Message: "Starting status stream"}); err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	requestID := middleware.RequestID(r.Context())

	for {
		if err := session.send(models.StreamMessage{Type: models.StreamLoading, Message: "Loading the status"}); err != nil {
			return
		}
		data, err := snapshot(ctx, token, userID)
		switch {
		case ctx.Err() != nil:
			return
		case err == nil:
			if err := session.send(models.StreamMessage{Type: models.StreamStatus, Data: data}); err != nil {
				return
			}
		case services.IsTransient(err) && !errors.Is(err, context.Canceled):
			session.log.WithError(err).Warn("Status poll failed, retrying on next tick")
		default:
			session.fail(toAPIError(err), requestID)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
