package audit

import (
	"context"
	"time"

	"apexdispatch/internal/logging"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of audit event
type EventType string

const (
	EventJobCreated        EventType = "job_created"
	EventJobDispatchFailed EventType = "job_dispatch_failed"
	EventJobStatusChanged  EventType = "job_status_changed"
	EventTaskCreated       EventType = "task_created"
	EventTaskStatusChanged EventType = "task_status_changed"
	EventSyncJobExecuted   EventType = "sync_job_executed"
)

// Log records an audit event on the request scoped logger.
func Log(ctx context.Context, eventType EventType, userID string, targetID int64, details map[string]interface{}) {
	fields := logrus.Fields{
		"audit":     true,
		"event":     eventType,
		"user_id":   userID,
		"target_id": targetID,
		"at":        time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range details {
		fields[k] = v
	}
	logging.FromContext(ctx).WithFields(fields).Info("audit")
}
