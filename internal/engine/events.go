package engine

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/google/uuid"
)

// LogSink is the default event sink: it writes pull outcomes to the
// structured log. The real messaging layer plugs in behind the same
// interface and is out of scope here.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) StudentPulled(ctx context.Context, studentID, groupID uuid.UUID) {
	logger.Info("Student %s pulled from queue into group %s", studentID, groupID)
}

func (s *LogSink) PullRejected(ctx context.Context, studentID, groupID uuid.UUID, reason domain.Reason) {
	logger.Info("Student %s not pulled into group %s: %s", studentID, groupID, reason)
}

var _ interfaces.EventSink = (*LogSink)(nil)
