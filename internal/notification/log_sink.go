package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// LogSink is the default delivery backend. Push and email transports live
// outside this service; operators tail these entries in the meantime.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("notification.sink")}
}

func (s *LogSink) Notify(ctx context.Context, userID snowflake.ID, userType, title, body, category string) {
	s.log.Info("notification",
		zap.String("user_id", userID.String()),
		zap.String("user_type", userType),
		zap.String("title", title),
		zap.String("body", body),
		zap.String("category", category),
	)
}

var _ Sink = (*LogSink)(nil)
