package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) UserReachable(context.Context, string) (bool, error) {
	return true, nil
}

func (n *LogNotifier) Send(_ context.Context, phone, message string) error {
	n.logger.Info("notification", zap.String("phone", maskPhone(phone)), zap.String("message", message))
	return nil
}
