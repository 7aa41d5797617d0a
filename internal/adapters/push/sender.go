// Package push delivers alert notifications to users. The log sender
// stands in for a provider integration; an APNs or FCM client slots in
// behind the same port.
package push

import (
	"context"
	"log/slog"
)

type LogSender struct{}

func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) SendPush(ctx context.Context, userID, title, body string) error {
	slog.Info("push notification", "user", userID, "title", title, "body", body)
	return nil
}
