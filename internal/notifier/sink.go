package notifier

import (
	"context"
	"fmt"
	"strings"

	"postpilot/pkg/logx"
)

// Sink delivers one formatted notification to a user-facing channel.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Format renders the user-visible text for a notification.
func Format(n Notification) string {
	platforms := strings.Join(n.Platforms, ", ")
	switch n.Kind {
	case KindPublished:
		return fmt.Sprintf("✅ Post published to %s: %s", platforms, n.Excerpt)
	case KindScheduled:
		return fmt.Sprintf("🕐 Post scheduled for %s on %s: %s", n.Detail, platforms, n.Excerpt)
	case KindFailed:
		return fmt.Sprintf("❌ Post failed (%s): %s", n.Detail, n.Excerpt)
	default:
		return fmt.Sprintf("%s: %s", n.Kind, n.Excerpt)
	}
}

// LogSink writes notifications to the structured log. Always available, so
// lifecycle events are visible even with no push channel configured.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Send(ctx context.Context, n Notification) error {
	_ = ctx
	fields := []logx.Field{
		logx.String("kind", string(n.Kind)),
		logx.String("post_id", n.PostID),
		logx.Strs("platforms", n.Platforms),
	}
	if n.Detail != "" {
		fields = append(fields, logx.String("detail", n.Detail))
	}
	if n.Kind == KindFailed {
		s.Log.Warn(Format(n), fields...)
	} else {
		s.Log.Info(Format(n), fields...)
	}
	return nil
}
