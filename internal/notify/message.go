package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/votestream"
)

// Message is one push notification.
type Message struct {
	Title    string
	Body     string
	Tags     string // appended to the configured tags
	Priority string // empty uses the configured priority
}

// VoteMessage describes a vote. Test votes are marked as such.
func VoteMessage(v votestream.Vote, test bool) Message {
	title := fmt.Sprintf("New vote for %s", v.EntityID)
	tags := "tada"
	if test {
		title = fmt.Sprintf("Test vote for %s", v.EntityID)
		tags = "test_tube"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("User: %s\n", v.UserID))
	if v.IsWeekend {
		sb.WriteString("Weekend: counts double\n")
	}
	if v.Query != "" {
		sb.WriteString(fmt.Sprintf("Query: %s\n", v.Query))
	}
	if v.HasMarker() {
		sb.WriteString(fmt.Sprintf("At: %s", time.UnixMilli(v.Timestamp).UTC().Format(time.RFC3339)))
	}

	return Message{Title: title, Body: strings.TrimSuffix(sb.String(), "\n"), Tags: tags}
}

// ReminderMessage describes a vote reminder.
func ReminderMessage(r votestream.Reminder) Message {
	body := fmt.Sprintf("User: %s", r.UserID)
	if r.EntityID != "" {
		body += fmt.Sprintf("\nEntity: %s", r.EntityID)
	}
	return Message{Title: "Vote reminder", Body: body, Tags: "alarm_clock"}
}

// DisconnectMessage describes a gateway closure that will not be retried.
func DisconnectMessage(d votestream.Disconnect) Message {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Code: %d\n", d.Code))
	if d.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", d.Reason))
	}
	sb.WriteString(fmt.Sprintf("Attempts: %d", d.Attempt))

	return Message{Title: "Vote stream disconnected", Body: sb.String(), Tags: "x", Priority: "high"}
}
