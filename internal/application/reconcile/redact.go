package reconcile

import (
	"encoding/json"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
)

// RedactActions returns a copy of actions where stored notifications are replaced
// by their tracking form. Unparseable notifications are dropped entirely.
func RedactActions(actions []payment.UpdateAction) []payment.UpdateAction {
	redacted := make([]payment.UpdateAction, 0, len(actions))
	for _, a := range actions {
		interaction, ok := a.(payment.AddInterfaceInteraction)
		if !ok {
			redacted = append(redacted, a)
			continue
		}
		interaction.Fields.Notification = redactNotification(interaction.Fields.Notification)
		redacted = append(redacted, interaction)
	}
	return redacted
}

func redactNotification(serialized string) string {
	n, err := notification.Parse([]byte(serialized))
	if err != nil {
		return ""
	}
	s, err := n.ForTracking().Serialize()
	if err != nil {
		return ""
	}
	return s
}

// describeActions renders redacted actions for logs and error reports.
func describeActions(actions []payment.UpdateAction) string {
	body, err := json.Marshal(RedactActions(actions))
	if err != nil {
		return "[]"
	}
	return string(body)
}
