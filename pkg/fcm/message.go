package fcm

import (
	"firebase.google.com/go/v4/messaging"
)

// Target addresses one transport call: exactly one of Token or Topic is set.
type Target struct {
	Token string
	Topic string
}

// Notification is the logical payload handed to a message builder.
type Notification struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// Defaults carries the configured values injected when the caller did not
// override them.
type Defaults struct {
	ChannelID string
	Sound     string
}

// BuildV1Message builds the structured v1 envelope. The messaging structs
// marshal to the exact `message` JSON shape the v1 endpoint expects.
func BuildV1Message(target Target, n Notification, d Defaults) *messaging.Message {
	msg := &messaging.Message{
		Token: target.Token,
		Topic: target.Topic,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     d.Sound,
				ChannelID: d.ChannelID,
			},
		},
	}
	if n.Title != "" || n.Body != "" {
		msg.Notification = &messaging.Notification{
			Title:    n.Title,
			Body:     n.Body,
			ImageURL: n.ImageURL,
		}
	}
	if len(n.Data) > 0 {
		// v1 requires string values; Notification.Data already is.
		msg.Data = n.Data
	}
	return msg
}

// legacyNotification is the flat notification block of the legacy API.
type legacyNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
	Sound string `json:"sound,omitempty"`
	Badge int    `json:"badge,omitempty"`
}

// LegacyMessage is the flat key-value envelope of the legacy API.
type LegacyMessage struct {
	To           string              `json:"to"`
	Priority     string              `json:"priority,omitempty"`
	Notification *legacyNotification `json:"notification,omitempty"`
	Data         map[string]string   `json:"data,omitempty"`
}

// BuildLegacyMessage builds the flat legacy envelope. Topic targets are
// addressed through the /topics/ prefix.
func BuildLegacyMessage(target Target, n Notification, d Defaults) *LegacyMessage {
	to := target.Token
	if target.Topic != "" {
		to = "/topics/" + target.Topic
	}
	msg := &LegacyMessage{
		To:       to,
		Priority: "high",
	}
	if n.Title != "" || n.Body != "" {
		msg.Notification = &legacyNotification{
			Title: n.Title,
			Body:  n.Body,
			Image: n.ImageURL,
			Sound: d.Sound,
			Badge: 1,
		}
	}
	if len(n.Data) > 0 {
		msg.Data = n.Data
	}
	return msg
}
