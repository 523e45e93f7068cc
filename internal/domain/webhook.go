package domain

import "strings"

// ResourceType is the kind of resource a webhook listener watches.
type ResourceType string

const (
	ResourcePost    ResourceType = "post"
	ResourceComment ResourceType = "comment"
)

// WebhookListener is a registered callback for a resource/event pair.
type WebhookListener struct {
	ResourceType ResourceType `json:"resourceType"`
	EventType    string       `json:"eventType"`
	URL          string       `json:"url"`
}

// Listeners are stored as a single packed string per entry so the backend
// can treat them as a string set with atomic add/remove. Fields are joined
// with ':' and escaped with '\'.
const (
	packSep    = ':'
	packEscape = '\\'
)

// Pack serializes the listener into its stored string-set form.
func (l WebhookListener) Pack() string {
	parts := []string{string(l.ResourceType), l.EventType, l.URL}
	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteByte(packSep)
		}
		for j := 0; j < len(part); j++ {
			if part[j] == packSep || part[j] == packEscape {
				b.WriteByte(packEscape)
			}
			b.WriteByte(part[j])
		}
	}
	return b.String()
}

// UnpackWebhookListener parses a packed listener string. Malformed entries
// report ok=false and are skipped by callers.
func UnpackWebhookListener(packed string) (WebhookListener, bool) {
	var parts []string
	var b strings.Builder
	for i := 0; i < len(packed); i++ {
		switch packed[i] {
		case packEscape:
			i++
			if i < len(packed) {
				b.WriteByte(packed[i])
			}
		case packSep:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteByte(packed[i])
		}
	}
	parts = append(parts, b.String())
	if len(parts) != 3 {
		return WebhookListener{}, false
	}
	return WebhookListener{
		ResourceType: ResourceType(parts[0]),
		EventType:    parts[1],
		URL:          parts[2],
	}, true
}

func listenerKey(resource ResourceType, event string) string {
	return string(resource) + event
}
