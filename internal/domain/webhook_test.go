package domain

import "testing"

func TestPackUnpackWebhookListener(t *testing.T) {
	tests := []struct {
		name     string
		listener WebhookListener
	}{
		{"plain", WebhookListener{ResourceType: ResourcePost, EventType: "created", URL: "https://example.com/hook"}},
		{"url with separator", WebhookListener{ResourceType: ResourceComment, EventType: "updated", URL: "https://example.com:8443/hook?a=b:c"}},
		{"escape char in url", WebhookListener{ResourceType: ResourcePost, EventType: "created", URL: `https://example.com/h\ook`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UnpackWebhookListener(tt.listener.Pack())
			if !ok {
				t.Fatal("unpack failed")
			}
			if got != tt.listener {
				t.Fatalf("got %+v, want %+v", got, tt.listener)
			}
		})
	}
}

func TestUnpackMalformedListener(t *testing.T) {
	for _, packed := range []string{"", "post", "post:created", "a:b:c:d"} {
		if _, ok := UnpackWebhookListener(packed); ok {
			t.Errorf("expected unpack to reject %q", packed)
		}
	}
}
