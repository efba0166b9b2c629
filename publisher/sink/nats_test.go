package sink

import (
	"testing"

	"github.com/maxpert/statusbridge/cfg"
	"github.com/maxpert/statusbridge/publisher"
)

func TestSanitizeStreamName(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"replication.status", "replication_status"},
		{"status", "status"},
		{"a.b.*", "a_b__"},
		{"a.>", "a__"},
		{"with space", "with_space"},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			if got := sanitizeStreamName(tt.subject); got != tt.want {
				t.Errorf("sanitizeStreamName(%q) = %q, want %q", tt.subject, got, tt.want)
			}
		})
	}
}

func TestNatsFactory_RequiresURL(t *testing.T) {
	_, err := publisher.NewRegistry(publisher.RegistryConfig{
		Source: nopSource{},
		SinkConfigs: []cfg.SinkConfiguration{
			{Name: "events", Type: "nats", Format: "json"},
		},
	})
	if err == nil {
		t.Fatal("expected error for nats sink without url")
	}
}
