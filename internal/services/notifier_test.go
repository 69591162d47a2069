package services

import "testing"

func TestNotifierConfigured(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	logs := NewLogService(db)

	cases := []struct {
		name    string
		slack   string
		webhook string
		want    bool
	}{
		{"none", "", "", false},
		{"slack only", "https://hooks.slack.example.com/x", "", true},
		{"webhook only", "", "https://webhook.example.com/x", true},
		{"both", "https://hooks.slack.example.com/x", "https://webhook.example.com/x", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNotifier(tc.slack, tc.webhook, logs)
			if got := n.Configured(); got != tc.want {
				t.Errorf("Configured() = %v, want %v", got, tc.want)
			}
		})
	}
}
