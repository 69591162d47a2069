package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

// fakeCompletionServer serves OpenAI-compatible chat completion responses
func fakeCompletionServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "test",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": %q},
				"finish_reason": "stop"
			}]
		}`, content)
	}))
}

func newTestClassifier(serverURL string) *Classifier {
	return NewClassifier(config.AIConfig{
		BaseURL: serverURL + "/v1",
		APIKey:  "test-key",
		Model:   "test-model",
	})
}

func classifyTestEmail() *models.Email {
	return &models.Email{
		DocID:     "account1_1",
		AccountID: "account1",
		Subject:   "Re: your proposal",
		FromAddr:  "prospect@example.com",
		Body:      "This looks great, I would love to learn more.",
	}
}

func TestClassifyMapsCategoryAndScore(t *testing.T) {
	server := fakeCompletionServer(t, "Interested:0.9", http.StatusOK)
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	outcome := classifier.Classify(context.Background(), classifyTestEmail())

	if outcome.Category != models.CategoryInterested {
		t.Errorf("category = %q, want %q", outcome.Category, models.CategoryInterested)
	}
	if outcome.Score != 0.9 {
		t.Errorf("score = %v, want 0.9", outcome.Score)
	}
	if outcome.Degraded {
		t.Errorf("unexpected degraded outcome: %s", outcome.Reason)
	}
}

func TestClassifyUnrecognizedLabelDegrades(t *testing.T) {
	server := fakeCompletionServer(t, "blah", http.StatusOK)
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	outcome := classifier.Classify(context.Background(), classifyTestEmail())

	if outcome.Category != models.CategoryUncategorized {
		t.Errorf("category = %q, want %q", outcome.Category, models.CategoryUncategorized)
	}
	if outcome.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", outcome.Score)
	}
	if !outcome.Degraded {
		t.Error("expected degraded outcome for unrecognized label")
	}
}

func TestClassifyUpstreamFailureDegrades(t *testing.T) {
	server := fakeCompletionServer(t, "", http.StatusInternalServerError)
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	outcome := classifier.Classify(context.Background(), classifyTestEmail())

	if outcome.Category != models.CategoryUncategorized {
		t.Errorf("category = %q, want %q", outcome.Category, models.CategoryUncategorized)
	}
	if outcome.Score != 0 {
		t.Errorf("score = %v, want 0", outcome.Score)
	}
	if !outcome.Degraded {
		t.Error("expected degraded outcome for upstream failure")
	}
}

func TestClassifyNotConfigured(t *testing.T) {
	classifier := NewClassifier(config.AIConfig{})
	if classifier.IsConfigured() {
		t.Fatal("expected unconfigured classifier")
	}

	outcome := classifier.Classify(context.Background(), classifyTestEmail())
	if outcome.Category != models.CategoryUncategorized || outcome.Score != 0 || !outcome.Degraded {
		t.Errorf("outcome = %+v, want Uncategorized/0/degraded", outcome)
	}
}

func TestParseCategoryResponse(t *testing.T) {
	tests := []struct {
		response string
		category models.EmailCategory
		score    float64
		matched  bool
	}{
		{"Interested:0.9", models.CategoryInterested, 0.9, true},
		{"Not Interested:0.8", models.CategoryNotInterested, 0.8, true},
		{"MEETING BOOKED: 0.7", models.CategoryMeetingBooked, 0.7, true},
		{"Out of Office:0.95", models.CategoryOutOfOffice, 0.95, true},
		{"spam:0.99", models.CategorySpam, 0.99, true},
		{"Interested", models.CategoryInterested, 0.5, true},
		{"Interested:abc", models.CategoryInterested, 0.5, true},
		{"Interested:1.7", models.CategoryInterested, 1, true},
		{"Interested:-0.2", models.CategoryInterested, 0, true},
		{"blah:0.3", models.CategoryUncategorized, 0.3, false},
		{"", models.CategoryUncategorized, 0.5, false},
	}

	for _, tt := range tests {
		category, score, matched := parseCategoryResponse(tt.response)
		if category != tt.category || score != tt.score || matched != tt.matched {
			t.Errorf("parseCategoryResponse(%q) = %q/%v/%v, want %q/%v/%v",
				tt.response, category, score, matched, tt.category, tt.score, tt.matched)
		}
	}
}
