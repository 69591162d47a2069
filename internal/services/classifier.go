package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

var (
	// ErrClassifierNotConfigured indicates no API key was provided
	ErrClassifierNotConfigured = errors.New("classifier not configured")
	// ErrInvalidClassifierResponse indicates an empty or malformed API response
	ErrInvalidClassifierResponse = errors.New("invalid classifier response")
)

// categorizerPrompt instructs the model to answer with "CATEGORY:SCORE"
const categorizerPrompt = `You are an AI email categorizer. Categorize emails into exactly one of these categories:
- Interested: Shows interest in a product, service, or opportunity
- Meeting Booked: Confirms or schedules a meeting
- Not Interested: Explicitly declines or shows no interest
- Spam: Promotional, unsolicited, or spam emails
- Out of Office: Automated out-of-office replies
Respond with only the category name and a confidence score (0-1) in this format: "CATEGORY:SCORE"`

const classifyBodyLimit = 2000

// ClassifyOutcome is the result of one classification attempt. Degraded marks
// the explicit degrade-on-failure path (upstream error, breaker open, or an
// unrecognized label) instead of silently swallowing it.
type ClassifyOutcome struct {
	Category models.EmailCategory
	Score    float64
	Degraded bool
	Reason   string
}

// Classifier assigns a category and confidence score to emails by calling an
// OpenAI-compatible chat completion endpoint. The upstream is treated as
// unreliable: every failure degrades to Uncategorized and the call is wrapped
// in a circuit breaker. Classify is idempotent and keeps no memo; callers are
// responsible for not re-invoking it on already-classified emails.
type Classifier struct {
	client     *openai.Client
	model      string
	breaker    *gobreaker.CircuitBreaker
	configured bool
}

// NewClassifier creates a Classifier from the AI configuration. An empty API
// key yields an unconfigured classifier whose Classify always degrades.
func NewClassifier(cfg config.AIConfig) *Classifier {
	c := &Classifier{
		model:      cfg.Model,
		configured: cfg.APIKey != "",
	}

	if c.configured {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		clientConfig.HTTPClient = &http.Client{Timeout: 30 * time.Second}
		c.client = openai.NewClientWithConfig(clientConfig)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "categorizer",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return c
}

// IsConfigured returns whether the classifier has an API key
func (c *Classifier) IsConfigured() bool {
	return c.configured
}

// Classify categorizes one email. Never returns an error: any failure
// degrades to Uncategorized with score 0 so the pipeline keeps indexing.
func (c *Classifier) Classify(ctx context.Context, email *models.Email) ClassifyOutcome {
	if !c.configured {
		return ClassifyOutcome{
			Category: models.CategoryUncategorized,
			Score:    0,
			Degraded: true,
			Reason:   ErrClassifierNotConfigured.Error(),
		}
	}

	body := email.Body
	if len(body) > classifyBodyLimit {
		body = body[:classifyBodyLimit]
	}
	content := fmt.Sprintf("Subject: %s\nFrom: %s\nBody: %s", email.Subject, email.FromAddr, body)

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: categorizerPrompt},
				{Role: openai.ChatMessageRoleUser, Content: content},
			},
			MaxTokens:   20,
			Temperature: 0.3,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, ErrInvalidClassifierResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		// 调用失败（网络错误、非 2xx、熔断器打开）一律降级，分数为 0
		return ClassifyOutcome{
			Category: models.CategoryUncategorized,
			Score:    0,
			Degraded: true,
			Reason:   err.Error(),
		}
	}

	category, score, matched := parseCategoryResponse(raw.(string))
	outcome := ClassifyOutcome{Category: category, Score: score}
	if !matched {
		outcome.Degraded = true
		outcome.Reason = "unrecognized category label"
	}
	return outcome
}

// parseCategoryResponse parses a "CATEGORY:SCORE" response. The label is
// matched case-insensitively by substring containment so variant phrasing
// still maps; an unparseable score defaults to 0.5.
func parseCategoryResponse(response string) (models.EmailCategory, float64, bool) {
	label, scorePart, _ := strings.Cut(strings.TrimSpace(response), ":")
	category, matched := categoryFromLabel(label)

	score := 0.5
	if f, err := strconv.ParseFloat(strings.TrimSpace(scorePart), 64); err == nil {
		switch {
		case f < 0:
			score = 0
		case f > 1:
			score = 1
		default:
			score = f
		}
	}
	return category, score, matched
}

// categoryFromLabel maps a free-text label onto the closed category set.
// "not interested" must be checked before "interested".
func categoryFromLabel(label string) (models.EmailCategory, bool) {
	normalized := strings.ToLower(label)
	switch {
	case strings.Contains(normalized, "not interested"):
		return models.CategoryNotInterested, true
	case strings.Contains(normalized, "out of office"):
		return models.CategoryOutOfOffice, true
	case strings.Contains(normalized, "meeting"):
		return models.CategoryMeetingBooked, true
	case strings.Contains(normalized, "spam"):
		return models.CategorySpam, true
	case strings.Contains(normalized, "interested"):
		return models.CategoryInterested, true
	default:
		return models.CategoryUncategorized, false
	}
}
