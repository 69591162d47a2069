package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

const (
	// pipelineConcurrency bounds cross-message parallelism; messages within
	// and across accounts run their pipelines concurrently up to this limit
	pipelineConcurrency = 8
	// eventBufferSize sizes the ingestion event stream; a slow consumer loses
	// events rather than stalling the pipeline
	eventBufferSize = 256
)

// IngestEvent is the observable completion signal emitted once per ingestion
// attempt of a normalized-and-classified email
type IngestEvent struct {
	DocID     string               `json:"id"`
	AccountID string               `json:"account_id"`
	Subject   string               `json:"subject"`
	Category  models.EmailCategory `json:"category"`
	Score     float64              `json:"score"`
	Indexed   bool                 `json:"indexed"`
	Duplicate bool                 `json:"duplicate"`
	Degraded  bool                 `json:"degraded"`
	Reason    string               `json:"reason,omitempty"`
	At        time.Time            `json:"at"`
}

// Pipeline wires normalize → classify → index → notify into one ordered
// per-message flow. Stages run in strict order for a given message; different
// messages run fully concurrently. All collaborators are injected.
type Pipeline struct {
	classifier *Classifier
	indexer    *IndexService
	notifier   *Notifier
	logs       *LogService

	events chan IngestEvent
	sem    chan struct{}
}

// NewPipeline creates a new Pipeline instance
func NewPipeline(classifier *Classifier, indexer *IndexService, notifier *Notifier, logs *LogService) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		indexer:    indexer,
		notifier:   notifier,
		logs:       logs,
		events:     make(chan IngestEvent, eventBufferSize),
		sem:        make(chan struct{}, pipelineConcurrency),
	}
}

// Events returns the ingestion event stream
func (p *Pipeline) Events() <-chan IngestEvent {
	return p.events
}

// ProcessBatch runs every message through the pipeline with bounded
// concurrency and returns once each one has been attempted
func (p *Pipeline) ProcessBatch(ctx context.Context, account config.Account, msgs []RawMessage) {
	var wg sync.WaitGroup
	for _, msg := range msgs {
		wg.Add(1)
		p.sem <- struct{}{}
		go func(msg RawMessage) {
			defer wg.Done()
			defer func() { <-p.sem }()
			p.Process(ctx, account, msg)
		}(msg)
	}
	wg.Wait()
}

// Process runs one message through normalize → classify → index → notify.
// Indexing failures drop the message for this attempt only: a later backfill
// or listener fetch re-offers it and dedup accepts it if nothing committed.
func (p *Pipeline) Process(ctx context.Context, account config.Account, msg RawMessage) IngestEvent {
	norm := Normalize(account, msg)
	email := norm.Email

	event := IngestEvent{
		DocID:     email.DocID,
		AccountID: email.AccountID,
		Subject:   email.Subject,
		Degraded:  norm.Degraded,
		Reason:    norm.Reason,
		At:        time.Now(),
	}

	if norm.Degraded {
		p.logs.LogWarn(account.ID, models.LogModulePipeline, "normalize", "Degraded normalization", map[string]interface{}{
			"doc_id": email.DocID,
			"uid":    msg.UID,
			"reason": norm.Reason,
		})
	}

	// 已入库的邮件不再送分类，避免重复消耗分类调用
	if p.indexer.SeenMessage(email.AccountID, email.MessageID) {
		event.Duplicate = true
		p.logs.LogDebug(account.ID, models.LogModulePipeline, "dedup", "Skipped already indexed message", map[string]interface{}{
			"doc_id":     email.DocID,
			"message_id": email.MessageID,
		})
		p.emit(event)
		return event
	}

	outcome := p.classifier.Classify(ctx, email)
	email.Category = outcome.Category
	email.AIScore = outcome.Score
	event.Category = outcome.Category
	event.Score = outcome.Score
	if outcome.Degraded {
		event.Degraded = true
		if event.Reason == "" {
			event.Reason = outcome.Reason
		}
		p.logs.LogWarn(account.ID, models.LogModuleClassify, "classify", "Degraded classification", map[string]interface{}{
			"doc_id": email.DocID,
			"reason": outcome.Reason,
		})
	}

	created, err := p.indexer.Upsert(email)
	if err != nil {
		p.logs.LogError(account.ID, models.LogModuleIndex, "upsert", "Failed to index email", map[string]interface{}{
			"doc_id": email.DocID,
			"error":  err.Error(),
		})
		p.emit(event)
		return event
	}
	event.Indexed = created
	event.Duplicate = !created

	if created {
		log.Printf("[Pipeline] indexed %s (%s) as %s", email.DocID, email.Subject, email.Category)
		if email.Category == models.CategoryInterested {
			// 仅对 Interested 触发通知，单次尝试，不影响流水线结果
			p.notifier.Notify(ctx, email)
		}
	}

	p.emit(event)
	return event
}

// emit publishes an event without ever blocking the pipeline
func (p *Pipeline) emit(event IngestEvent) {
	select {
	case p.events <- event:
	default:
	}
}
