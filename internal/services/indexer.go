package services

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

var (
	// ErrEmailNotFound indicates the email was not found in the index
	ErrEmailNotFound = errors.New("email not found")
)

// SearchQuery describes a filtered, paginated search over the index
type SearchQuery struct {
	Query     string
	AccountID string
	Folder    string
	Category  models.EmailCategory
	From      *time.Time
	To        *time.Time
	Page      int
	Size      int
}

// IndexService is the indexing gateway: it deduplicates and upserts canonical
// emails and exposes the read operations consumed by the API layer. The
// upsert is the sole synchronization point of the whole pipeline and is safe
// under concurrent callers.
type IndexService struct {
	db   *gorm.DB
	logs *LogService
}

// NewIndexService creates a new IndexService instance
func NewIndexService(db *gorm.DB, logs *LogService) *IndexService {
	return &IndexService{db: db, logs: logs}
}

// SeenMessage reports whether a message id is already indexed for an account.
// MessageID may collide across accounts, so the check is account-scoped. This
// is only a cheap pre-check to skip reclassification; dedup correctness comes
// from the atomic insert in Upsert.
func (s *IndexService) SeenMessage(accountID, messageID string) bool {
	var count int64
	s.db.Model(&models.Email{}).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		Count(&count)
	return count > 0
}

// Upsert inserts an email unless one with the same derived id or the same
// (account, messageId) pair already exists. Returns true only when the email
// was newly indexed. Relies on ON CONFLICT DO NOTHING over the unique
// indexes, so two concurrent fetches of the same server message cannot race
// a read-check-then-write.
func (s *IndexService) Upsert(email *models.Email) (bool, error) {
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(email)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetByDocID retrieves an email by its derived document id
func (s *IndexService) GetByDocID(docID string) (*models.Email, error) {
	var email models.Email
	if err := s.db.Where("doc_id = ?", docID).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}
	return &email, nil
}

// Search runs a filtered, paginated query, newest first.
// Pagination math: offset = (page-1)*size.
func (s *IndexService) Search(q SearchQuery) ([]models.Email, int64, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.Size
	if size <= 0 {
		size = 20
	}

	tx := s.db.Model(&models.Email{})
	if q.Query != "" {
		pattern := "%" + q.Query + "%"
		tx = tx.Where("subject LIKE ? OR body LIKE ? OR from_addr LIKE ? OR to_addrs LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	if q.AccountID != "" {
		tx = tx.Where("account_id = ?", q.AccountID)
	}
	if q.Folder != "" {
		tx = tx.Where("folder = ?", q.Folder)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.From != nil {
		tx = tx.Where("date >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("date <= ?", *q.To)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var emails []models.Email
	err := tx.Order("date DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&emails).Error
	return emails, total, err
}

// Recent returns the most recent emails across all accounts
func (s *IndexService) Recent(limit int) ([]models.Email, error) {
	if limit <= 0 {
		limit = 10
	}
	var emails []models.Email
	err := s.db.Order("date DESC").Limit(limit).Find(&emails).Error
	return emails, err
}

// ByCategory returns emails of one category, newest first
func (s *IndexService) ByCategory(category models.EmailCategory, limit int) ([]models.Email, error) {
	if limit <= 0 {
		limit = 50
	}
	var emails []models.Email
	err := s.db.Where("category = ?", category).
		Order("date DESC").
		Limit(limit).
		Find(&emails).Error
	return emails, err
}

// CategoryStats returns the document count per category
func (s *IndexService) CategoryStats() (map[string]int64, error) {
	var rows []struct {
		Category string
		Count    int64
	}
	err := s.db.Model(&models.Email{}).
		Select("category, count(*) as count").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		if row.Category == "" {
			continue
		}
		stats[row.Category] = row.Count
	}
	return stats, nil
}

// UpdateCategory corrects a previously indexed document's classification
// without re-running the pipeline
func (s *IndexService) UpdateCategory(docID string, category models.EmailCategory, score float64) error {
	res := s.db.Model(&models.Email{}).
		Where("doc_id = ?", docID).
		Updates(map[string]interface{}{
			"category": category,
			"ai_score": score,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEmailNotFound
	}
	return nil
}
