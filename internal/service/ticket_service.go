package service

import (
	"context"
	"errors"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/errs"
	"github.com/helpdesk-micro/tracker-service/internal/model"
	"gorm.io/gorm"
)

// ListFilter narrows and pages GET /tickets.
type ListFilter struct {
	Query    string // substring match on subject or body
	Status   string
	Category string
	Page     int
	PerPage  int
}

// UpdateFields carries a PATCH. The *Provided flags distinguish "field absent"
// from "field explicitly null": a null category clears both the category and
// the manual override marker.
type UpdateFields struct {
	Status           *model.TicketStatus
	Category         *string
	CategoryProvided bool
	Note             *string
	NoteProvided     bool
}

type TicketService struct {
	db *gorm.DB
}

func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db}
}

func (s *TicketService) Create(ctx context.Context, t *model.Ticket) error {
	if t.Status == "" {
		t.Status = model.TicketStatusNew
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *TicketService) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) List(ctx context.Context, f ListFilter) ([]model.Ticket, int64, error) {
	if f.PerPage <= 0 {
		f.PerPage = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if f.Query != "" {
		like := "%" + f.Query + "%"
		tx = tx.Where("subject LIKE ? OR body LIKE ?", like, like)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.Ticket
	offset := (f.Page - 1) * f.PerPage
	if err := tx.Order("created_at DESC").Limit(f.PerPage).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update applies a user-initiated partial update. Supplying a category that
// changes the stored value stamps manual_category_at; an explicit null
// category clears both. Subject and body are immutable here.
func (s *TicketService) Update(ctx context.Context, id string, f UpdateFields) (*model.Ticket, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]interface{})
	if f.Status != nil {
		if !model.ValidStatus(string(*f.Status)) {
			return nil, errs.ErrInvalidStatus
		}
		changes["status"] = *f.Status
	}
	if f.CategoryProvided {
		if f.Category == nil {
			changes["category"] = nil
			changes["manual_category_at"] = nil
		} else {
			if !model.ValidCategory(*f.Category) {
				return nil, errs.ErrInvalidCategory
			}
			changes["category"] = *f.Category
			if t.Category == nil || *t.Category != *f.Category {
				changes["manual_category_at"] = time.Now().UTC()
			}
		}
	}
	if f.NoteProvided {
		if f.Note == nil {
			changes["note"] = nil
		} else {
			changes["note"] = *f.Note
		}
	}
	if len(changes) == 0 {
		return t, nil
	}
	if err := s.db.WithContext(ctx).Model(t).Updates(changes).Error; err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// UpdateFieldsByID persists a partial field set in a single row update. Used
// by the classification job; does not touch user-owned fields on its own.
func (s *TicketService) UpdateFieldsByID(ctx context.Context, id string, changes map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

// IDPage returns one page of ticket ids for bulk classification, newest
// created first. onlyMissing keeps tickets lacking an explanation or a
// confidence. The cursor is plain offset paging so no long-lived transaction
// is held between pages.
func (s *TicketService) IDPage(ctx context.Context, onlyMissing bool, offset, limit int) ([]string, error) {
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if onlyMissing {
		tx = tx.Where("explanation IS NULL OR confidence IS NULL")
	}
	var ids []string
	err := tx.Order("created_at DESC").Offset(offset).Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

// Page returns one page of full tickets, newest created first. Used by the
// CSV export to stream without loading the whole table.
func (s *TicketService) Page(ctx context.Context, offset, limit int) ([]model.Ticket, error) {
	var items []model.Ticket
	err := s.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error
	return items, err
}

// Stats groups ticket counts by status and by category. Unclassified tickets
// show up under the empty category key.
func (s *TicketService) Stats(ctx context.Context) (map[string]int64, map[string]int64, error) {
	type row struct {
		Key   *string
		Count int64
	}

	var statusRows []row
	err := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("status AS key, COUNT(*) AS count").Group("status").Scan(&statusRows).Error
	if err != nil {
		return nil, nil, err
	}
	var categoryRows []row
	err = s.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("category AS key, COUNT(*) AS count").Group("category").Scan(&categoryRows).Error
	if err != nil {
		return nil, nil, err
	}

	byStatus := make(map[string]int64, len(statusRows))
	for _, r := range statusRows {
		if r.Key != nil {
			byStatus[*r.Key] = r.Count
		}
	}
	byCategory := make(map[string]int64, len(categoryRows))
	for _, r := range categoryRows {
		key := ""
		if r.Key != nil {
			key = *r.Key
		}
		byCategory[key] = r.Count
	}
	return byStatus, byCategory, nil
}
