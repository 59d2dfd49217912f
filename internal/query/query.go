// Package query serves paginated reads and deletes of stored emails.
package query

import (
	"context"

	"github.com/ksdme/mailhook/internal/models"
	"github.com/ksdme/mailhook/internal/store"
)

const (
	DefaultPage  = 1
	DefaultLimit = 15
)

type Store interface {
	Get(ctx context.Context, id int64) (*models.Email, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, opts store.ListOptions) ([]models.Email, int, error)
}

type Meta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// A page of email summaries.
type Page struct {
	Data []models.Summary `json:"data"`
	Meta Meta             `json:"meta"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Lists a page of emails. A page or limit below one falls back to the
// default. Pages past the end are empty but still carry the totals.
func (s *Service) List(ctx context.Context, page int, limit int, search string) (*Page, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	emails, total, err := s.store.List(ctx, store.ListOptions{
		Offset: (page - 1) * limit,
		Limit:  limit,
		Search: search,
	})
	if err != nil {
		return nil, err
	}

	data := make([]models.Summary, 0, len(emails))
	for _, email := range emails {
		data = append(data, email.Summary())
	}

	return &Page{
		Data: data,
		Meta: Meta{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages(total, limit),
		},
	}, nil
}

// Returns the email or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*models.Email, error) {
	return s.store.Get(ctx, id)
}

// Deletes the email. Missing ids are not an error.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

func totalPages(total int, limit int) int {
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}
