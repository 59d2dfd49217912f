// Package store persists received emails.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ksdme/mailhook/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var (
	ErrNotFound = errors.New("email not found")
)

// The character used to escape LIKE wildcards in search terms. It needs
// no escaping itself in either sqlite or mysql string literals.
const likeEscape = "!"

// Opens a database with the dialect matching the driver.
func Open(driver string, uri string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, uri)
	if err != nil {
		return nil, errors.Wrap(err, "opening db failed")
	}

	switch driver {
	case "sqlite3":
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case "mysql":
		return bun.NewDB(sqldb, mysqldialect.New()), nil
	default:
		sqldb.Close()
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}
}

// Store reads and writes email records.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func New(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Creates the emails table and its ordering index if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*models.Email)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "could not create emails table")
	}

	index := s.db.NewCreateIndex().
		Model((*models.Email)(nil)).
		Index("emails_received_at_idx").
		Column("received_at")

	// MySQL has no IF NOT EXISTS for indexes, it reports a duplicate
	// key name instead.
	if s.db.Dialect().Name() != dialect.MySQL {
		index = index.IfNotExists()
	}
	if _, err := index.Exec(ctx); err != nil && !isDuplicateIndexErr(err) {
		return errors.Wrap(err, "could not create received_at index")
	}

	return nil
}

// Inserts the email. The generated id and the receipt time are written
// back into the record.
func (s *Store) Insert(ctx context.Context, email *models.Email) error {
	email.ID = 0
	email.ReceivedAt = s.now().UTC()

	if _, err := s.db.NewInsert().Model(email).Exec(ctx); err != nil {
		if isConstraintErr(err) {
			return errors.Wrap(err, "email violates a table constraint")
		}
		return errors.Wrap(err, "could not insert email")
	}

	slog.Debug("inserted email", "id", email.ID)
	return nil
}

// Returns the email with the id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*models.Email, error) {
	email := &models.Email{}
	if err := s.db.NewSelect().Model(email).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "could not query email")
	}

	return email, nil
}

// Deletes the email with the id. Deleting an id that does not exist
// is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.NewDelete().
		Model((*models.Email)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "could not delete email")
	}

	rows, _ := result.RowsAffected()
	slog.Debug("deleted email", "id", id, "rows", rows)
	return nil
}

type ListOptions struct {
	Offset int
	Limit  int

	// Case insensitive substring matched against the subject or sender.
	Search string
}

// Lists a page of emails, most recently received first, along with the
// total number of emails matching the search.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.Email, int, error) {
	emails := []models.Email{}

	query := s.db.NewSelect().
		Model(&emails).
		Column("id", "recipient", "sender", "subject", "received_at")

	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := "%" + escapeLike(s.fold(search)) + "%"
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(subject) LIKE ? ESCAPE '"+likeEscape+"'", pattern).
				WhereOr("LOWER(sender) LIKE ? ESCAPE '"+likeEscape+"'", pattern)
		})
	}

	total, err := query.
		OrderExpr("received_at DESC, id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not list emails")
	}

	return emails, total, nil
}

// Lowercases the search term the way LOWER() does on the database. The
// sqlite builtin only folds ASCII letters, so non ASCII letters in the
// term are left alone to still match the stored text as is.
func (s *Store) fold(search string) string {
	if s.db.Dialect().Name() != dialect.SQLite {
		return strings.ToLower(search)
	}
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, search)
}

func escapeLike(value string) string {
	return strings.NewReplacer(
		likeEscape, likeEscape+likeEscape,
		"%", likeEscape+"%",
		"_", likeEscape+"_",
	).Replace(value)
}
