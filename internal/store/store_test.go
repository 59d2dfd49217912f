package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ksdme/mailhook/internal/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var epoch = time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)

// Returns a migrated store over a private in-memory database, with a
// clock that advances a second on every insert.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := New(db)
	tick := 0
	s.now = func() time.Time {
		tick++
		return epoch.Add(time.Duration(tick) * time.Second)
	}

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("could not migrate: %v", err)
	}
	return s
}

func insert(t *testing.T, s *Store, sender, subject string) *models.Email {
	t.Helper()

	email := &models.Email{
		Recipient: "inbox@example.com",
		Sender:    sender,
		Subject:   subject,
		BodyText:  "body of " + subject,
		BodyHTML:  "<p>body of " + subject + "</p>",
		RawEmail:  "Subject: " + subject + "\r\n\r\nbody",
	}
	if err := s.Insert(context.Background(), email); err != nil {
		t.Fatalf("could not insert: %v", err)
	}
	return email
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("postgres", "postgres://localhost"); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestInsertAssignsIDAndReceivedAt(t *testing.T) {
	s := newTestStore(t)

	first := insert(t, s, "alice@example.com", "First")
	second := insert(t, s, "bob@example.com", "Second")

	if first.ID == 0 || second.ID == 0 || first.ID == second.ID {
		t.Fatalf("IDs: got %d and %d, want distinct non zero ids", first.ID, second.ID)
	}
	if !first.ReceivedAt.Equal(epoch.Add(time.Second)) {
		t.Errorf("ReceivedAt: got %v, want %v", first.ReceivedAt, epoch.Add(time.Second))
	}

	got, err := s.Get(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sender != "bob@example.com" || got.Subject != "Second" {
		t.Errorf("Get: got %+v", got)
	}
	if got.RawEmail != second.RawEmail || got.BodyHTML != second.BodyHTML || got.BodyText != second.BodyText {
		t.Errorf("Get: bodies were not stored verbatim, got %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: got %v, want ErrNotFound", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	email := insert(t, s, "alice@example.com", "Doomed")

	if err := s.Delete(context.Background(), email.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(context.Background(), email.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), email.ID); err != nil {
		t.Errorf("second Delete: got %v, want nil", err)
	}
	if err := s.Delete(context.Background(), 999); err != nil {
		t.Errorf("Delete of unknown id: got %v, want nil", err)
	}
}

func TestListOrdersByMostRecent(t *testing.T) {
	s := newTestStore(t)
	for i := 1; i <= 3; i++ {
		insert(t, s, "alice@example.com", fmt.Sprintf("Mail %d", i))
	}

	emails, total, err := s.List(context.Background(), ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(emails) != 3 {
		t.Fatalf("List: got %d emails of %d, want 3 of 3", len(emails), total)
	}
	for i, want := range []string{"Mail 3", "Mail 2", "Mail 1"} {
		if emails[i].Subject != want {
			t.Errorf("emails[%d].Subject: got %q, want %q", i, emails[i].Subject, want)
		}
		if emails[i].RawEmail != "" || emails[i].BodyText != "" || emails[i].BodyHTML != "" {
			t.Errorf("emails[%d]: listing should not load bodies", i)
		}
	}
}

func TestListPages(t *testing.T) {
	s := newTestStore(t)
	for i := 1; i <= 16; i++ {
		insert(t, s, "alice@example.com", fmt.Sprintf("Mail %d", i))
	}

	emails, total, err := s.List(context.Background(), ListOptions{Offset: 15, Limit: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 16 {
		t.Errorf("total: got %d, want 16", total)
	}
	if len(emails) != 1 || emails[0].Subject != "Mail 1" {
		t.Errorf("second page: got %+v, want only Mail 1", emails)
	}

	emails, total, err = s.List(context.Background(), ListOptions{Offset: 45, Limit: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 16 || len(emails) != 0 {
		t.Errorf("page past the end: got %d emails of %d, want 0 of 16", len(emails), total)
	}
}

func TestListSearch(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, "alerts@bank.example", "Your statement")
	insert(t, s, "friend@example.com", "Lunch on Friday?")
	insert(t, s, "news@shop.example", "50% off BANK holiday")
	insert(t, s, "someone@example.com", "Progress at 5_0")

	tests := []struct {
		search string
		want   []string
	}{
		{"bank", []string{"50% off BANK holiday", "Your statement"}},
		{"FRIEND@", []string{"Lunch on Friday?"}},
		{"50%", []string{"50% off BANK holiday"}},
		{"5_0", []string{"Progress at 5_0"}},
		{"nothing matches", nil},
		{"   ", []string{"Progress at 5_0", "50% off BANK holiday", "Lunch on Friday?", "Your statement"}},
	}

	for _, tt := range tests {
		emails, total, err := s.List(context.Background(), ListOptions{Limit: 15, Search: tt.search})
		if err != nil {
			t.Fatalf("List(%q): unexpected error: %v", tt.search, err)
		}
		if total != len(tt.want) || len(emails) != len(tt.want) {
			t.Errorf("List(%q): got %d emails of %d, want %d", tt.search, len(emails), total, len(tt.want))
			continue
		}
		for i := range tt.want {
			if emails[i].Subject != tt.want[i] {
				t.Errorf("List(%q)[%d]: got %q, want %q", tt.search, i, emails[i].Subject, tt.want[i])
			}
		}
	}
}

func TestListSearchNonASCII(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, "elan@example.com", "Élan vital")
	insert(t, s, "strasse@example.com", "STRAßE closed")

	tests := []struct {
		search string
		want   string
	}{
		{"Élan", "Élan vital"},
		{"élan vital", ""},
		{"ÉLAN VITAL", "Élan vital"},
		{"straße", "STRAßE closed"},
	}

	for _, tt := range tests {
		emails, _, err := s.List(context.Background(), ListOptions{Limit: 15, Search: tt.search})
		if err != nil {
			t.Fatalf("List(%q): unexpected error: %v", tt.search, err)
		}
		if tt.want == "" {
			if len(emails) != 0 {
				t.Errorf("List(%q): got %d emails, want none", tt.search, len(emails))
			}
			continue
		}
		if len(emails) != 1 || emails[0].Subject != tt.want {
			t.Errorf("List(%q): got %v, want %q", tt.search, emails, tt.want)
		}
	}
}

func TestInsertFailsOnClosedDatabase(t *testing.T) {
	s := newTestStore(t)
	s.db.Close()

	email := &models.Email{Recipient: "a@example.com", Sender: "b@example.com"}
	if err := s.Insert(context.Background(), email); err == nil {
		t.Fatal("expected an error inserting into a closed database")
	}
	if email.ID != 0 {
		t.Errorf("ID: got %d, want 0 after a failed insert", email.ID)
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	return New(db), mock
}

func TestGetQueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM "emails"`).WillReturnError(sql.ErrConnDone)

	_, err := s.Get(context.Background(), 7)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: got %v, want a query error", err)
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("Get: got %v, want it to wrap sql.ErrConnDone", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetNoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM "emails"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sender"}))

	if _, err := s.Get(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: got %v, want ErrNotFound", err)
	}
}

func TestDeleteNoRowsAffected(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "emails"`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), 7); err != nil {
		t.Errorf("Delete: got %v, want nil", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDeleteExecError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "emails"`).WillReturnError(sql.ErrConnDone)

	if err := s.Delete(context.Background(), 7); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("Delete: got %v, want it to wrap sql.ErrConnDone", err)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"plain": "plain",
		"50%":   "50!%",
		"a_b":   "a!_b",
		"wow!":  "wow!!",
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q): got %q, want %q", in, got, want)
		}
	}
}
