package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB, users ...domain.User) {
	t.Helper()
	if err := repo.UpsertUsers(context.Background(), db, users); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func people() []domain.User {
	return []domain.User{
		{Email: "alice@x.com", Name: "Alice", Token: "tok-alice"},
		{Email: "bob@x.com", Name: "Bob", Token: "tok-bob"},
		{Email: "bobby@y.com", Name: "Roberta", Token: "tok-bobby"},
		{Email: "carol@x.com", Name: "Carol Bobson", Token: "tok-carol"},
	}
}

// ---------- tests ----------

func TestAuthenticate(t *testing.T) {
	db := newSvcDB(t)
	seed(t, db, people()...)
	s := NewDirectoryService(db)
	ctx := context.Background()

	u, err := s.Authenticate(ctx, " tok-bob ")
	if err != nil || u.Email != "bob@x.com" {
		t.Fatalf("expected bob, got %+v err=%v", u, err)
	}
	if _, err := s.Authenticate(ctx, "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := s.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestSeed_NormalizesAndRejectsInvalid(t *testing.T) {
	db := newSvcDB(t)
	s := NewDirectoryService(db)
	ctx := context.Background()

	if err := s.Seed(ctx, []domain.User{{Email: " Dan@X.com ", Name: "Dan", Token: "t1"}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := repo.GetUser(ctx, db, "dan@x.com"); err != nil {
		t.Fatalf("expected normalized user, got %v", err)
	}
	if err := s.Seed(ctx, []domain.User{{Email: "nobody", Token: "t2"}}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestFriendDetails_OrderAndUnknown(t *testing.T) {
	db := newSvcDB(t)
	seed(t, db, people()...)
	s := NewDirectoryService(db)

	got, err := s.FriendDetails(context.Background(), "alice@x.com", []string{"carol@x.com", "ghost@x.com", "BOB@x.com", "carol@x.com"})
	if err != nil {
		t.Fatalf("FriendDetails: %v", err)
	}
	want := []domain.FavoriteContact{{MailID: "carol@x.com", Name: "Carol Bobson"}, {MailID: "bob@x.com", Name: "Bob"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	empty, err := s.FriendDetails(context.Background(), "alice@x.com", nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v err=%v", empty, err)
	}

	s.MaxDetails = 1
	if _, err := s.FriendDetails(context.Background(), "alice@x.com", []string{"a@x.com", "b@x.com"}); !errors.Is(err, ErrTooManyEmails) {
		t.Fatalf("expected ErrTooManyEmails, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	db := newSvcDB(t)
	seed(t, db, people()...)
	s := NewDirectoryService(db)
	ctx := context.Background()

	if _, err := s.Search(ctx, "alice@x.com", " b ", 0); !errors.Is(err, ErrQueryTooShort) {
		t.Fatalf("expected ErrQueryTooShort, got %v", err)
	}

	got, err := s.Search(ctx, "alice@x.com", "BOB", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// prefix matches (bob@, bobby@) before inner ones (carol's name)
	ids := domain.MailIDs(got)
	want := []string{"bob@x.com", "bobby@y.com", "carol@x.com"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}

	// caller excluded
	got, _ = s.Search(ctx, "bob@x.com", "bob", 0)
	for _, c := range got {
		if c.MailID == "bob@x.com" {
			t.Fatalf("caller must be excluded: %v", got)
		}
	}

	// limit
	got, _ = s.Search(ctx, "alice@x.com", "bob", 1)
	if len(got) != 1 || got[0].MailID != "bob@x.com" {
		t.Fatalf("expected single best match, got %v", got)
	}

	// no hits is an empty list
	got, err = s.Search(ctx, "alice@x.com", "zzz", 0)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v err=%v", got, err)
	}
}

func TestAddFriend(t *testing.T) {
	db := newSvcDB(t)
	seed(t, db, people()...)
	s := NewDirectoryService(db)
	ctx := context.Background()

	if err := s.AddFriend(ctx, "alice@x.com", " Bob@X.com "); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	// idempotent
	if err := s.AddFriend(ctx, "alice@x.com", "bob@x.com"); err != nil {
		t.Fatalf("repeat AddFriend: %v", err)
	}
	friends, _ := repo.ListFriendEmails(ctx, db, "alice@x.com")
	if len(friends) != 1 || friends[0] != "bob@x.com" {
		t.Fatalf("expected [bob@x.com], got %v", friends)
	}

	cases := []struct {
		friend string
		want   error
	}{
		{"alice@x.com", ErrSelfFriend},
		{"ALICE@x.com", ErrSelfFriend},
		{"ghost@x.com", ErrUserNotFound},
		{"not-an-email", ErrInvalidEmail},
		{"", ErrInvalidEmail},
	}
	for _, tc := range cases {
		if err := s.AddFriend(ctx, "alice@x.com", tc.friend); !errors.Is(err, tc.want) {
			t.Fatalf("AddFriend(%q): expected %v, got %v", tc.friend, tc.want, err)
		}
	}
}

func TestRemoveFriend(t *testing.T) {
	db := newSvcDB(t)
	seed(t, db, people()...)
	s := NewDirectoryService(db)
	ctx := context.Background()

	_ = s.AddFriend(ctx, "alice@x.com", "bob@x.com")
	if err := s.RemoveFriend(ctx, "alice@x.com", "BOB@x.com"); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	if err := s.RemoveFriend(ctx, "alice@x.com", "bob@x.com"); !errors.Is(err, ErrNotFriend) {
		t.Fatalf("expected ErrNotFriend, got %v", err)
	}
	if err := s.RemoveFriend(ctx, "alice@x.com", "x"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestMe(t *testing.T) {
	db := newSvcDB(t)
	seed(t, db, people()...)
	s := NewDirectoryService(db)
	ctx := context.Background()

	_ = s.AddFriend(ctx, "alice@x.com", "carol@x.com")
	_ = s.AddFriend(ctx, "alice@x.com", "bob@x.com")
	if _, err := repo.CreateGroup(ctx, db, "bob@x.com", "Trip", []string{"bob@x.com", "alice@x.com"}, nil); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	p, err := s.Me(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p.MailID != "alice@x.com" || p.Name != "Alice" || p.GroupCount != 1 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if len(p.Friends) != 2 {
		t.Fatalf("expected 2 friends, got %v", p.Friends)
	}

	if _, err := s.Me(ctx, "ghost@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"a@b.c":     true,
		"a@b":       true,
		"":          false,
		"ab":        false,
		"@b.c":      false,
		"a@":        false,
		"a@@b":      false,
		"a b@c.d":   false,
		"a@b@c.com": false,
	}
	for in, want := range cases {
		if got := ValidEmail(in); got != want {
			t.Fatalf("ValidEmail(%q) = %v; want %v", in, got, want)
		}
	}
}
