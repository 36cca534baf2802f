package repo

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-billsplit/internal/domain"
)

func TestCreateGroup_AndGetGroup(t *testing.T) {
	db := newDirectoryDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a@x.com", "b@x.com")

	g, err := CreateGroup(ctx, db, "a@x.com", "Dinner", []string{"b@x.com", "a@x.com"}, []domain.Expense{
		{Description: "pizza", PaidBy: "a@x.com", Amount: decimal.RequireFromString("42.50")},
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.ID == "" || g.OwnerEmail != "a@x.com" {
		t.Fatalf("unexpected group: %+v", g)
	}
	if !reflect.DeepEqual(g.Members, []string{"a@x.com", "b@x.com"}) {
		t.Fatalf("members should be sorted, got %v", g.Members)
	}
	if len(g.Expenses) != 1 || g.Expenses[0].ID == "" || g.Expenses[0].GroupID != g.ID {
		t.Fatalf("expense ids not assigned: %+v", g.Expenses)
	}

	got, err := GetGroup(ctx, db, g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got.Name != "Dinner" || !reflect.DeepEqual(got.Members, g.Members) {
		t.Fatalf("readback mismatch: %+v", got)
	}
	if len(got.Expenses) != 1 || !got.Expenses[0].Amount.Equal(decimal.RequireFromString("42.5")) {
		t.Fatalf("expense readback mismatch: %+v", got.Expenses)
	}
}

func TestListGroupsForUser_OwnerOrMember_NewestFirst(t *testing.T) {
	db := newDirectoryDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a@x.com", "b@x.com", "c@x.com")

	older, err := CreateGroup(ctx, db, "a@x.com", "Old", []string{"a@x.com", "b@x.com"}, nil)
	if err != nil {
		t.Fatalf("create old: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	newer, err := CreateGroup(ctx, db, "c@x.com", "New", []string{"c@x.com", "b@x.com"}, nil)
	if err != nil {
		t.Fatalf("create new: %v", err)
	}
	if _, err := CreateGroup(ctx, db, "c@x.com", "Private", []string{"c@x.com"}, nil); err != nil {
		t.Fatalf("create private: %v", err)
	}

	got, err := ListGroupsForUser(ctx, db, "B@x.com")
	if err != nil {
		t.Fatalf("ListGroupsForUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Fatalf("expected [new, old], got %+v", got)
	}
	if len(got[0].Members) != 2 {
		t.Fatalf("members not flattened: %+v", got[0])
	}

	n, err := CountGroupsForUser(ctx, db, "c@x.com")
	if err != nil || n != 2 {
		t.Fatalf("CountGroupsForUser(c) = %d, %v; want 2", n, err)
	}

	none, err := ListGroupsForUser(ctx, db, "ghost@x.com")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v err=%v", none, err)
	}
}
