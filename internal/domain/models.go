// Package domain defines the models shared by the directory service and the
// client cache: users, friendships, groups with their expenses, the cached
// favorite contact, the current-user profile and the key/value rows backing
// the local cache. Server-side types are mapped with GORM; every type carries
// the camelCase JSON names used on the wire.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a registered member of the directory. The email address doubles as
// the primary key and as the public identifier (mailId) seen by clients.
//
// Fields:
//   - Email: primary key, lower-cased on write.
//   - Name: display name.
//   - Token: opaque bearer credential, unique; never serialized.
type User struct {
	Email     string    `json:"mailId"    gorm:"type:varchar(320);primaryKey"`
	Name      string    `json:"name"      gorm:"type:varchar(255);not null;default:''"`
	Token     string    `json:"-"         gorm:"type:varchar(128);not null;uniqueIndex:ux_users_token"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Friendship is a directed "owner has friend" edge. Favorites of a user are
// the friends of that user.
type Friendship struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerEmail  string    `json:"ownerEmail"  gorm:"type:varchar(320);not null;uniqueIndex:ux_friend_owner_friend,priority:1"`
	FriendEmail string    `json:"friendEmail" gorm:"type:varchar(320);not null;uniqueIndex:ux_friend_owner_friend,priority:2"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"index"`

	Owner  User `json:"-" gorm:"foreignKey:OwnerEmail;references:Email;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Friend User `json:"-" gorm:"foreignKey:FriendEmail;references:Email;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// Group is a set of people sharing expenses.
//
// Membership is stored relationally in GroupMember rows (MemberRows) and
// flattened into Members for the wire format by the repository layer.
type Group struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	OwnerEmail string    `json:"ownerEmail" gorm:"type:varchar(320);not null;index:idx_groups_owner"`
	Name       string    `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Members    []string      `json:"members"  gorm:"-"`
	MemberRows []GroupMember `json:"-"        gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Expenses   []Expense     `json:"expenses" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "groups" }

// GroupMember links a user email to a group.
type GroupMember struct {
	GroupID string `gorm:"type:char(36);primaryKey"`
	Email   string `gorm:"type:varchar(320);primaryKey;index:idx_group_members_email"`
}

// TableName returns the database table name for GroupMember.
func (GroupMember) TableName() string { return "group_members" }

// Expense is a single bill paid by one member and shared among SplitAmong.
// An empty SplitAmong means "every group member".
type Expense struct {
	ID          string          `json:"id"          gorm:"type:char(36);primaryKey"`
	GroupID     string          `json:"groupId"     gorm:"type:char(36);not null;index:idx_expenses_group"`
	Description string          `json:"description" gorm:"type:varchar(255);not null;default:''"`
	PaidBy      string          `json:"paidBy"      gorm:"type:varchar(320);not null"`
	Amount      decimal.Decimal `json:"amount"      gorm:"type:text;not null"`
	SplitAmong  []string        `json:"splitAmong"  gorm:"type:text;serializer:json"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TableName returns the database table name for Expense.
func (Expense) TableName() string { return "expenses" }

// Participants returns who shares the expense: SplitAmong when set, the given
// group members otherwise.
func (e Expense) Participants(members []string) []string {
	if len(e.SplitAmong) > 0 {
		return e.SplitAmong
	}
	return members
}
