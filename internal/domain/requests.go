package domain

import "github.com/shopspring/decimal"

// Wire bodies shared by the directory service and its client.

// FriendDetailsRequest is the body of POST /friends/details.
type FriendDetailsRequest struct {
	Emails []string `json:"emails"`
}

// FriendRequest is the body of POST /friends/add and POST /friends/remove.
type FriendRequest struct {
	FriendEmail string `json:"friendEmail"`
}

// ExpenseInput describes the optional first expense of a new group.
// SplitAmong empty means every member shares the expense.
type ExpenseInput struct {
	Description string          `json:"description"`
	PaidBy      string          `json:"paidBy"`
	Amount      decimal.Decimal `json:"amount"`
	SplitAmong  []string        `json:"splitAmong,omitempty"`
}

// CreateGroupRequest is the body of POST /groups.
type CreateGroupRequest struct {
	Name    string        `json:"name"`
	Members []string      `json:"members"`
	Expense *ExpenseInput `json:"expense,omitempty"`
}
