// Package services defines the business logic of the directory service:
// users and their friends (the client's favorites), contact search and
// groups with their expenses. This file centralizes the service-level error
// values so that handlers can map them to envelope responses consistently.
package services

import "errors"

// Authentication.
var (
	// ErrUnauthorized is returned when a bearer token does not match any user.
	ErrUnauthorized = errors.New("invalid or missing credential")
)

// Directory errors.
var (
	// ErrUserNotFound indicates that the referenced email is not registered.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidEmail is returned for addresses without a local part and a domain.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrSelfFriend is returned when a user tries to befriend themselves.
	ErrSelfFriend = errors.New("you cannot add yourself")

	// ErrNotFriend is returned when removing someone who is not a friend.
	ErrNotFriend = errors.New("not in your favorites")

	// ErrQueryTooShort is returned for search queries below the minimum length.
	ErrQueryTooShort = errors.New("query too short")

	// ErrTooManyEmails caps the size of a details lookup.
	ErrTooManyEmails = errors.New("too many emails")
)

// Group errors.
var (
	// ErrGroupNotFound indicates that the group does not exist or the caller
	// is not a member.
	ErrGroupNotFound = errors.New("group not found")

	// ErrEmptyGroupName is returned when the normalized name is blank.
	ErrEmptyGroupName = errors.New("group name is required")

	// ErrNoMembers is returned when no member besides the caller was given.
	ErrNoMembers = errors.New("at least one member is required")

	// ErrInvalidGroupSize is returned when the member list exceeds the cap.
	ErrInvalidGroupSize = errors.New("too many members")

	// ErrUnknownMember is returned when a member is not a registered user.
	ErrUnknownMember = errors.New("unknown member")

	// ErrInvalidExpense is returned for non-positive amounts or payers and
	// participants outside the group.
	ErrInvalidExpense = errors.New("invalid expense")
)
