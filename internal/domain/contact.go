package domain

import (
	"strings"
	"time"
)

// FavoriteContact is the lightweight contact record cached on the client.
// MailID is unique within a favorites collection.
type FavoriteContact struct {
	MailID string `json:"mailId"`
	Name   string `json:"name"`
}

// UserProfile is the payload of GET /me and the blob cached under the
// current-user-profile key.
type UserProfile struct {
	MailID     string   `json:"mailId"`
	Name       string   `json:"name"`
	Friends    []string `json:"friends"`
	GroupCount int64    `json:"groupCount"`
}

// KVEntry is one row of the local persistent key/value store. Value holds a
// serialized JSON document.
type KVEntry struct {
	Key       string    `gorm:"type:varchar(128);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for KVEntry.
func (KVEntry) TableName() string { return "kv_entries" }

// LocalPart returns the part of id before its first '@', or id itself when it
// has no '@'.
func LocalPart(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}

// FallbackContact builds a contact whose name is derived from the identifier.
// It is used when the directory cannot supply display names.
func FallbackContact(mailID string) FavoriteContact {
	return FavoriteContact{MailID: mailID, Name: LocalPart(mailID)}
}

// DedupeFavorites returns list without repeated MailIDs, keeping the first
// occurrence and the original order. The input is not modified.
func DedupeFavorites(list []FavoriteContact) []FavoriteContact {
	out := make([]FavoriteContact, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		if _, dup := seen[c.MailID]; dup {
			continue
		}
		seen[c.MailID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// IndexOfFavorite returns the position of mailID in list, or -1.
func IndexOfFavorite(list []FavoriteContact, mailID string) int {
	for i, c := range list {
		if c.MailID == mailID {
			return i
		}
	}
	return -1
}

// MailIDs returns the identifiers of list in order.
func MailIDs(list []FavoriteContact) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.MailID
	}
	return out
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
