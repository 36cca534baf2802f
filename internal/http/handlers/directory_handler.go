// Directory HTTP handlers.
//
// This file exposes the endpoints behind a user's favorites:
//   - POST /friends/details  (display names for friend emails)
//   - GET  /search           (contact search)
//   - POST /friends/add      (add a favorite)
//   - POST /friends/remove   (remove a favorite)
//   - GET  /me               (current-user profile)
//
// Handlers are transport-thin: they bind input, call application services
// and translate results into the response envelope.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/http/middleware"
	"github.com/tbourn/go-billsplit/internal/services"
	"github.com/tbourn/go-billsplit/internal/utils"
)

//
// Service contracts (context-aware)
//

// DirectoryService defines the user and friendship operations consumed by
// HTTP handlers. Implementations must honor ctx for cancellation.
type DirectoryService interface {
	FriendDetails(ctx context.Context, caller string, emails []string) ([]domain.FavoriteContact, error)
	Search(ctx context.Context, caller, q string, limit int) ([]domain.FavoriteContact, error)
	AddFriend(ctx context.Context, caller, friend string) error
	RemoveFriend(ctx context.Context, caller, friend string) error
	Me(ctx context.Context, caller string) (*domain.UserProfile, error)
}

// GroupService defines group operations consumed by HTTP handlers.
type GroupService interface {
	List(ctx context.Context, caller string) ([]domain.Group, error)
	Get(ctx context.Context, caller, id string) (*domain.Group, error)
	Create(ctx context.Context, caller string, req domain.CreateGroupRequest, key string) (*domain.Group, bool, error)
	Fingerprint(ctx context.Context, caller string) (services.GroupsFingerprint, error)
}

//
// Handler wiring
//

// Handlers groups the directory and group endpoints.
type Handlers struct {
	dir    DirectoryService
	groups GroupService
}

// New constructs a Handlers instance bound to the given services.
func New(dir DirectoryService, groups GroupService) *Handlers {
	return &Handlers{dir: dir, groups: groups}
}

// caller returns the authenticated email set by middleware.BearerAuth.
func caller(c *gin.Context) string { return middleware.UserID(c) }

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

//
// Handlers
//

// FriendDetails godoc
// @ID          friendDetails
// @Summary     Resolve friend emails to contacts
// @Description Returns {mailId, name} for every registered user among the emails, in request order. Unknown emails are skipped.
// @Tags        Friends
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  domain.FriendDetailsRequest  true  "Emails to resolve"
//
// @Success     200  {object}  handlers.Envelope{data=[]domain.FavoriteContact}
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /friends/details [post]
func (h *Handlers) FriendDetails(c *gin.Context) {
	var req domain.FriendDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.dir.FriendDetails(c.Request.Context(), caller(c), req.Emails)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, out)
}

// Search godoc
// @ID          searchContacts
// @Summary     Search contacts
// @Description Users whose email or name contains q (case-insensitive), excluding the caller. Prefix matches first.
// @Tags        Friends
// @Produce     json
// @Security    BearerAuth
//
// @Param       q      query  string  true   "Search text (at least 2 characters)"  example(ann)
// @Param       limit  query  int     false  "Max results"  minimum(1) maximum(50) default(20)
//
// @Success     200  {object}  handlers.Envelope{data=[]domain.FavoriteContact}
// @Failure     400  {object}  handlers.ErrorResponse  "Query too short"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /search [get]
func (h *Handlers) Search(c *gin.Context) {
	limit := utils.PageLimit(c.Query("limit"), defaultSearchLimit, maxSearchLimit)
	out, err := h.dir.Search(c.Request.Context(), caller(c), c.Query("q"), limit)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, out)
}

// AddFriend godoc
// @ID          addFriend
// @Summary     Add a favorite
// @Description Records friendEmail as a friend of the caller. Adding an existing friend succeeds.
// @Tags        Friends
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  domain.FriendRequest  true  "Friend to add"
//
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid email or self"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /friends/add [post]
func (h *Handlers) AddFriend(c *gin.Context) {
	var req domain.FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.dir.AddFriend(c.Request.Context(), caller(c), req.FriendEmail); err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	okMessage(c, http.StatusOK, nil, "Added to favorites.")
}

// RemoveFriend godoc
// @ID          removeFriend
// @Summary     Remove a favorite
// @Tags        Friends
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  domain.FriendRequest  true  "Friend to remove"
//
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid email"
// @Failure     404  {object}  handlers.ErrorResponse  "Not a friend"
// @Router      /friends/remove [post]
func (h *Handlers) RemoveFriend(c *gin.Context) {
	var req domain.FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.dir.RemoveFriend(c.Request.Context(), caller(c), req.FriendEmail); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	okMessage(c, http.StatusOK, nil, "Removed from favorites.")
}

// Me godoc
// @ID          me
// @Summary     Current user profile
// @Description Name, friend emails in the order they were added, and group count.
// @Tags        Friends
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.Envelope{data=domain.UserProfile}
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	p, err := h.dir.Me(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}
