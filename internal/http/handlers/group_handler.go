// Group HTTP handlers.
//
// Endpoints:
//   - GET  /groups      (list the caller's groups, weak ETag)
//   - POST /groups      (create a group, optional Idempotency-Key)
//   - GET  /groups/:id  (one group the caller belongs to)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/http/middleware"
)

// ListGroups godoc
// @ID          listGroups
// @Summary     List groups
// @Description Groups the caller owns or belongs to, newest first. Supports conditional requests through a weak ETag.
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false  "Weak ETag from a previous response"
//
// @Success     200  {object}  handlers.Envelope{data=[]domain.Group}
// @Success     304  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /groups [get]
func (h *Handlers) ListGroups(c *gin.Context) {
	ctx := c.Request.Context()
	uid := caller(c)

	if fp, err := h.groups.Fingerprint(ctx, uid); err == nil {
		etag := fmt.Sprintf(`W/"groups:%d:%d:%d"`, fp.Count, fp.Expenses, fp.LastUpdated)
		c.Header("ETag", etag)
		if etagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	out, err := h.groups.List(ctx, uid)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, out)
}

// GetGroup godoc
// @ID          getGroup
// @Summary     Get a group
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Group ID (UUID)"
//
// @Success     200  {object}  handlers.Envelope{data=domain.Group}
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Router      /groups/{id} [get]
func (h *Handlers) GetGroup(c *gin.Context) {
	g, err := h.groups.Get(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, g)
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group
// @Description Creates a group with the caller as owner and member, optionally with a first expense.
// @Description Retrying with the same Idempotency-Key returns the original group with 200 and Idempotency-Replayed: true.
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                     false  "Client-generated key for safe retries"
// @Param       body             body    domain.CreateGroupRequest  true   "Group definition"
//
// @Success     201  {object}  handlers.Envelope{data=domain.Group}
// @Success     200  {object}  handlers.Envelope{data=domain.Group}  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /groups [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	var req domain.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		key = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}

	g, replayed, err := h.groups.Create(c.Request.Context(), caller(c), req, key)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	if replayed != middleware.IsReplay(c) && found {
		// The key expired or was written between the lookup and the create.
		middleware.LoggerFrom(c).Debug().Bool("replayed", replayed).Msg("idempotency lookup disagreed with create")
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, g)
		return
	}
	c.Header("Location", c.FullPath()+"/"+g.ID)
	ok(c, http.StatusCreated, g)
}

// etagMatches reports whether an If-None-Match header lists etag or "*".
func etagMatches(header, etag string) bool {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || part == etag {
			return true
		}
	}
	return false
}
