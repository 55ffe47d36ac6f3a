package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// Headers carrying the already-authenticated caller
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const actorKey = "actor"

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Missing   []string    `json:"missing,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// actorMiddleware reads the caller from the trusted headers. Reads are
// anonymous; anything that changes state needs a user id.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := service.Actor{
			ID:   c.GetHeader(HeaderUserID),
			Role: c.GetHeader(HeaderUserRole),
		}
		if actor.ID == "" && c.Request.Method != http.MethodGet {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing " + HeaderUserID + " header",
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(service.Actor); ok {
			return a
		}
	}
	return service.Actor{}
}

// errorStatus maps a domain error to its status and kind
func errorStatus(err error) (status int, kind string, retryable bool) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound, "not_found", false
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest, "validation", false
	case errors.Is(err, entity.ErrLockTimeout):
		return http.StatusConflict, "lock_timeout", true
	case errors.Is(err, entity.ErrConcurrency):
		return http.StatusConflict, "concurrency", true
	case errors.Is(err, entity.ErrPreconditionNotMet):
		return http.StatusUnprocessableEntity, "precondition_not_met", false
	case errors.Is(err, entity.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", false
	case errors.Is(err, entity.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition", false
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict, "conflict", false
	case errors.Is(err, entity.ErrStorage):
		return http.StatusServiceUnavailable, "storage", true
	default:
		return http.StatusInternalServerError, "internal", false
	}
}

// fail writes err as a JSON error response
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status, kind, retryable := errorStatus(err)
	resp := Response{Success: false, Error: err.Error(), Kind: kind, Retryable: retryable}

	var pe *entity.PreconditionError
	if errors.As(err, &pe) {
		resp.Missing = pe.Missing
		if pe.Kind != entity.PreconditionGeneric {
			resp.Kind = string(pe.Kind)
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "path", c.Request.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	} else {
		h.logger.Info("Request rejected", "op", op, "path", c.Request.URL.Path, "kind", resp.Kind, "error", err)
	}
	c.JSON(status, resp)
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Kind: "validation"})
}

// pathID parses a positive integer path parameter, answering 400 otherwise
func pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name+": "+raw)
		return 0, false
	}
	return id, true
}

// bindJSON decodes the body into dst; an empty body leaves dst untouched
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
