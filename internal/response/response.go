package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain"
)

// Body is the envelope of every JSON API response.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a 200 response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created writes a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// BadRequest writes a 400 response.
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, msg)
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, msg string) {
	Fail(c, http.StatusUnauthorized, msg)
}

// NotFound writes a 404 response.
func NotFound(c *gin.Context, msg string) {
	Fail(c, http.StatusNotFound, msg)
}

// Fail aborts the request with the given status and message.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Error: msg})
}

// Error maps a domain error onto an HTTP status.
func Error(c *gin.Context, err error) {
	var invalid *domain.InvalidStateError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		Fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrOptimisticLock):
		Fail(c, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		Fail(c, http.StatusUnprocessableEntity, err.Error())
	default:
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, "internal server error")
	}
}
