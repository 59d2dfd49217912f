package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksdme/mailhook/internal/query"
	"github.com/ksdme/mailhook/internal/store"
	"github.com/pkg/errors"
)

type EmailHandler struct {
	service *query.Service
}

func NewEmailHandler(service *query.Service) *EmailHandler {
	return &EmailHandler{service: service}
}

// GET /emails?page=&limit=&search=
func (h *EmailHandler) ListEmails(c *gin.Context) {
	// Unparseable values fall back to the defaults.
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.service.List(c.Request.Context(), page, limit, c.Query("search"))
	if err != nil {
		slog.Error("could not list emails", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list emails"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GET /emails/:id
func (h *EmailHandler) GetEmail(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}

	email, err := h.service.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	} else if err != nil {
		slog.Error("could not get email", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get email"})
		return
	}

	c.JSON(http.StatusOK, email)
}

// DELETE /emails/:id
func (h *EmailHandler) DeleteEmail(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		slog.Error("could not delete email", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func emailID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email id"})
		return 0, false
	}
	return id, true
}
