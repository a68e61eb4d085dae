package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ariellien/intervu-backend/internal/repo/history"
)

type HistoryHandler struct {
	Store *history.Store
}

func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{Store: store}
}

func (h *HistoryHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Store.List()})
}

func (h *HistoryHandler) Get(c *gin.Context) {
	rec, ok := h.Store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *HistoryHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Metrics())
}
