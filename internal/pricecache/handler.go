package pricecache

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/history/:code", h.history)
}

func (h *Handler) health(c *gin.Context) {
	n, err := h.svc.Store.Codes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "codes": n})
}

// history 返回日线数组（日期升序），与 collector.KRStockClient 的约定一致
func (h *Handler) history(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(DefaultDays)))
	if err != nil || days <= 0 {
		days = DefaultDays
	}

	candles, stale, err := h.svc.History(c.Request.Context(), c.Param("code"), days)
	switch {
	case errors.Is(err, ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrNoData):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if stale {
		c.Header("X-Data-Stale", "true")
	}
	c.JSON(http.StatusOK, candles)
}
