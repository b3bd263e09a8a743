package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
	"github.com/oksasatya/go-ddd-auth/internal/interface/middleware"
	"github.com/oksasatya/go-ddd-auth/pkg/response"
)

// AuditReader is satisfied by elasticsearch.AuditIndex.
type AuditReader interface {
	Recent(ctx context.Context, userID string, size int) ([]event.Event, error)
}

type AuditHandler struct {
	Reader AuditReader
	Logger *logrus.Logger
}

func NewAuditHandler(r AuditReader, logger *logrus.Logger) *AuditHandler {
	return &AuditHandler{Reader: r, Logger: logger}
}

// Recent GET /api/v1/auth/audit?size=N (auth required)
// Lists the caller's latest auth events.
func (h *AuditHandler) Recent(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	uid := c.GetString(middleware.CtxUserIDKey)
	events, err := h.Reader.Recent(c.Request.Context(), uid, size)
	if err != nil {
		h.Logger.WithError(err).WithField("user_id", uid).Warn("audit lookup failed")
		response.ErrorCode[any](c, http.StatusServiceUnavailable, "UNAVAILABLE", "audit log unavailable", nil)
		return
	}
	response.Success(c, http.StatusOK, events, "audit events", nil)
}
