package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-client/internal/middleware"
	"github.com/iliyamo/cinema-seat-client/internal/model"
)

// ReceiptLister reads stored receipts.  *repository.ReceiptRepo
// implements it.
type ReceiptLister interface {
	ListBySubject(ctx context.Context, subject string, limit int) ([]model.Receipt, error)
}

// ReceiptHandler serves the caller's booking receipts.
type ReceiptHandler struct {
	repo ReceiptLister
}

// NewReceiptHandler constructs a ReceiptHandler.
func NewReceiptHandler(repo ReceiptLister) *ReceiptHandler { return &ReceiptHandler{repo: repo} }

// List handles GET /v1/receipts?limit=N, newest first.
func (h *ReceiptHandler) List(c echo.Context) error {
	sess, ok := middleware.Session(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := 20
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	list, err := h.repo.ListBySubject(c.Request().Context(), sess.Subject, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, list)
}
