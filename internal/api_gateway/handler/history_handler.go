package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mycelium-customer-ledger/internal/api_gateway/service"
)

// HistoryHandler serves the projected ledger history
type HistoryHandler struct {
	historyService service.HistoryService
	logger         *slog.Logger
}

func NewHistoryHandler(logger *slog.Logger, historyService service.HistoryService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
		logger:         logger,
	}
}

// List retrieves paginated change history for a customer, newest first
func (h *HistoryHandler) List(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("customer_id"))

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	events, total, err := h.historyService.GetHistory(c.Request.Context(), customerID, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	items := make([]HistoryEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, mapEventToResponse(event))
	}

	RespondWithPaginatedData(c, http.StatusOK, items, pagination.Page, pagination.PerPage, int(total))
}
