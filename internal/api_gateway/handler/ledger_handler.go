package handler

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	engine "github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

// LedgerHandler handles HTTP requests for the ledger commands
type LedgerHandler struct {
	ledgerService engine.LedgerService
	logger        *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(logger *slog.Logger, ledgerService engine.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// GetLedger returns the customer's entries most recent first, optionally inside a date window
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("customer_id"))

	var query LedgerQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	filter, err := parseListFilter(query)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	entries, err := h.ledgerService.GetLedger(c.Request.Context(), customerID, filter)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, LedgerResponse{
		CustomerID: customerID,
		Entries:    mapEntriesToResponse(entries),
	})
}

// Create posts a manual entry for the customer
func (h *LedgerHandler) Create(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	date, txType, err := parseDateAndType(req.TransactionDate, req.TransactionType)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	entry, err := h.ledgerService.CreateEntry(c.Request.Context(), engine.CreateEntryRequest{
		Params: ledger.NewEntryParams{
			CustomerID:      strings.TrimSpace(c.Param("customer_id")),
			TransactionDate: date,
			Type:            txType,
			Amount:          *req.Amount,
			Description:     req.Description,
		},
		Source:        ledger.SourceManual,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, CreatedEntryResponse{
		EntryID:        entry.ID.String(),
		RunningBalance: entry.RunningBalance,
	})
}

// Update replaces the editable fields of a manual entry
func (h *LedgerHandler) Update(c *gin.Context) {
	var req UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	date, txType, err := parseDateAndType(req.TransactionDate, req.TransactionType)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	entry, err := h.ledgerService.UpdateEntry(c.Request.Context(), engine.UpdateEntryRequest{
		EntryID: c.Param("entry_id"),
		Changes: ledger.EntryChanges{
			TransactionDate: &date,
			Type:            &txType,
			Amount:          req.Amount,
			Description:     req.Description,
		},
		Source:        ledger.SourceManual,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEntryToResponse(entry))
}

// Delete removes a manual entry
func (h *LedgerHandler) Delete(c *gin.Context) {
	err := h.ledgerService.DeleteEntry(c.Request.Context(), engine.DeleteEntryRequest{
		EntryID:       c.Param("entry_id"),
		Source:        ledger.SourceManual,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondNoContent(c)
}

func parseDateAndType(rawDate, rawType string) (time.Time, ledger.TransactionType, error) {
	date, err := ledger.ParseDate(rawDate)
	if err != nil {
		return time.Time{}, "", err
	}
	txType, err := ledger.ParseTransactionType(rawType)
	if err != nil {
		return time.Time{}, "", err
	}
	return date, txType, nil
}

func parseListFilter(q LedgerQuery) (ledger.ListFilter, error) {
	var filter ledger.ListFilter
	if q.StartDate != "" {
		start, err := ledger.ParseDate(q.StartDate)
		if err != nil {
			return filter, ledger.ValidationError{Field: "start_date", Reason: "expected YYYY-MM-DD"}
		}
		filter.StartDate = &start
	}
	if q.EndDate != "" {
		end, err := ledger.ParseDate(q.EndDate)
		if err != nil {
			return filter, ledger.ValidationError{Field: "end_date", Reason: "expected YYYY-MM-DD"}
		}
		filter.EndDate = &end
	}
	return filter, filter.Validate()
}
