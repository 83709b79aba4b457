package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	engine "github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

// ReconciliationHandler exposes read-only verification. Repairs run through ledgerctl only.
type ReconciliationHandler struct {
	reconciliation engine.ReconciliationService
	logger         *slog.Logger
}

func NewReconciliationHandler(logger *slog.Logger, reconciliation engine.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliation: reconciliation,
		logger:         logger,
	}
}

// Verify recomputes the customer's ledger from zero and reports every disagreement
func (h *ReconciliationHandler) Verify(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("customer_id"))

	report, err := h.reconciliation.VerifyCustomer(c.Request.Context(), customerID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	if !report.Consistent() {
		h.logger.Warn("Ledger verification found inconsistencies",
			"customer_id", customerID,
			"mismatches", len(report.Mismatches),
			"expected_balance", report.ExpectedBalance,
			"indexed_balance", report.IndexedBalance,
		)
	}

	RespondOK(c, VerificationResponse{Report: report, Consistent: report.Consistent()})
}
