package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	engine "github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

// DebtorHandler serves get_customers_with_debt
type DebtorHandler struct {
	ledgerService engine.LedgerService
	logger        *slog.Logger
}

func NewDebtorHandler(logger *slog.Logger, ledgerService engine.LedgerService) *DebtorHandler {
	return &DebtorHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// List returns every customer with a non-zero balance, largest balance first
func (h *DebtorHandler) List(c *gin.Context) {
	debtors, err := h.ledgerService.GetCustomersWithDebt(c.Request.Context())
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	response := DebtorListResponse{Debtors: debtors}
	for _, d := range debtors {
		response.TotalBalance += d.CurrentBalance
	}
	if response.Debtors == nil {
		response.Debtors = []customer.Debtor{}
	}

	RespondOK(c, response)
}
