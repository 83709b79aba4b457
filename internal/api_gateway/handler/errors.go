package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
)

// Error codes carried in the response envelope
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeNotFound        = "NOT_FOUND"
	CodeSaleLinkedEntry = "SALE_LINKED_ENTRY"
	CodeDuplicateRef    = "DUPLICATE_REFERENCE"
	CodeConflict        = "CONFLICT"
)

// RespondDomainError maps an engine error onto a status code and error code.
// Storage failures are logged and hidden behind a generic 500.
func RespondDomainError(c *gin.Context, logger *slog.Logger, err error) {
	var dup ledger.ErrDuplicateReference

	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		RespondWithError(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.As(err, &dup):
		RespondWithError(c, http.StatusConflict, CodeDuplicateRef, err.Error())
	case errors.Is(err, ledger.ErrReferentialIntegrity):
		RespondWithError(c, http.StatusConflict, CodeSaleLinkedEntry, err.Error())
	case errors.Is(err, ledger.ErrConflict):
		c.Header("Retry-After", "1")
		RespondWithError(c, http.StatusConflict, CodeConflict, "The customer's ledger is being modified, retry the request")
	default:
		logger.Error("Ledger operation failed", "error", err, "correlation_id", correlationID(c))
		RespondInternalError(c)
	}
}
