// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// RespondError maps domain error kinds to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var invalid *shared.InvalidTransitionError
	var approval *shared.ApprovalRequiredError

	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &invalid):
		Problem(w, http.StatusConflict, "Invalid Transition", invalid.Error())
	case errors.As(err, &approval):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:             "Approval Required",
			Status:            http.StatusConflict,
			Detail:            approval.Error(),
			ApprovalRequestID: approval.RequestID,
		})
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIncompleteOrder):
		Problem(w, http.StatusConflict, "Incomplete Order", err.Error())
	case errors.Is(err, shared.ErrUnreceivableOrder):
		Problem(w, http.StatusConflict, "Unreceivable Order", err.Error())
	case errors.Is(err, shared.ErrOperationIDConflict):
		Problem(w, http.StatusConflict, "Operation Id Conflict", err.Error())
	case errors.Is(err, shared.ErrIntegrityConflict):
		Problem(w, http.StatusConflict, "Integrity Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
