package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/pipeline"
)

// Error codes returned in the "code" field. The store code keeps the name
// existing clients already match on.
const (
	CodeMissingUserID  = "MISSING_USER_ID"
	CodeNotInitialized = "NOT_INITIALIZED"
	CodeNoCredits      = "NO_CREDITS"
	CodeNoTransactions = "NO_TRANSACTIONS"
	CodeStoreError     = "APPWRITE_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
)

// analysisError maps a failed run to its status code and JSON body.
func analysisError(err error) (int, map[string]interface{}) {
	var stepErr *pipeline.StepError
	if !errors.As(err, &stepErr) {
		return http.StatusInternalServerError, errorBody("Internal error", CodeInternalError)
	}

	switch stepErr.Kind {
	case pipeline.KindValidation:
		return http.StatusBadRequest, errorBody("userId is required", CodeMissingUserID)

	case pipeline.KindCredit:
		var credErr *credits.Error
		if errors.As(err, &credErr) && errors.Is(credErr, credits.ErrCreditsExhausted) {
			body := errorBody("No credits remaining", CodeNoCredits)
			body["totalCredits"] = credErr.TotalCredits
			body["usedCredits"] = credErr.UsedCredits
			body["remainingCredits"] = 0
			body["message"] = credits.UpgradeHint
			return http.StatusTooManyRequests, body
		}
		return http.StatusTooManyRequests, errorBody("Rate limit not initialized. Please refresh the page.", CodeNotInitialized)

	case pipeline.KindNoData:
		return http.StatusBadRequest, errorBody("No transactions found. Please add some transactions first.", CodeNoTransactions)

	case pipeline.KindUpstream:
		if stepErr.Service == pipeline.ServiceStore {
			return http.StatusInternalServerError, errorBody("Database error", CodeStoreError)
		}
		return http.StatusInternalServerError, errorBody("Internal error", CodeInternalError)

	default:
		return http.StatusInternalServerError, errorBody("Internal error", CodeInternalError)
	}
}

func errorBody(message, code string) map[string]interface{} {
	return map[string]interface{}{"error": message, "code": code}
}
