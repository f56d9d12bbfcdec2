package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/forecast"
	"homebudget/internal/identity"
	"homebudget/internal/log"
	"homebudget/internal/services"
	"homebudget/internal/voice"
)

// Error codes of the JSON error body.
const (
	CodeBadRequest           = "bad_request"
	CodeUnauthenticated      = "unauthenticated"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeConfirmationRequired = "confirmation_required"
	CodeInvalid              = "invalid"
	CodeUnavailable          = "unavailable"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorClass struct {
	status int
	code   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, CodeUnauthenticated, []error{identity.ErrUnauthenticated}},
	{http.StatusConflict, CodeConfirmationRequired, []error{services.ErrCancelled}},
	{http.StatusServiceUnavailable, CodeUnavailable, []error{services.ErrConnectivity, services.ErrClosed}},
	{http.StatusNotFound, CodeNotFound, []error{
		services.ErrUnknownBudget, services.ErrTransactionNotFound, services.ErrCategoryNotFound,
		services.ErrArchiveNotFound, services.ErrPaymentMethodMissing, services.ErrSubcategoryMissing,
		docstore.ErrNotFound,
	}},
	{http.StatusConflict, CodeConflict, []error{
		services.ErrLastBudget, services.ErrDuplicate, services.ErrTypeInUse,
		services.ErrLastType, services.ErrNoActiveBudget,
	}},
	{http.StatusUnprocessableEntity, CodeInvalid, []error{
		core.ErrInvalidAmount, core.ErrInvalidAllocation, core.ErrInvalidDate,
		core.ErrUnknownType, core.ErrEmptyName, core.ErrInvalidPeriod,
		voice.ErrNoAmount, voice.ErrNoCategory, voice.ErrEmpty,
		forecast.ErrNotEnoughHistory,
	}},
	{http.StatusBadRequest, CodeBadRequest, []error{errBadRequest}},
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	for _, c := range errorClasses {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.status, c.code
			}
		}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusUnprocessableEntity, CodeInvalid
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the JSON error body for err. Internal errors never leak
// their message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorBody{Error: msg, Code: code})
}
