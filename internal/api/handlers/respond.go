package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/producer"
	"github.com/wonny/marketlens/backend/internal/recommend"
	"github.com/wonny/marketlens/backend/pkg/httputil"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable,omitempty"`
	Details   []ValidationError `json:"details,omitempty"`
}

// ValidationError describes one invalid request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondErr maps a domain error onto its HTTP status
func respondErr(w http.ResponseWriter, err error) {
	status, retryable := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	respondJSON(w, status, ErrorResponse{Error: msg, Retryable: retryable})
}

// StatusFor returns the HTTP status and retry hint for err
func StatusFor(err error) (status int, retryable bool) {
	// generation failures wrap their cause, so they are checked first
	switch {
	case errors.Is(err, contracts.ErrGenerationFailed):
		return http.StatusBadGateway, true
	case errors.Is(err, recommend.ErrBusy):
		return http.StatusConflict, true
	case errors.Is(err, contracts.ErrCapacityExceeded), errors.Is(err, contracts.ErrDuplicateTicker):
		return http.StatusConflict, false
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, contracts.ErrOutOfScope), errors.Is(err, contracts.ErrOutOfRange),
		errors.Is(err, contracts.ErrParse), errors.Is(err, producer.ErrRejected):
		return http.StatusBadRequest, false
	case errors.Is(err, contracts.ErrConnection):
		return http.StatusBadGateway, true
	}

	var se *httputil.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway, httputil.IsRetryableError(se.StatusCode)
	}
	return http.StatusInternalServerError, false
}

// decodeAndValidate reads a JSON body, applies defaults and validates it.
// It writes the 400 response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return applyAndValidate(w, req)
}

func applyAndValidate(w http.ResponseWriter, req interface{}) bool {
	if err := defaults.Set(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]ValidationError, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, ValidationError{Field: fe.Field(), Message: errorMessage(fe)})
			}
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: details})
			return false
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func errorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
