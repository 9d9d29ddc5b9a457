package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"creator-bridge/internal/bridge"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &requestError{msg: fmt.Sprintf("malformed request body: %v", err)}
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

type requestError struct {
	msg     string
	details []string
}

func (e *requestError) Error() string { return e.msg }

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &requestError{msg: err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		details = append(details, fmt.Sprintf("%s: %s", field, fe.Tag()))
	}
	return &requestError{msg: "validation failed", details: details}
}

// fail maps service errors to HTTP responses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: reqErr.msg, Code: "VALIDATION_ERROR", Details: reqErr.details})
	case errors.Is(err, bridge.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, bridge.ErrNotInErrorState):
		writeError(w, http.StatusBadRequest, "NOT_IN_ERROR_STATE", "content is not in error state")
	case errors.Is(err, bridge.ErrUnknownDestination):
		writeError(w, http.StatusBadRequest, "UNKNOWN_DESTINATION", err.Error())
	case errors.Is(err, bridge.ErrConnectionUnavailable):
		writeError(w, http.StatusBadRequest, "CONNECTION_UNAVAILABLE", err.Error())
	case errors.Is(err, bridge.ErrInFlight):
		writeError(w, http.StatusConflict, "IN_FLIGHT", err.Error())
	case errors.Is(err, bridge.ErrCredentialsLocked):
		writeError(w, http.StatusServiceUnavailable, "CREDENTIALS_LOCKED", err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
