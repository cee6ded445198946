package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/auth"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/billing"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/storage"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/websitedata"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Error types reported in errorType.
const (
	errInvalidRequest = "invalid_request_error"
	errUnauthorized   = "unauthorized"
	errExpired        = "expired"
	errForbidden      = "forbidden"
	errNotFound       = "not_found"
	errCredits        = "insufficient_credits"
	errConflict       = "conflict"
	errUpstream       = "upstream_error"
	errInternal       = "api_error"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
		"errorType": errType,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

// writeErr maps a service error onto the HTTP error taxonomy.
func writeErr(w http.ResponseWriter, err error) {
	var se *upstream.StatusError
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		httpError(w, http.StatusUnauthorized, errExpired, "token has expired")
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		httpError(w, http.StatusUnauthorized, errUnauthorized, "%v", err)
	case errors.Is(err, auth.ErrRevokedKey), errors.Is(err, storage.ErrForbidden):
		httpError(w, http.StatusForbidden, errForbidden, "%v", err)
	case errors.Is(err, billing.ErrInsufficientCredits):
		httpError(w, http.StatusPaymentRequired, errCredits, "insufficient credits")
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, errNotFound, "not found")
	case errors.Is(err, websitedata.ErrRefreshInProgress):
		httpError(w, http.StatusConflict, errConflict, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, errUpstream, "request timed out")
	case errors.As(err, &se):
		slog.Warn("upstream error", "upstream", se.Upstream, "status", se.Code)
		httpError(w, http.StatusBadGateway, errUpstream, "upstream error: %v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, errInternal, "%v", err)
	}
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
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

// decode reads a JSON body into v and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeLimit(w, r, v, maxRequestBodySize)
}

func decodeLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, errInvalidRequest, "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, errInvalidRequest, "%s", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
