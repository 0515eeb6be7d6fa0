package httpapi

import (
	"errors"
	"net/http"

	"github.com/mesh-intelligence/graphctx/internal/ctxlog"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Kinds reported for failures outside the core taxonomy.
const (
	kindBadRequest = "BadRequest"
	kindInternal   = "Internal"
)

// errBadRequest marks malformed or empty request bodies.
var errBadRequest = errors.New("bad request")

type errorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Type      string `json:"type,omitempty"`
	Retryable bool   `json:"retryable"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// badRequest wraps a decoding failure so writeError reports it as 400.
type badRequest struct {
	msg string
	err error
}

func (e *badRequest) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *badRequest) Unwrap() error { return e.err }

func (e *badRequest) Is(target error) bool { return target == errBadRequest }

// statusFor maps an error to its HTTP status. UnknownType is 404 on type
// lookup endpoints and 422 everywhere else.
func statusFor(err error, typeLookup bool) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch types.KindOf(err) {
	case types.KindUnknownType:
		if typeLookup {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case types.KindEntityNotFound, types.KindRelationNotFound:
		return http.StatusNotFound
	case types.KindTypeConflict:
		return http.StatusConflict
	case types.KindMissingProperty, types.KindUnknownProperty, types.KindTypeMismatch,
		types.KindEndpointTypeMismatch, types.KindInvalidQuerySpec, types.KindInvalidDefinition:
		return http.StatusUnprocessableEntity
	case types.KindCommitFailed, types.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(err error, status int) errorDetail {
	d := errorDetail{Message: err.Error(), Retryable: types.Retryable(err)}
	var te *types.Error
	switch {
	case errors.As(err, &te):
		d.Kind = string(te.Kind)
		d.Field = te.Field
		d.Type = te.Type
	case status == http.StatusBadRequest:
		d.Kind = kindBadRequest
	default:
		d.Kind = kindInternal
		d.Message = "internal error"
	}
	return d
}

func writeError(w http.ResponseWriter, r *http.Request, err error, typeLookup bool) {
	status := statusFor(err, typeLookup)
	if status >= http.StatusInternalServerError {
		ctxlog.FromContext(r.Context()).Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: detailFor(err, status)})
}
