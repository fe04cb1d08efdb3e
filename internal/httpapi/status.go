// Package httpapi exposes the temporal-memory, orchestration and Light RAG
// memory HTTP surfaces (spec §6) over the core's internal stores. The chat
// and satisfaction surfaces live alongside their own packages instead, since
// each already owns the handler-building idiom its domain needs.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// statusFor maps a classified error to the HTTP status the teacher's own
// handlers use for the same taxonomy (validation -> 400, not-found ->
// 404, auth -> 401, conflict -> 409, timeout -> 504, everything else -> 500).
func statusFor(err error) int {
	if errors.Is(err, coreerr.ErrNotFound) {
		return http.StatusNotFound
	}
	switch coreerr.KindOf(err) {
	case coreerr.KindValidation:
		return http.StatusBadRequest
	case coreerr.KindAuth:
		return http.StatusUnauthorized
	case coreerr.KindConflict:
		return http.StatusConflict
	case coreerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
