package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bidstream/bidstream/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors onto HTTP statuses. Unrecognized
// errors become an opaque 500; callers log those before calling this.
func writeDomainError(w http.ResponseWriter, err error) {
	var tooLow *domain.BidTooLowError
	if errors.As(err, &tooLow) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":              "bid amount below minimum",
			"min_next_bid_cents": tooLow.MinCents,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrAuctionNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrChannelNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, rootMessage(err))
	case errors.Is(err, domain.ErrNotShopOwner),
		errors.Is(err, domain.ErrSelfBid):
		writeError(w, http.StatusForbidden, rootMessage(err))
	case errors.Is(err, domain.ErrAuctionConflict),
		errors.Is(err, domain.ErrAuctionNotActive),
		errors.Is(err, domain.ErrAuctionExpired),
		errors.Is(err, domain.ErrNoBuyoutPrice),
		errors.Is(err, domain.ErrChannelNotLive),
		errors.Is(err, domain.ErrNotHighlighted):
		writeError(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, domain.ErrBidTooLow):
		writeError(w, http.StatusUnprocessableEntity, rootMessage(err))
	case errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidBuyout):
		writeError(w, http.StatusBadRequest, rootMessage(err))
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, rootMessage(err))
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// rootMessage unwraps to the innermost error so responses carry the sentinel
// text without the internal wrapping prefixes.
func rootMessage(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// actorID returns the authenticated user id forwarded by the platform
// gateway in the X-User-ID header.
func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
