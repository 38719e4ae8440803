package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pagewatch/pagewatch/internal/service"
)

type Tracer interface {
	Trace(ctx context.Context, url string) (*service.TraceOutcome, error)
}

// Trace is the synchronous tracer endpoint. The target URL is taken from the
// url query parameter, the url form field, or a {"url": ...} JSON body, in
// that order.
func Trace(svc Tracer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := zerolog.Ctx(ctx)

		outcome, err := svc.Trace(ctx, requestURL(r))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrForbidden):
				logger.Warn().Err(err).Msg("trace request rejected")
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				logger.Error().Err(err).Msg("trace failed")
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(outcome); err != nil {
			logger.Err(err).Msg("failed to write trace response")
		}
	})
}

// requestURL extracts the target URL from the request. A malformed JSON body
// deliberately degrades to an empty URL ("no url provided") instead of
// failing the request.
func requestURL(r *http.Request) string {
	if u := r.URL.Query().Get("url"); u != "" {
		return u
	}

	if err := r.ParseForm(); err == nil {
		if u := r.PostForm.Get("url"); u != "" {
			return u
		}
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.URL
	}

	return ""
}
