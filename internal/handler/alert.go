package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/pagewatch/pagewatch/internal/service"
)

type Alerter interface {
	Alert(ctx context.Context, event *firestoredata.DocumentEventData) (service.AlertResult, error)
}

// Alert receives document-created CloudEvents from Eventarc for the
// analysis collection.
func Alert(svc Alerter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := zerolog.Ctx(ctx)

		event, err := parseDocumentEventData(r.Header.Get("Content-Type"), r.Body)
		if err != nil {
			logger.Err(err).Msg("failed to parse document event")
			if errors.Is(err, errUnsupportedMediaType) {
				w.WriteHeader(http.StatusUnsupportedMediaType)
			} else {
				w.WriteHeader(http.StatusBadRequest)
			}
			return
		}

		result, err := svc.Alert(ctx, event)
		if err != nil || result == service.AlertResultError {
			logger.Error().Err(err).Msg("alerting failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		switch result {
		case service.AlertResultPublished:
			w.WriteHeader(http.StatusOK)
		case service.AlertResultSkipped:
			w.WriteHeader(http.StatusNoContent)
		default:
			logger.Error().Stringer("result", result).Msg("unhandled alert result")
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
}

func parseDocumentEventData(contentType string, r io.Reader) (*firestoredata.DocumentEventData, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	event := &firestoredata.DocumentEventData{}
	mediaType, _, _ := strings.Cut(contentType, ";")

	switch strings.TrimSpace(mediaType) {
	case "application/protobuf", "application/x-protobuf":
		if err := proto.Unmarshal(body, event); err != nil {
			return nil, err
		}
	case "application/json":
		opts := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := opts.Unmarshal(body, event); err != nil {
			return nil, err
		}
	default:
		return nil, errUnsupportedMediaType
	}

	return event, nil
}
