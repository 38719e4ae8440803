package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/googleapis/google-cloudevents-go/cloud/storagedata"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/pagewatch/pagewatch/internal/service"
)

var errUnsupportedMediaType = errors.New("unsupported media type")

type Analyzer interface {
	Analyze(ctx context.Context, obj *storagedata.StorageObjectData) (service.AnalyzeResult, error)
}

// Analyze receives object-finalized CloudEvents from Eventarc for the
// metrics bucket. Parse failures are terminal (4xx, no retry); analysis
// failures return 500 so the platform retries with backoff.
func Analyze(svc Analyzer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := zerolog.Ctx(ctx)

		obj, err := parseStorageObjectData(r.Header.Get("Content-Type"), r.Body)
		if err != nil {
			logger.Err(err).Msg("failed to parse storage event")
			if errors.Is(err, errUnsupportedMediaType) {
				w.WriteHeader(http.StatusUnsupportedMediaType)
			} else {
				w.WriteHeader(http.StatusBadRequest)
			}
			return
		}

		result, err := svc.Analyze(ctx, obj)
		if err != nil || result == service.AnalyzeResultError {
			logger.Error().Err(err).Msg("analysis failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		switch result {
		case service.AnalyzeResultSuccess:
			w.WriteHeader(http.StatusOK)
		case service.AnalyzeResultSkipped:
			w.WriteHeader(http.StatusNoContent)
		default:
			logger.Error().Stringer("result", result).Msg("unhandled analysis result")
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
}

func parseStorageObjectData(contentType string, r io.Reader) (*storagedata.StorageObjectData, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	obj := &storagedata.StorageObjectData{}
	mediaType, _, _ := strings.Cut(contentType, ";")

	switch strings.TrimSpace(mediaType) {
	case "application/protobuf", "application/x-protobuf":
		if err := proto.Unmarshal(body, obj); err != nil {
			return nil, err
		}
	case "application/json":
		opts := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := opts.Unmarshal(body, obj); err != nil {
			return nil, err
		}
	default:
		return nil, errUnsupportedMediaType
	}

	return obj, nil
}
