package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/pagewatch/pagewatch/internal/service"
)

// stubAlerter is a test implementation of the Alerter interface.
type stubAlerter struct {
	result service.AlertResult
	err    error
	event  *firestoredata.DocumentEventData
}

func (s *stubAlerter) Alert(ctx context.Context, event *firestoredata.DocumentEventData) (service.AlertResult, error) {
	s.event = event
	return s.result, s.err
}

func sampleDocumentEvent(t *testing.T) []byte {
	t.Helper()
	evt := &firestoredata.DocumentEventData{
		Value: &firestoredata.Document{
			Name: "projects/p/databases/(default)/documents/page-metrics/2019-03-07T00:00:00Z",
			Fields: map[string]*firestoredata.Value{
				"status": {ValueType: &firestoredata.Value_StringValue{StringValue: "FAIL"}},
			},
		},
	}
	b, err := protojson.Marshal(evt)
	if err != nil {
		t.Fatalf("protojson.Marshal: %v", err)
	}
	return b
}

func TestParseDocumentEventData(t *testing.T) {
	evt := &firestoredata.DocumentEventData{
		Value: &firestoredata.Document{Name: "projects/p/databases/d/documents/coll/doc"},
	}
	protoBody, err := proto.Marshal(evt)
	if err != nil {
		t.Fatalf("proto.Marshal: %v", err)
	}

	got, err := parseDocumentEventData("application/protobuf", bytes.NewReader(protoBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !proto.Equal(got, evt) {
		t.Fatalf("got %v, want %v", got, evt)
	}

	if _, err := parseDocumentEventData("text/plain", bytes.NewReader([]byte("foo"))); !errors.Is(err, errUnsupportedMediaType) {
		t.Fatalf("error = %v, want %v", err, errUnsupportedMediaType)
	}
}

func TestAlert_StatusCodes(t *testing.T) {
	body := sampleDocumentEvent(t)
	tests := []struct {
		name   string
		result service.AlertResult
		err    error
		want   int
	}{
		{"published", service.AlertResultPublished, nil, http.StatusOK},
		{"skipped", service.AlertResultSkipped, nil, http.StatusNoContent},
		{"error result", service.AlertResultError, nil, http.StatusInternalServerError},
		{"svc error", service.AlertResultPublished, errors.New("svc error"), http.StatusInternalServerError},
		{"unknown result", service.AlertResultUnknown, nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAlerter{result: tt.result, err: tt.err}
			req := httptest.NewRequest(http.MethodPost, "/v1/alert", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			Alert(svc).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAlert_ParseErrors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        int
	}{
		{"unsupported content type", "text/plain", []byte("foo"), http.StatusUnsupportedMediaType},
		{"invalid body", "application/json", []byte("invalid json"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAlerter{result: service.AlertResultPublished}
			req := httptest.NewRequest(http.MethodPost, "/v1/alert", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()
			Alert(svc).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if svc.event != nil {
				t.Fatal("service should not be called on parse errors")
			}
		})
	}
}
