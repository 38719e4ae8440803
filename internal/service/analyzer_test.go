package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/googleapis/google-cloudevents-go/cloud/storagedata"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/pagewatch/pagewatch/internal/model"
)

// ---- Mocks ----

type createdDoc struct {
	collection, id string
	data           interface{}
}

type mockDocumentStore struct {
	creates []createdDoc
	err     error
}

func (m *mockDocumentStore) Create(ctx context.Context, collection, id string, data interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.creates = append(m.creates, createdDoc{collection, id, data})
	return nil
}

const sampleRecord = `{"metrics":[
	{"name":"NavigationStart","value":100},
	{"name":"DomContentLoaded","value":101.2},
	{"name":"FirstMeaningfulPaint","value":104.2},
	{"name":"JSHeapTotalSize","value":10010624},
	{"name":"JSHeapUsedSize","value":5248904}
]}`

func storageEvent() *storagedata.StorageObjectData {
	return &storagedata.StorageObjectData{
		Bucket:      "metrics-bucket",
		Name:        "2019-03-07T00:00:00Z",
		TimeCreated: timestamppb.New(time.Date(2019, 3, 7, 0, 0, 0, 0, time.UTC)),
		Metadata:    map[string]string{"pageUrl": "https://www.example.com/"},
	}
}

func newTestAnalyzer(store ObjectStore, docs DocumentStore, maxPaint int64) *analyzer {
	return NewAnalyzer(store, docs, "page-metrics", maxPaint, noop.Meter{})
}

// ---- Tests ----

func TestAnalyze_Violation(t *testing.T) {
	store := &mockObjectStore{readData: []byte(sampleRecord)}
	docs := &mockDocumentStore{}
	svc := newTestAnalyzer(store, docs, 3000)

	result, err := svc.Analyze(context.Background(), storageEvent())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result != AnalyzeResultSuccess {
		t.Fatalf("result = %s", result)
	}
	if len(docs.creates) != 1 {
		t.Fatalf("creates = %d, want 1", len(docs.creates))
	}

	c := docs.creates[0]
	if c.collection != "page-metrics" || c.id != "2019-03-07T00:00:00Z" {
		t.Errorf("created %s/%s", c.collection, c.id)
	}

	a := c.data.(*model.Analysis)
	if a.Status != model.StatusFail {
		t.Errorf("Status = %s, want FAIL (paint 4200 > threshold 3000)", a.Status)
	}
	if a.Metrics.FirstMeaningfulPaint != 4200 {
		t.Errorf("FirstMeaningfulPaint = %d, want 4200", a.Metrics.FirstMeaningfulPaint)
	}
	if a.PageURL != "https://www.example.com/" {
		t.Errorf("PageURL = %s", a.PageURL)
	}
	if a.InputFile != "gs://metrics-bucket/2019-03-07T00:00:00Z" {
		t.Errorf("InputFile = %s", a.InputFile)
	}
	if a.FetchTimestamp != "2019-03-07T00:00:00Z" {
		t.Errorf("FetchTimestamp = %s", a.FetchTimestamp)
	}
}

func TestAnalyze_WithinThreshold(t *testing.T) {
	store := &mockObjectStore{readData: []byte(sampleRecord)}
	docs := &mockDocumentStore{}
	svc := newTestAnalyzer(store, docs, 5000)

	result, err := svc.Analyze(context.Background(), storageEvent())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result != AnalyzeResultSuccess {
		t.Fatalf("result = %s", result)
	}

	a := docs.creates[0].data.(*model.Analysis)
	if a.Status != model.StatusPass {
		t.Errorf("Status = %s, want PASS (paint 4200 < threshold 5000)", a.Status)
	}
}

// Reprocessing the same object must produce a value-equivalent document:
// the at-least-once contract depends on it.
func TestAnalyze_Idempotent(t *testing.T) {
	store := &mockObjectStore{readData: []byte(sampleRecord)}
	docs := &mockDocumentStore{}
	svc := newTestAnalyzer(store, docs, 3000)

	for i := 0; i < 2; i++ {
		if _, err := svc.Analyze(context.Background(), storageEvent()); err != nil {
			t.Fatalf("Analyze #%d: %v", i+1, err)
		}
	}

	if len(docs.creates) != 2 {
		t.Fatalf("creates = %d", len(docs.creates))
	}
	if !reflect.DeepEqual(docs.creates[0].data, docs.creates[1].data) {
		t.Fatalf("duplicate deliveries produced non-equivalent documents:\n%+v\n%+v",
			docs.creates[0].data, docs.creates[1].data)
	}
}

func TestAnalyze_DuplicateDeliverySkipped(t *testing.T) {
	store := &mockObjectStore{readData: []byte(sampleRecord)}
	docs := &mockDocumentStore{err: status.Error(codes.AlreadyExists, "document already exists")}
	svc := newTestAnalyzer(store, docs, 3000)

	result, err := svc.Analyze(context.Background(), storageEvent())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result != AnalyzeResultSkipped {
		t.Fatalf("result = %s, want skipped", result)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	readErr := errors.New("object gone")
	createErr := status.Error(codes.Unavailable, "firestore unavailable")

	tests := []struct {
		name  string
		event *storagedata.StorageObjectData
		store *mockObjectStore
		docs  *mockDocumentStore
	}{
		{"missing bucket", &storagedata.StorageObjectData{Name: "o"}, &mockObjectStore{}, &mockDocumentStore{}},
		{"missing name", &storagedata.StorageObjectData{Bucket: "b"}, &mockObjectStore{}, &mockDocumentStore{}},
		{"read failure", storageEvent(), &mockObjectStore{readErr: readErr}, &mockDocumentStore{}},
		{"malformed record", storageEvent(), &mockObjectStore{readData: []byte(`{"metrics":[]}`)}, &mockDocumentStore{}},
		{"create failure", storageEvent(), &mockObjectStore{readData: []byte(sampleRecord)}, &mockDocumentStore{err: createErr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAnalyzer(tt.store, tt.docs, 3000)
			result, err := svc.Analyze(context.Background(), tt.event)
			if err == nil {
				t.Fatal("expected error")
			}
			if result != AnalyzeResultError {
				t.Fatalf("result = %s, want error", result)
			}
			if len(tt.docs.creates) != 0 {
				t.Error("degenerate analysis document was written")
			}
		})
	}
}
