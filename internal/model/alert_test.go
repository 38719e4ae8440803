package model

import (
	"testing"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
)

func analysisDoc(status string, paint int64) *firestoredata.Document {
	return &firestoredata.Document{
		Name: "projects/p/databases/(default)/documents/page-metrics/2019-03-07T00:00:00Z",
		Fields: map[string]*firestoredata.Value{
			"status":   {ValueType: &firestoredata.Value_StringValue{StringValue: status}},
			"page_url": {ValueType: &firestoredata.Value_StringValue{StringValue: "https://www.example.com/"}},
			"metrics": {ValueType: &firestoredata.Value_MapValue{MapValue: &firestoredata.MapValue{
				Fields: map[string]*firestoredata.Value{
					"FirstMeaningfulPaint": {ValueType: &firestoredata.Value_IntegerValue{IntegerValue: paint}},
				},
			}}},
		},
	}
}

func TestNewAlertMessage(t *testing.T) {
	msg := NewAlertMessage(analysisDoc(StatusFail, 4200))

	if msg.PageURL != "https://www.example.com/" {
		t.Errorf("PageURL = %s", msg.PageURL)
	}
	if msg.FirstMeaningfulPaint != 4200 {
		t.Errorf("FirstMeaningfulPaint = %d, want 4200", msg.FirstMeaningfulPaint)
	}
	if msg.Status != StatusFail {
		t.Errorf("Status = %s", msg.Status)
	}
	if msg.Document != "page-metrics/2019-03-07T00:00:00Z" {
		t.Errorf("Document = %s", msg.Document)
	}
}

func TestStatusViolation(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusFail, true},
		{StatusPass, false},
		{"", false},
		{"FAILED", true},
	}
	for _, tt := range tests {
		if got := StatusViolation(tt.status); got != tt.want {
			t.Errorf("StatusViolation(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestDocumentPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"projects/p/databases/d/documents/coll/doc", "coll/doc"},
		{"coll/doc", "coll/doc"},
	}
	for _, tt := range tests {
		if got := DocumentPath(tt.name); got != tt.want {
			t.Errorf("DocumentPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
