package model

import (
	"encoding/json"
	"strings"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
)

// AlertMessage is the payload published to the alert topic for a failed
// analysis. It carries enough context for downstream subscribers to identify
// the offending page and the violating metric value.
type AlertMessage struct {
	PageURL              string `json:"page_url"`
	FirstMeaningfulPaint int64  `json:"first_meaningful_paint"`
	Status               string `json:"status"`
	Document             string `json:"document"`
}

// NewAlertMessage extracts an alert payload from the analysis document that
// triggered the alerter.
func NewAlertMessage(doc *firestoredata.Document) *AlertMessage {
	fields := doc.GetFields()

	return &AlertMessage{
		PageURL:              fields["page_url"].GetStringValue(),
		FirstMeaningfulPaint: fields["metrics"].GetMapValue().GetFields()["FirstMeaningfulPaint"].GetIntegerValue(),
		Status:               fields["status"].GetStringValue(),
		Document:             DocumentPath(doc.GetName()),
	}
}

func (m *AlertMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// AnalysisStatus reads the status field of an analysis document. The verdict
// check mirrors the analyzer's contract: any status containing FAIL is a
// threshold violation.
func AnalysisStatus(doc *firestoredata.Document) string {
	return doc.GetFields()["status"].GetStringValue()
}

// StatusViolation reports whether a document status signals a threshold
// violation.
func StatusViolation(status string) bool {
	return strings.Contains(status, StatusFail)
}

// DocumentPath strips the projects/{p}/databases/{d}/documents/ prefix from a
// fully-qualified Firestore document name. Names without the prefix are
// returned unchanged.
func DocumentPath(name string) string {
	const infix = "/documents/"
	if idx := strings.Index(name, infix); idx != -1 {
		return name[idx+len(infix):]
	}
	return name
}
