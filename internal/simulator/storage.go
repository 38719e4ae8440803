package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/googleapis/google-cloudevents-go/cloud/storagedata"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Driver exercises the service the way Eventarc would: it requests a trace
// and then replays the resulting object as an object.v1.finalized CloudEvent
// against the analyze endpoint. The storage emulator has no notification
// support, so the event is synthesized from the object's attributes.
type Driver struct {
	httpClient *http.Client
	storage    *storage.Client
	serviceURL string
	bucket     string
}

func NewDriver(storageClient *storage.Client, serviceURL, bucket string) *Driver {
	return &Driver{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		storage:    storageClient,
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		bucket:     bucket,
	}
}

// TracePage asks the service to capture pageURL and returns the name of the
// metric record object it wrote.
func (d *Driver) TracePage(ctx context.Context, pageURL string) (string, error) {
	traceURL := d.serviceURL + "/v1/trace?url=" + url.QueryEscape(pageURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, traceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trace request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("trace request returned %d: %s", resp.StatusCode, body)
	}

	var outcome struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(body, &outcome); err != nil {
		return "", fmt.Errorf("failed to decode trace response: %w", err)
	}

	log.Info().Str("url", outcome.URL).Str("filename", outcome.Filename).Msg("trace completed")
	return outcome.Filename, nil
}

// EmitObjectFinalized replays the finalize event for the named object.
func (d *Driver) EmitObjectFinalized(ctx context.Context, name string) error {
	attrs, err := d.storage.Bucket(d.bucket).Object(name).Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read object attributes: %w", err)
	}

	obj := &storagedata.StorageObjectData{
		Bucket:      attrs.Bucket,
		Name:        attrs.Name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Metadata:    attrs.Metadata,
		TimeCreated: timestamppb.New(attrs.Created),
		Updated:     timestamppb.New(attrs.Updated),
	}

	payload, err := protojson.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal storage event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.serviceURL+"/v1/analyze", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ce-id", uuid.NewString())
	req.Header.Set("ce-source", fmt.Sprintf("//storage.googleapis.com/projects/_/buckets/%s", d.bucket))
	req.Header.Set("ce-specversion", "1.0")
	req.Header.Set("ce-subject", "objects/"+name)
	req.Header.Set("ce-time", attrs.Created.UTC().Format(time.RFC3339Nano))
	req.Header.Set("ce-type", "google.cloud.storage.object.v1.finalized")
	req.Header.Set("ce-bucket", d.bucket)
	req.Header.Set("ce-datacontenttype", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("analyze request returned %d: %s", resp.StatusCode, body)
	}

	log.Info().Str("object", name).Int("status", resp.StatusCode).Msg("object finalized event delivered")
	return nil
}
