package simulator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Watcher emulates the Eventarc Firestore trigger against the emulator: it
// snapshots the analysis collection and republishes every newly created
// document as a document.v1.created CloudEvent on a push subscription
// pointed at the alert endpoint.
type Watcher struct {
	projectID    string
	databaseID   string
	collection   *firestore.CollectionRef
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func WatchAnalysisCollection(ctx context.Context, pubsubClient *pubsub.Client, projectID, databaseID string, collection *firestore.CollectionRef, alertURL string) (*Watcher, error) {
	topicID := generateRandomNameID("eventarc")
	topic, err := pubsubClient.CreateTopic(ctx, topicID)
	if err != nil {
		// try to get topic if it already exists
		topic = pubsubClient.Topic(topicID)
		if _, err := topic.Exists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create or get pubsub topic: %w", err)
		}
	}

	subID := generateRandomNameID("sub")
	subscription, err := pubsubClient.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic: topic,
		PushConfig: pubsub.PushConfig{
			Endpoint: alertURL,
			Wrapper:  &pubsub.NoWrapper{WriteMetadata: true},
		},
	})
	if err != nil {
		// try to get subscription if it already exists
		subscription = pubsubClient.Subscription(subID)
		if _, err := subscription.Exists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create or get pubsub subscription: %w", err)
		}
	}

	return &Watcher{
		projectID:    projectID,
		databaseID:   databaseID,
		collection:   collection,
		topic:        topic,
		subscription: subscription,
	}, nil
}

func (w *Watcher) Close(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	if err := w.subscription.Delete(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to delete subscription")
	}
	if err := w.topic.Delete(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to delete topic")
	}
	return nil
}

func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.watch(ctx)
	}()
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	log.Debug().Str("collection", w.collection.Path).Msg("watching analysis collection")
	it := w.collection.Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err == iterator.Done {
			log.Debug().Msg("firestore snapshot iterator done")
			break
		}
		if err != nil {
			log.Error().Err(err).Msg("firestore snapshot error")
			return
		}

		for _, change := range snap.Changes {
			// The pipeline only triggers on document creation.
			if change.Kind != firestore.DocumentAdded {
				log.Debug().Str("document_id", change.Doc.Ref.ID).Msg("ignoring non-create change")
				continue
			}
			if err := w.publishCreated(ctx, change.Doc, snap.ReadTime); err != nil {
				log.Error().Err(err).Msg("failed to publish document created event")
			}
		}
	}
}

func (w *Watcher) publishCreated(ctx context.Context, doc *firestore.DocumentSnapshot, eventTime time.Time) error {
	fields, err := toFirestoreValueMap(doc.Data())
	if err != nil {
		return fmt.Errorf("failed to convert document data to proto: %w", err)
	}

	eventData := firestoredata.DocumentEventData{
		Value: &firestoredata.Document{
			Name:       doc.Ref.Path,
			CreateTime: timestamppb.New(doc.CreateTime),
			UpdateTime: timestamppb.New(doc.UpdateTime),
			Fields:     fields,
		},
	}

	payload, err := protojson.Marshal(&eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	var shortPath string
	if idx := strings.Index(doc.Ref.Path, "/documents/"); idx != -1 {
		shortPath = doc.Ref.Path[idx+len("/documents/"):]
	}

	res := w.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"content-type":       "application/json",
			"ce-database":        w.databaseID,
			"ce-datacontenttype": "application/json",
			"ce-document":        shortPath,
			"ce-id":              uuid.NewString(),
			"ce-source":          fmt.Sprintf("//firestore.googleapis.com/projects/%s/databases/%s/documents/%s", w.projectID, w.databaseID, doc.Ref.Path),
			"ce-specversion":     "1.0",
			"ce-subject":         "documents/" + shortPath,
			"ce-time":            eventTime.Format(time.RFC3339Nano),
			"ce-type":            "google.cloud.firestore.document.v1.created",
		},
	})

	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Debug().Str("document_id", doc.Ref.ID).Msg("published analysis document created event")
	return nil
}

func toFirestoreValueMap(data map[string]interface{}) (map[string]*firestoredata.Value, error) {
	fields := make(map[string]*firestoredata.Value)
	for k, v := range data {
		val, err := toFirestoreValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %q: %w", k, err)
		}
		fields[k] = val
	}
	return fields, nil
}

func toFirestoreValue(v interface{}) (*firestoredata.Value, error) {
	switch val := v.(type) {
	case nil:
		return &firestoredata.Value{ValueType: &firestoredata.Value_NullValue{}}, nil
	case bool:
		return &firestoredata.Value{ValueType: &firestoredata.Value_BooleanValue{BooleanValue: val}}, nil
	case int64:
		return &firestoredata.Value{ValueType: &firestoredata.Value_IntegerValue{IntegerValue: val}}, nil
	case float64:
		return &firestoredata.Value{ValueType: &firestoredata.Value_DoubleValue{DoubleValue: val}}, nil
	case string:
		return &firestoredata.Value{ValueType: &firestoredata.Value_StringValue{StringValue: val}}, nil
	case []byte:
		return &firestoredata.Value{ValueType: &firestoredata.Value_BytesValue{BytesValue: val}}, nil
	case time.Time:
		return &firestoredata.Value{ValueType: &firestoredata.Value_TimestampValue{TimestampValue: timestamppb.New(val)}}, nil
	case map[string]interface{}:
		subFields, err := toFirestoreValueMap(val)
		if err != nil {
			return nil, err
		}
		return &firestoredata.Value{ValueType: &firestoredata.Value_MapValue{MapValue: &firestoredata.MapValue{Fields: subFields}}}, nil
	case []interface{}:
		var values []*firestoredata.Value
		for _, item := range val {
			fv, err := toFirestoreValue(item)
			if err != nil {
				return nil, err
			}
			values = append(values, fv)
		}
		return &firestoredata.Value{ValueType: &firestoredata.Value_ArrayValue{ArrayValue: &firestoredata.ArrayValue{Values: values}}}, nil
	default:
		// GeoPoint and DocumentRef never appear in analysis documents.
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
