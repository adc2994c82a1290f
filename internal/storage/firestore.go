package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/flipscout/internal/models"
)

// Firestore keeps the seen-set in a collection keyed by listing id, for
// deployments without a local disk.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	slog.Info("Seen-set opened", "backend", "firestore", "project", projectID)
	return &Firestore{client: client}, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) IsSeen(ctx context.Context, id string) (bool, error) {
	doc, err := f.client.Collection(seenCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get seen listing %s: %w", id, err)
	}
	return doc.Exists(), nil
}

// MarkSeen relies on Create failing for existing documents, which makes the
// check-and-insert atomic across concurrent runs.
func (f *Firestore) MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error) {
	_, err := f.client.Collection(seenCollection).Doc(rec.ID).Create(ctx, rec)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return false, nil
		}
		return false, fmt.Errorf("failed to create seen listing %s: %w", rec.ID, err)
	}
	return true, nil
}

func (f *Firestore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	iter := f.client.Collection(seenCollection).
		Where("firstSeenAt", "<", cutoff.UTC()).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := f.client.BulkWriter(ctx)
	var queued []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bulkWriter.End()
			return 0, fmt.Errorf("failed to iterate seen listings for purge: %w", err)
		}
		job, err := bulkWriter.Delete(doc.Ref)
		if err != nil {
			slog.Warn("Failed to queue delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		queued = append(queued, job)
	}
	bulkWriter.End()

	var deleted int64
	for _, job := range queued {
		if _, err := job.Results(); err != nil {
			slog.Warn("Delete failed during purge", "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

func (f *Firestore) Count(ctx context.Context) (int64, error) {
	res, err := f.client.Collection(seenCollection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count seen listings: %w", err)
	}
	v, ok := res["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation result was invalid: 'all' key missing")
	}
	return countValue(v)
}

// countValue unpacks an aggregation result, which the client returns either as
// a raw protobuf value or as a plain integer depending on version.
func countValue(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}
