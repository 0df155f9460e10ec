// Package firestore keeps persistence slots as documents of one collection.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const slotsCollection = "slots"

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore-backed slot store.
// Uses the project passed (BLUESHARK_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) slotsCol() *firestore.CollectionRef {
	return s.client.Collection(slotsCollection)
}

type slotDoc struct {
	Data      []byte    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// Slot returns the slot stored under key.
func (s *Store) Slot(key string) *Slot {
	return &Slot{doc: s.slotsCol().Doc(key)}
}

// Keys lists every slot document id.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	iter := s.slotsCol().Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating slots: %w", err)
		}
		keys = append(keys, doc.Ref.ID)
	}
	return keys, nil
}

type Slot struct {
	doc *firestore.DocumentRef
}

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	snap, err := s.doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting slot %s: %w", s.doc.ID, err)
	}

	var d slotDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding slot %s: %w", s.doc.ID, err)
	}
	return d.Data, nil
}

func (s *Slot) Write(ctx context.Context, data []byte) error {
	_, err := s.doc.Set(ctx, slotDoc{
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("setting slot %s: %w", s.doc.ID, err)
	}
	return nil
}
