package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/problem"
	"github.com/wonny/allocator/pkg/logger"
)

// Importer validates portfolio documents and keeps them for a limited time
type Importer struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// NewImporter creates a new importer; documents expire ttl after import
func NewImporter(store Store, ttl time.Duration, log *logger.Logger) *Importer {
	return &Importer{
		store:  store,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log,
	}
}

// Import decodes and validates a YAML or JSON document and stores its canonical JSON form
func (i *Importer) Import(ctx context.Context, data []byte) (*Imported, error) {
	doc, err := problem.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode portfolio: %w", err)
	}
	hash, err := problem.Hash(doc)
	if err != nil {
		return nil, fmt.Errorf("hash portfolio: %w", err)
	}

	now := i.now()
	imported := Imported{
		ID:          uuid.New(),
		Payload:     payload,
		ContentHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(i.ttl),
	}
	if err := i.store.Save(ctx, imported); err != nil {
		return nil, err
	}

	i.logger.WithFields(map[string]interface{}{
		"id":         imported.ID.String(),
		"assets":     len(doc.Assets),
		"expires_at": imported.ExpiresAt.Format(time.RFC3339),
	}).Info("portfolio imported")
	return &imported, nil
}

// Get returns a stored document by id.
// Malformed ids are rejected as invalid; unknown and expired ones are not found.
func (i *Importer) Get(ctx context.Context, rawID string) (*problem.Document, *Imported, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil, contracts.ValidationError{Field: "id", Message: "must be a uuid"}
	}

	imported, err := i.store.Get(ctx, id, i.now())
	if err != nil {
		return nil, nil, err
	}

	var doc problem.Document
	if err := json.Unmarshal(imported.Payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode stored portfolio %s: %w", id, err)
	}
	return &doc, imported, nil
}

// Cleanup deletes expired portfolios
func (i *Importer) Cleanup(ctx context.Context) (int64, error) {
	n, err := i.store.DeleteExpired(ctx, i.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		i.logger.WithField("deleted", n).Info("expired portfolios deleted")
	}
	return n, nil
}
