// Package ingest consolidates persisted search responses into the entity
// table. Progress is tracked with a durable cursor checkpoint, so repeated
// runs pick up where the last one stopped instead of reprocessing history.
package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/merge"
	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/store"
)

const (
	checkpointName   = "ingest"
	defaultBatchSize = 200
)

// Ingestor folds search responses into entities batch by batch.
type Ingestor struct {
	store     store.Store
	batchSize int
}

// New returns an Ingestor reading and writing through st. batchSize bounds
// how many responses one batch covers; zero means the default of 200.
func New(st store.Store, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Ingestor{store: st, batchSize: batchSize}
}

// Stats summarizes one ingest run.
type Stats struct {
	Responses int   `json:"responses"`
	Batches   int   `json:"batches"`
	Entities  int64 `json:"entities"`
}

// Run consolidates every response recorded after the current checkpoint.
// Each batch is upserted and checkpointed before the next one is read, so an
// interrupted run resumes at the last completed batch.
func (in *Ingestor) Run(ctx context.Context) (*Stats, error) {
	var cur store.Cursor
	cp, err := in.store.GetCheckpoint(ctx, checkpointName)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load checkpoint")
	}
	if cp != nil {
		cur = *cp
	}

	stats := &Stats{}
	for {
		batch, err := in.store.ListResponsesAfter(ctx, cur, in.batchSize)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read batch")
		}
		if len(batch) == 0 {
			break
		}

		entities := Consolidate(batch)
		n, err := in.store.UpsertEntities(ctx, entities)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: upsert entities")
		}

		last := batch[len(batch)-1]
		cur = store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		if err := in.store.SetCheckpoint(ctx, checkpointName, cur); err != nil {
			return nil, eris.Wrap(err, "ingest: save checkpoint")
		}

		stats.Responses += len(batch)
		stats.Batches++
		stats.Entities += n

		zap.L().Info("ingest: batch consolidated",
			zap.Int("responses", len(batch)),
			zap.Int("entities", len(entities)),
			zap.String("cursor_id", cur.ID),
		)
	}
	return stats, nil
}

type entityKey struct {
	identity     string
	jurisdiction string
}

// Consolidate folds the results of many responses into one entity per
// (identity key, jurisdiction) pair. Results without an identity-bearing
// field are skipped: there is nothing stable to consolidate them under.
// Output order follows first appearance.
func Consolidate(responses []model.SearchResponse) []model.Entity {
	byKey := make(map[entityKey]*model.Entity)
	var order []entityKey

	for _, resp := range responses {
		for _, r := range resp.Results {
			key, ok := merge.IdentityKey(r)
			if !ok {
				continue
			}
			k := entityKey{identity: key, jurisdiction: resp.Jurisdiction}
			e, seen := byKey[k]
			if !seen {
				name, registration := merge.IdentityFields(r)
				e = &model.Entity{
					IdentityKey:  key,
					Name:         strings.TrimSpace(name),
					Registration: strings.TrimSpace(registration),
					Jurisdiction: resp.Jurisdiction,
					FirstSeen:    resp.CreatedAt,
					LastSeen:     resp.CreatedAt,
				}
				byKey[k] = e
				order = append(order, k)
			}
			e.ResultCount++
			e.SourceIDs = appendUnique(e.SourceIDs, r.SourceID)
			if resp.CreatedAt.Before(e.FirstSeen) {
				e.FirstSeen = resp.CreatedAt
			}
			if resp.CreatedAt.After(e.LastSeen) {
				e.LastSeen = resp.CreatedAt
			}
		}
	}

	out := make([]model.Entity, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
