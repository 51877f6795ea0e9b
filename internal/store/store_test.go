package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintops/dragnet/internal/dispatch"
	"github.com/osintops/dragnet/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleResponse(id, query, jurisdiction string, createdAt time.Time) *model.SearchResponse {
	return &model.SearchResponse{
		ID:               id,
		Query:            query,
		InputType:        model.InputCompanyName,
		Jurisdiction:     jurisdiction,
		SourcesQueried:   2,
		SourcesSucceeded: 1,
		TotalResults:     1,
		Results: []model.StructuredResult{
			{
				SourceID: "hu_cegjegyzek",
				Fields: []model.Field{
					{Name: "Company Name", Value: "Acme Holdings Kft"},
					{Name: "Reg. No.", Value: "01-09-123456"},
				},
				FieldCodes: map[string]string{"Company Name": "company_name", "Reg. No.": "registration_id"},
				Confidence: 0.9,
				MatchScore: 1.0,
			},
		},
		Errors: []model.SourceError{
			{Type: model.ErrorFetchFailed, SourceID: "opencorporates", Message: "connection refused"},
		},
		Advisory:  &model.Advisory{Proceed: true, EstimatedSuccess: model.EstimateUnknown},
		CreatedAt: createdAt,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetResponse", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		saved := sampleResponse("resp-1", "acme holdings", "HU", time.Now().UTC())
		require.NoError(t, s.SaveResponse(ctx, saved))

		got, err := s.GetResponse(ctx, "resp-1")
		require.NoError(t, err)
		assert.Equal(t, "resp-1", got.ID)
		assert.Equal(t, model.InputCompanyName, got.InputType)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "Acme Holdings Kft", got.Results[0].FieldValue("Company Name"))
		require.Len(t, got.Errors, 1)
		assert.Equal(t, model.ErrorFetchFailed, got.Errors[0].Type)
		require.NotNil(t, got.Advisory)
		assert.True(t, got.Advisory.Proceed)
	})

	t.Run("GetResponseNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetResponse(context.Background(), "nonexistent")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListResponsesFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveResponse(ctx, sampleResponse("resp-hu", "acme holdings", "HU", base)))
		require.NoError(t, s.SaveResponse(ctx, sampleResponse("resp-de", "acme holdings", "DE", base.Add(time.Minute))))
		require.NoError(t, s.SaveResponse(ctx, sampleResponse("resp-hu2", "beta kft", "HU", base.Add(2*time.Minute))))

		hu, err := s.ListResponses(ctx, ResponseFilter{Jurisdiction: "HU"})
		require.NoError(t, err)
		require.Len(t, hu, 2)
		// Newest first.
		assert.Equal(t, "resp-hu2", hu[0].ID)
		assert.Equal(t, "resp-hu", hu[1].ID)

		byQuery, err := s.ListResponses(ctx, ResponseFilter{Query: "beta kft"})
		require.NoError(t, err)
		require.Len(t, byQuery, 1)
		assert.Equal(t, "resp-hu2", byQuery[0].ID)

		limited, err := s.ListResponses(ctx, ResponseFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "resp-hu2", limited[0].ID)
	})

	t.Run("CursorPagination", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"resp-a", "resp-b", "resp-c"} {
			require.NoError(t, s.SaveResponse(ctx,
				sampleResponse(id, "acme holdings", "HU", base.Add(time.Duration(i)*time.Minute))))
		}

		first, err := s.ListResponsesAfter(ctx, Cursor{}, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, "resp-a", first[0].ID)
		assert.Equal(t, "resp-b", first[1].ID)

		cur := Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
		second, err := s.ListResponsesAfter(ctx, cur, 2)
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, "resp-c", second[0].ID)

		cur = Cursor{CreatedAt: second[0].CreatedAt, ID: second[0].ID}
		third, err := s.ListResponsesAfter(ctx, cur, 2)
		require.NoError(t, err)
		assert.Empty(t, third)
	})

	t.Run("CountResponses", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.CountResponses(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.SaveResponse(ctx, sampleResponse("resp-1", "acme", "HU", time.Now().UTC())))
		require.NoError(t, s.SaveResponse(ctx, sampleResponse("resp-2", "acme", "HU", time.Now().UTC())))

		n, err = s.CountResponses(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("PageCacheRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		url := "https://hu.example/search?q=acme"
		require.NoError(t, s.PutPage(ctx, url, dispatch.CachedPage{
			Body:        []byte("<html>results</html>"),
			ContentType: "text/html",
		}))

		page, err := s.GetPage(ctx, url)
		require.NoError(t, err)
		require.NotNil(t, page)
		assert.Equal(t, "<html>results</html>", string(page.Body))
		assert.Equal(t, "text/html", page.ContentType)
	})

	t.Run("PageCacheMiss", func(t *testing.T) {
		s := newStore(t)

		page, err := s.GetPage(context.Background(), "https://unknown.example/q")
		require.NoError(t, err)
		assert.Nil(t, page)
	})

	t.Run("PageCacheOverwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		url := "https://hu.example/search?q=acme"
		require.NoError(t, s.PutPage(ctx, url, dispatch.CachedPage{Body: []byte("old"), ContentType: "text/html"}))
		require.NoError(t, s.PutPage(ctx, url, dispatch.CachedPage{Body: []byte("new"), ContentType: "application/json"}))

		page, err := s.GetPage(ctx, url)
		require.NoError(t, err)
		require.NotNil(t, page)
		assert.Equal(t, "new", string(page.Body))
		assert.Equal(t, "application/json", page.ContentType)
	})

	t.Run("ReliabilityRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		snapshot := map[string]model.ReliabilityMetrics{
			"hu_cegjegyzek":  {SuccessCount: 9, FailureCount: 1, AvgLatencySeconds: 0.8, SuccessRate: 0.9},
			"opencorporates": {SuccessCount: 19, FailureCount: 1, AvgLatencySeconds: 0.4, SuccessRate: 0.95},
		}
		require.NoError(t, s.SaveReliability(ctx, snapshot))

		loaded, err := s.LoadReliability(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, 9, loaded["hu_cegjegyzek"].SuccessCount)
		assert.InDelta(t, 0.95, loaded["opencorporates"].SuccessRate, 1e-9)

		// A later snapshot overwrites per source.
		snapshot["hu_cegjegyzek"] = model.ReliabilityMetrics{SuccessCount: 10, FailureCount: 1, SuccessRate: 10.0 / 11.0}
		require.NoError(t, s.SaveReliability(ctx, snapshot))

		loaded, err = s.LoadReliability(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, loaded["hu_cegjegyzek"].SuccessCount)
	})

	t.Run("EntityAccumulation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		_, err := s.UpsertEntities(ctx, []model.Entity{{
			IdentityKey:  "acme holdings kft|01-09-123456",
			Name:         "Acme Holdings Kft",
			Registration: "01-09-123456",
			Jurisdiction: "HU",
			SourceIDs:    []string{"hu_cegjegyzek"},
			ResultCount:  2,
			FirstSeen:    seen,
			LastSeen:     seen,
		}})
		require.NoError(t, err)

		later := seen.Add(48 * time.Hour)
		_, err = s.UpsertEntities(ctx, []model.Entity{{
			IdentityKey:  "acme holdings kft|01-09-123456",
			Name:         "ACME Holdings Kft.",
			Registration: "01-09-123456",
			Jurisdiction: "HU",
			SourceIDs:    []string{"hu_cegjegyzek", "opencorporates"},
			ResultCount:  3,
			FirstSeen:    later,
			LastSeen:     later,
		}})
		require.NoError(t, err)

		entities, err := s.ListEntities(ctx, "HU", 10)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		e := entities[0]
		assert.Equal(t, "ACME Holdings Kft.", e.Name)
		assert.Equal(t, 5, e.ResultCount, "result counts accumulate across upserts")
		assert.Equal(t, []string{"hu_cegjegyzek", "opencorporates"}, e.SourceIDs)
		assert.WithinDuration(t, seen, e.FirstSeen, time.Second, "first_seen keeps the original sighting")
		assert.WithinDuration(t, later, e.LastSeen, time.Second)
	})

	t.Run("EntityJurisdictionSplit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		now := time.Now().UTC()
		base := model.Entity{
			IdentityKey: "acme holdings|global-999",
			Name:        "Acme Holdings",
			SourceIDs:   []string{"opencorporates"},
			ResultCount: 1,
			FirstSeen:   now,
			LastSeen:    now,
		}
		hu := base
		hu.Jurisdiction = "HU"
		de := base
		de.Jurisdiction = "DE"

		_, err := s.UpsertEntities(ctx, []model.Entity{hu, de})
		require.NoError(t, err)

		n, err := s.CountEntities(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "same identity in different jurisdictions stays separate")

		huOnly, err := s.ListEntities(ctx, "HU", 10)
		require.NoError(t, err)
		require.Len(t, huOnly, 1)
		assert.Equal(t, "HU", huOnly[0].Jurisdiction)
	})

	t.Run("ListEntitiesOrdered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		now := time.Now().UTC()
		var batch []model.Entity
		for _, e := range []struct {
			name  string
			count int
		}{
			{"Beta Kft", 1},
			{"Acme Holdings Kft", 5},
			{"Gamma Zrt", 3},
		} {
			batch = append(batch, model.Entity{
				IdentityKey:  e.name,
				Name:         e.name,
				Jurisdiction: "HU",
				SourceIDs:    []string{"hu_cegjegyzek"},
				ResultCount:  e.count,
				FirstSeen:    now,
				LastSeen:     now,
			})
		}
		_, err := s.UpsertEntities(ctx, batch)
		require.NoError(t, err)

		entities, err := s.ListEntities(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, entities, 3)
		assert.Equal(t, "Acme Holdings Kft", entities[0].Name)
		assert.Equal(t, "Gamma Zrt", entities[1].Name)
		assert.Equal(t, "Beta Kft", entities[2].Name)
	})

	t.Run("CheckpointLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		cur, err := s.GetCheckpoint(ctx, "ingest")
		require.NoError(t, err)
		assert.Nil(t, cur, "missing checkpoint reads as nil")

		at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.SetCheckpoint(ctx, "ingest", Cursor{CreatedAt: at, ID: "resp-5"}))

		cur, err = s.GetCheckpoint(ctx, "ingest")
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.Equal(t, "resp-5", cur.ID)
		assert.True(t, cur.CreatedAt.Equal(at))

		require.NoError(t, s.SetCheckpoint(ctx, "ingest", Cursor{CreatedAt: at.Add(time.Hour), ID: "resp-9"}))

		cur, err = s.GetCheckpoint(ctx, "ingest")
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.Equal(t, "resp-9", cur.ID)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
