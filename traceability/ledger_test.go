package traceability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/supplychain/traceability"
	"github.com/warp/supplychain/traceability/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// stepClock returns t0, t0+step, t0+2*step, ...
func stepClock(t0 time.Time, step time.Duration) traceability.Clock {
	next := t0
	return func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}

var t0 = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store    *store.Memory
	ledger   *traceability.Ledger
	producer traceability.User
	other    traceability.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	producer, err := mem.SaveUser(ctx, traceability.User{Name: "Green Acres", Role: traceability.RoleProducer})
	require.NoError(t, err)
	other, err := mem.SaveUser(ctx, traceability.User{Name: "Hill Farm", Role: traceability.RoleProducer})
	require.NoError(t, err)

	return &fixture{
		store:    mem,
		ledger:   traceability.NewLedger(mem, traceability.WithClock(stepClock(t0, time.Hour))),
		producer: producer,
		other:    other,
	}
}

func (f *fixture) product(t *testing.T, name, batch string, owner traceability.User) traceability.Product {
	t.Helper()
	p, err := f.store.SaveProduct(context.Background(), traceability.Product{Name: name, BatchCode: batch, CreatedBy: owner.ID})
	require.NoError(t, err)
	return p
}

func (f *fixture) appendStage(t *testing.T, p traceability.Product, name, location string) traceability.Stage {
	t.Helper()
	s, err := f.ledger.Append(context.Background(), traceability.StageInput{
		ProductID: p.ID,
		StageName: name,
		Location:  location,
		ActorID:   f.producer.ID,
	})
	require.NoError(t, err)
	return s
}

// fixedOrderStore returns a product's stages exactly as given, so tests can
// feed sequences a real store would never produce.
type fixedOrderStore struct {
	*store.Memory
	stages []traceability.Stage
}

func (s *fixedOrderStore) StagesByProduct(_ context.Context, _ traceability.ProductID) ([]traceability.Stage, error) {
	return s.stages, nil
}

// failingStore fails every stage operation.
type failingStore struct {
	*store.Memory
}

var errStoreDown = errors.New("connection refused")

func (failingStore) AppendStage(context.Context, traceability.StageDraft) (traceability.Stage, error) {
	return traceability.Stage{}, errStoreDown
}

func (failingStore) StagesByProducer(context.Context, traceability.UserID) ([]traceability.ProductStage, error) {
	return nil, errStoreDown
}

// =============================================================================
// APPEND
// =============================================================================

func TestLedger_Append_ThenListByProduct(t *testing.T) {
	// GIVEN: A product with one stage
	// WHEN: Appending a second stage
	// THEN: It is the last element of the journey with ID and timestamp set

	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Tomatoes", "BATCH-001", f.producer)
	f.appendStage(t, p, "Harvesting", "Farm A")

	s, err := f.ledger.Append(ctx, traceability.StageInput{
		ProductID:   p.ID,
		StageName:   "Processing",
		Location:    "Plant B",
		ActorID:     f.producer.ID,
		Description: "Washed and sorted",
	})
	require.NoError(t, err)
	assert.NotZero(t, s.ID)
	assert.Equal(t, t0.Add(time.Hour), s.Timestamp)
	assert.Equal(t, "Green Acres", s.UpdatedByName)

	stages, err := f.ledger.ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, s, stages[1])
}

func TestLedger_Append_TruncatesClockToMilliseconds(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	u, _ := mem.SaveUser(ctx, traceability.User{Name: "u"})
	p, _ := mem.SaveProduct(ctx, traceability.Product{Name: "p", BatchCode: "B", CreatedBy: u.ID})

	local := time.FixedZone("CET", 3600)
	ledger := traceability.NewLedger(mem, traceability.WithClock(func() time.Time {
		return time.Date(2025, 1, 1, 12, 0, 0, 123456789, local)
	}))

	s, err := ledger.Append(ctx, traceability.StageInput{ProductID: p.ID, StageName: "a", Location: "b", ActorID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T11:00:00.123Z", traceability.FormatTimestamp(s.Timestamp))
	assert.Equal(t, time.UTC, s.Timestamp.Location())
}

func TestLedger_Append_UnknownProduct_IsPersistenceError(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Append(context.Background(), traceability.StageInput{
		ProductID: 999, StageName: "Harvesting", Location: "Farm A", ActorID: f.producer.ID,
	})

	require.Error(t, err)
	assert.True(t, traceability.IsPersistence(err))
	assert.ErrorIs(t, err, traceability.ErrForeignKey)
	assert.False(t, traceability.IsNotFound(err))
}

func TestLedger_Append_UnknownActor_IsPersistenceError(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Tomatoes", "BATCH-001", f.producer)

	_, err := f.ledger.Append(context.Background(), traceability.StageInput{
		ProductID: p.ID, StageName: "Harvesting", Location: "Farm A", ActorID: 999,
	})

	var pe *traceability.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append stage", pe.Op)
}

func TestLedger_Append_StoreFailureSurfacesUnchanged(t *testing.T) {
	ledger := traceability.NewLedger(failingStore{store.NewMemory()})

	_, err := ledger.Append(context.Background(), traceability.StageInput{ProductID: 1, StageName: "a", Location: "b", ActorID: 1})

	assert.ErrorIs(t, err, errStoreDown)
	assert.ErrorIs(t, err, traceability.ErrPersistence)
}

func TestStageInput_Validate(t *testing.T) {
	tests := []struct {
		name  string
		in    traceability.StageInput
		field string
	}{
		{"valid", traceability.StageInput{StageName: "Harvesting", Location: "Farm A"}, ""},
		{"missing stage name", traceability.StageInput{Location: "Farm A"}, "stage_name"},
		{"blank stage name", traceability.StageInput{StageName: "   ", Location: "Farm A"}, "stage_name"},
		{"missing location", traceability.StageInput{StageName: "Harvesting"}, "location"},
		{"any label accepted", traceability.StageInput{StageName: "Moon landing", Location: "Sea of Tranquility"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *traceability.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, traceability.IsClientError(err))
		})
	}
}

// =============================================================================
// ORDERED READS
// =============================================================================

func TestLedger_ListByProduct_Ascending_AndRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Tomatoes", "BATCH-001", f.producer)
	for _, name := range []string{"Harvesting", "Processing", "Packaging", "Shipping"} {
		f.appendStage(t, p, name, "Somewhere")
	}

	first, err := f.ledger.ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].Timestamp.Before(first[i-1].Timestamp), "stage %d out of order", i)
	}

	second, err := f.ledger.ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "no intervening append, identical sequences")
}

func TestLedger_ListByProduct_NoStages_IsEmptyNotError(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Tomatoes", "BATCH-001", f.producer)

	stages, err := f.ledger.ListByProduct(context.Background(), p.ID)

	require.NoError(t, err)
	assert.NotNil(t, stages)
	assert.Empty(t, stages)
}

func TestLedger_ListByProduct_UnknownProduct_EmptyPlusNotFound(t *testing.T) {
	f := newFixture(t)

	stages, err := f.ledger.ListByProduct(context.Background(), 42)

	assert.Empty(t, stages)
	assert.True(t, traceability.IsNotFound(err))
	var nf *traceability.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Resource)
	assert.Equal(t, "42", nf.Key)
}

func TestLedger_ListByProducer_DescendingAcrossProducts(t *testing.T) {
	// GIVEN: Two products of one producer and one product of another
	// WHEN: Listing the producer's feed
	// THEN: Only their stages appear, newest first, with product names

	f := newFixture(t)
	ctx := context.Background()
	tomatoes := f.product(t, "Tomatoes", "BATCH-001", f.producer)
	milk := f.product(t, "Milk", "BATCH-002", f.producer)
	foreign := f.product(t, "Honey", "BATCH-003", f.other)

	f.appendStage(t, tomatoes, "Harvesting", "Farm A")
	f.appendStage(t, milk, "Milking", "Barn")
	f.appendStage(t, foreign, "Extraction", "Hive")
	f.appendStage(t, tomatoes, "Processing", "Plant B")

	feed, err := f.ledger.ListByProducer(ctx, f.producer.ID)
	require.NoError(t, err)
	require.Len(t, feed, 3)

	assert.Equal(t, "Processing", feed[0].StageName)
	assert.Equal(t, "Tomatoes", feed[0].ProductName)
	assert.Equal(t, "Milking", feed[1].StageName)
	assert.Equal(t, "Milk", feed[1].ProductName)
	assert.Equal(t, "Harvesting", feed[2].StageName)
	for i := 1; i < len(feed); i++ {
		assert.False(t, feed[i].Timestamp.After(feed[i-1].Timestamp))
	}
}

func TestLedger_ListByProducer_NoProducts(t *testing.T) {
	f := newFixture(t)

	feed, err := f.ledger.ListByProducer(context.Background(), f.other.ID)

	require.NoError(t, err)
	assert.NotNil(t, feed)
	assert.Empty(t, feed)
}

func TestLedger_ListByProducer_StoreFailure(t *testing.T) {
	ledger := traceability.NewLedger(failingStore{store.NewMemory()})

	_, err := ledger.ListByProducer(context.Background(), 1)

	assert.True(t, traceability.IsPersistence(err))
}

// =============================================================================
// BATCH RESOLUTION
// =============================================================================

func TestLedger_ResolveByBatchCode_ThreeOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := f.product(t, "Lettuce", "BATCH-NEW", f.producer)
	tracked := f.product(t, "Tomatoes", "BATCH-001", f.producer)
	f.appendStage(t, tracked, "Harvesting", "Farm A")
	f.appendStage(t, tracked, "Processing", "Plant B")
	f.appendStage(t, tracked, "Shipping", "Port C")

	t.Run("unknown code", func(t *testing.T) {
		res, err := f.ledger.ResolveByBatchCode(ctx, "NOPE")
		require.NoError(t, err)
		nf, ok := res.(traceability.ProductNotFound)
		require.True(t, ok, "got %T", res)
		assert.Equal(t, "NOPE", nf.BatchCode)
	})

	t.Run("product without stages", func(t *testing.T) {
		res, err := f.ledger.ResolveByBatchCode(ctx, "BATCH-NEW")
		require.NoError(t, err)
		ns, ok := res.(traceability.ProductFoundNoStages)
		require.True(t, ok, "got %T", res)
		assert.Equal(t, fresh.ID, ns.Product.ID)
		assert.Equal(t, "Lettuce", ns.Product.Name)
		assert.Equal(t, "BATCH-NEW", ns.Product.BatchCode)
	})

	t.Run("product with stages", func(t *testing.T) {
		res, err := f.ledger.ResolveByBatchCode(ctx, "BATCH-001")
		require.NoError(t, err)
		ws, ok := res.(traceability.ProductFoundWithStages)
		require.True(t, ok, "got %T", res)
		require.Len(t, ws.Stages, 3)
		for i, s := range ws.Stages {
			assert.Equal(t, "Tomatoes", s.ProductName)
			assert.Equal(t, "BATCH-001", s.BatchCode)
			if i > 0 {
				assert.False(t, s.Timestamp.Before(ws.Stages[i-1].Timestamp))
			}
		}
	})
}

// =============================================================================
// INTEGRITY
// =============================================================================

func TestVerifySequence(t *testing.T) {
	ts := func(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }
	seq := func(hours ...int) []traceability.Stage {
		out := make([]traceability.Stage, len(hours))
		for i, h := range hours {
			out[i] = traceability.Stage{ID: traceability.StageID(i + 1), Timestamp: ts(h)}
		}
		return out
	}

	tests := []struct {
		name  string
		seq   []traceability.Stage
		valid bool
	}{
		{"empty", seq(), true},
		{"single", seq(0), true},
		{"non-decreasing", seq(0, 1, 2), true},
		{"equal timestamps", seq(0, 0, 1), true},
		{"second before first", seq(1, 0, 2), false},
		{"violation at the end", seq(0, 2, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := traceability.VerifySequence(tt.seq)
			assert.Equal(t, tt.valid, v.IsValid)
			assert.Equal(t, len(tt.seq), v.TotalStages)
			if tt.valid {
				assert.Equal(t, "Blockchain integrity verified", v.Message)
			} else {
				assert.Equal(t, "Blockchain integrity compromised", v.Message)
			}
		})
	}
}

func TestLedger_VerifyIntegrity_UsesStoreOrder(t *testing.T) {
	// GIVEN: A store that returns [t0+1h, t0, t0+2h] without re-sorting
	// WHEN: Verifying
	// THEN: The ledger reports compromised and does not sort the stages itself

	mem := store.NewMemory()
	ctx := context.Background()
	u, _ := mem.SaveUser(ctx, traceability.User{Name: "u"})
	p, _ := mem.SaveProduct(ctx, traceability.Product{Name: "p", BatchCode: "B", CreatedBy: u.ID})

	fixed := &fixedOrderStore{Memory: mem, stages: []traceability.Stage{
		{ID: 1, ProductID: p.ID, Timestamp: t0.Add(time.Hour)},
		{ID: 2, ProductID: p.ID, Timestamp: t0},
		{ID: 3, ProductID: p.ID, Timestamp: t0.Add(2 * time.Hour)},
	}}
	ledger := traceability.NewLedger(fixed)

	v, err := ledger.VerifyIntegrity(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, 3, v.TotalStages)
	assert.Equal(t, traceability.IntegrityCompromisedMessage, v.Message)
}

func TestLedger_VerifyIntegrity_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.VerifyIntegrity(context.Background(), 77)

	assert.True(t, traceability.IsNotFound(err))
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestLedger_AggregateByProducer_OrdersByStageCount(t *testing.T) {
	// GIVEN: Products with stage counts [0, 3, 1]
	// WHEN: Aggregating
	// THEN: They come back as [3, 1, 0], the empty one with a non-nil slice

	f := newFixture(t)
	ctx := context.Background()
	empty := f.product(t, "Empty", "B-0", f.producer)
	rich := f.product(t, "Rich", "B-3", f.producer)
	single := f.product(t, "Single", "B-1", f.producer)
	f.product(t, "Not mine", "B-X", f.other)

	f.appendStage(t, rich, "Harvesting", "Farm")
	f.appendStage(t, single, "Harvesting", "Farm")
	f.appendStage(t, rich, "Processing", "Plant")
	f.appendStage(t, rich, "Shipping", "Port")

	histories, err := f.ledger.AggregateByProducer(ctx, f.producer.ID)
	require.NoError(t, err)
	require.Len(t, histories, 3)

	assert.Equal(t, rich.ID, histories[0].Product.ID)
	assert.Equal(t, 3, histories[0].StageCount)
	assert.Equal(t, single.ID, histories[1].Product.ID)
	assert.Equal(t, 1, histories[1].StageCount)
	assert.Equal(t, empty.ID, histories[2].Product.ID)
	assert.Equal(t, 0, histories[2].StageCount)
	assert.NotNil(t, histories[2].Stages)
	assert.Empty(t, histories[2].Stages)

	names := []string{}
	for _, s := range histories[0].Stages {
		names = append(names, s.StageName)
	}
	assert.Equal(t, []string{"Harvesting", "Processing", "Shipping"}, names, "stages per product are chronological")
}

// =============================================================================
// END TO END
// =============================================================================

func TestLedger_EndToEnd_BatchScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Tomatoes", "BATCH-001", f.producer)

	f.appendStage(t, p, "Harvesting", "Farm A")
	f.appendStage(t, p, "Processing", "Plant B")

	res, err := f.ledger.ResolveByBatchCode(ctx, "BATCH-001")
	require.NoError(t, err)
	ws, ok := res.(traceability.ProductFoundWithStages)
	require.True(t, ok, "got %T", res)
	require.Len(t, ws.Stages, 2)
	assert.Equal(t, "Harvesting", ws.Stages[0].StageName)
	assert.Equal(t, "Farm A", ws.Stages[0].Location)
	assert.Equal(t, "Processing", ws.Stages[1].StageName)
	assert.Equal(t, "Plant B", ws.Stages[1].Location)

	v, err := f.ledger.VerifyIntegrity(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Equal(t, 2, v.TotalStages)
}
