/*
ledger.go - Append-only stage ledger

PURPOSE:
  The Ledger records supply-chain stages and answers the read paths the
  clients need: a product's journey, a producer's activity feed, the
  consumer-facing batch-code scan, and the integrity check.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Append is the only write. No update, no delete.
  2. SERVER TIME: Timestamps come from the ledger clock, never the client.
  3. ATTRIBUTED: Every stage records the actor that appended it.

VALIDATION:
  The ledger does not validate stage input. Callers run
  StageInput.Validate before Append; product and actor existence is
  enforced by the store's referential integrity.

ORDERING:
  ListByProduct is chronological (oldest first). ListByProducer is the
  reverse (newest first). Both directions are intentional: the first is a
  product journey, the second an activity feed.

INTEGRITY:
  VerifyIntegrity only checks that timestamps never go backwards. The
  product calls this "blockchain integrity", but there is no hash chain.

SEE ALSO:
  - store.go: Persistence interfaces
  - resolution.go: ResolveByBatchCode result variants
  - stats.go: Derived statistics
*/
package traceability

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	IntegrityVerifiedMessage    = "Blockchain integrity verified"
	IntegrityCompromisedMessage = "Blockchain integrity compromised"
)

// StageInput is the caller's request to append a stage.
type StageInput struct {
	ProductID   ProductID
	StageName   string
	Location    string
	ActorID     UserID
	Description string
	Notes       string
}

// Validate checks the required fields. It never touches the store.
func (in StageInput) Validate() error {
	if strings.TrimSpace(in.StageName) == "" {
		return &ValidationError{Field: "stage_name", Message: "is required"}
	}
	if strings.TrimSpace(in.Location) == "" {
		return &ValidationError{Field: "location", Message: "is required"}
	}
	return nil
}

// Verification is the result of VerifyIntegrity.
type Verification struct {
	IsValid     bool
	TotalStages int
	Message     string
}

// ProductHistory is one row of AggregateByProducer.
type ProductHistory struct {
	Product    Product
	Stages     []Stage
	StageCount int
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store Store
	now   Clock
}

type Option func(*Ledger)

// WithClock replaces the server clock. Used by tests and demo seeding.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.now = c }
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a new stage stamped with the current server time.
func (l *Ledger) Append(ctx context.Context, in StageInput) (Stage, error) {
	draft := StageDraft{
		ProductID:   in.ProductID,
		StageName:   in.StageName,
		Location:    in.Location,
		UpdatedBy:   in.ActorID,
		Description: in.Description,
		Notes:       in.Notes,
		Timestamp:   l.now().UTC().Truncate(time.Millisecond),
	}
	stage, err := l.store.AppendStage(ctx, draft)
	if err != nil {
		return Stage{}, Persistence("append stage", err)
	}
	return stage, nil
}

// ListByProduct returns the product's stages, oldest first.
// An unknown product yields an empty slice and a NotFoundError.
func (l *Ledger) ListByProduct(ctx context.Context, productID ProductID) ([]Stage, error) {
	if err := l.requireProduct(ctx, productID); err != nil {
		return []Stage{}, err
	}
	return l.stagesByProduct(ctx, productID)
}

// ListByProducer returns stages across all of the producer's products,
// newest first.
func (l *Ledger) ListByProducer(ctx context.Context, producerID UserID) ([]ProductStage, error) {
	stages, err := l.store.StagesByProducer(ctx, producerID)
	if err != nil {
		return nil, Persistence("list producer stages", err)
	}
	if stages == nil {
		stages = []ProductStage{}
	}
	return stages, nil
}

// ResolveByBatchCode looks up the product behind a scanned batch code.
func (l *Ledger) ResolveByBatchCode(ctx context.Context, batchCode string) (BatchResolution, error) {
	product, err := l.store.ProductByBatchCode(ctx, batchCode)
	if err != nil {
		return nil, Persistence("find product by batch code", err)
	}
	if product == nil {
		return ProductNotFound{BatchCode: batchCode}, nil
	}

	stages, err := l.stagesByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return ProductFoundNoStages{Product: *product}, nil
	}

	annotated := make([]ProductStage, len(stages))
	for i, s := range stages {
		annotated[i] = ProductStage{Stage: s, ProductName: product.Name, BatchCode: product.BatchCode}
	}
	return ProductFoundWithStages{Product: *product, Stages: annotated}, nil
}

// VerifyIntegrity walks the stages in the order the store returns them and
// reports whether any timestamp goes backwards. The first violation ends
// the scan.
func (l *Ledger) VerifyIntegrity(ctx context.Context, productID ProductID) (Verification, error) {
	if err := l.requireProduct(ctx, productID); err != nil {
		return Verification{}, err
	}
	stages, err := l.stagesByProduct(ctx, productID)
	if err != nil {
		return Verification{}, err
	}
	return VerifySequence(stages), nil
}

// VerifySequence is the monotonicity check behind VerifyIntegrity.
func VerifySequence(stages []Stage) Verification {
	valid := true
	for i := 1; i < len(stages); i++ {
		if stages[i].Timestamp.Before(stages[i-1].Timestamp) {
			valid = false
			break
		}
	}
	v := Verification{IsValid: valid, TotalStages: len(stages), Message: IntegrityVerifiedMessage}
	if !valid {
		v.Message = IntegrityCompromisedMessage
	}
	return v
}

// AggregateByProducer groups every product of the producer with its stages
// and orders the result by stage count, richest history first. Products
// without stages are included with an empty Stages slice.
func (l *Ledger) AggregateByProducer(ctx context.Context, producerID UserID) ([]ProductHistory, error) {
	products, err := l.store.ProductsByProducer(ctx, producerID)
	if err != nil {
		return nil, Persistence("list producer products", err)
	}
	// One query for all stages, grouped below.
	feed, err := l.store.StagesByProducer(ctx, producerID)
	if err != nil {
		return nil, Persistence("list producer stages", err)
	}

	byProduct := make(map[ProductID][]Stage, len(products))
	for _, ps := range feed {
		byProduct[ps.ProductID] = append(byProduct[ps.ProductID], ps.Stage)
	}

	result := make([]ProductHistory, 0, len(products))
	for _, p := range products {
		stages := byProduct[p.ID]
		if stages == nil {
			stages = []Stage{}
		}
		sortChronological(stages)
		result = append(result, ProductHistory{Product: p, Stages: stages, StageCount: len(stages)})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StageCount > result[j].StageCount
	})
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) requireProduct(ctx context.Context, productID ProductID) error {
	p, err := l.store.Product(ctx, productID)
	if err != nil {
		return Persistence("find product", err)
	}
	if p == nil {
		return productNotFound(productID)
	}
	return nil
}

func (l *Ledger) stagesByProduct(ctx context.Context, productID ProductID) ([]Stage, error) {
	stages, err := l.store.StagesByProduct(ctx, productID)
	if err != nil {
		return nil, Persistence("list product stages", err)
	}
	if stages == nil {
		stages = []Stage{}
	}
	return stages, nil
}

func sortChronological(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].Timestamp.Equal(stages[j].Timestamp) {
			return stages[i].ID < stages[j].ID
		}
		return stages[i].Timestamp.Before(stages[j].Timestamp)
	})
}
