package traceability

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductStats summarizes a product's stage history.
// FirstStageAt and LastStageAt are nil when there are no stages.
type ProductStats struct {
	TotalStages        int
	FirstStageAt       *time.Time
	LastStageAt        *time.Time
	UniqueContributors int
}

// Stats computes ProductStats from the product's stages.
func (l *Ledger) Stats(ctx context.Context, productID ProductID) (ProductStats, error) {
	stages, err := l.ListByProduct(ctx, productID)
	if err != nil {
		return ProductStats{}, err
	}

	stats := ProductStats{TotalStages: len(stages)}
	contributors := make(map[UserID]struct{})
	for i := range stages {
		ts := stages[i].Timestamp
		if stats.FirstStageAt == nil || ts.Before(*stats.FirstStageAt) {
			stats.FirstStageAt = &ts
		}
		if stats.LastStageAt == nil || ts.After(*stats.LastStageAt) {
			stats.LastStageAt = &ts
		}
		contributors[stages[i].UpdatedBy] = struct{}{}
	}
	stats.UniqueContributors = len(contributors)
	return stats, nil
}

// ProducerSummary is the dashboard header for a producer.
type ProducerSummary struct {
	TotalProducts           int
	ProductsWithStages      int
	TotalStages             int
	AverageStagesPerProduct decimal.Decimal // rounded to 2 places
}

// ProducerSummary aggregates the producer's products and stages.
func (l *Ledger) ProducerSummary(ctx context.Context, producerID UserID) (ProducerSummary, error) {
	histories, err := l.AggregateByProducer(ctx, producerID)
	if err != nil {
		return ProducerSummary{}, err
	}

	summary := ProducerSummary{TotalProducts: len(histories), AverageStagesPerProduct: decimal.Zero}
	for _, h := range histories {
		summary.TotalStages += h.StageCount
		if h.StageCount > 0 {
			summary.ProductsWithStages++
		}
	}
	if summary.TotalProducts > 0 {
		summary.AverageStagesPerProduct = decimal.NewFromInt(int64(summary.TotalStages)).
			DivRound(decimal.NewFromInt(int64(summary.TotalProducts)), 2)
	}
	return summary, nil
}
