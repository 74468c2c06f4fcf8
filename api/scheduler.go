/*
scheduler.go - Periodic integrity auditor

PURPOSE:
  Runs VerifyIntegrity over every product on a fixed interval and logs the
  products whose stored timestamps go backwards. The ledger never repairs
  anything; the auditor only reports.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A product that fails to load is counted and skipped, the run continues
  - The last report is kept for RunNow callers and tests

CONFIGURATION:
  - Interval: How often to audit (AUDIT_INTERVAL, 0 disables)

USAGE:
  auditor := NewIntegrityAuditor(ledger, store, log, time.Hour)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - handlers.go: VerifyIntegrity endpoint (single product, on demand)
  - traceability/ledger.go: VerifySequence
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/supplychain/traceability"
)

// AuditReport summarizes one auditor run.
type AuditReport struct {
	RunAt       time.Time
	Checked     int
	Compromised []traceability.ProductID
	Failed      int
}

// IntegrityAuditor periodically verifies every product's stage sequence.
type IntegrityAuditor struct {
	Ledger   *traceability.Ledger
	Products traceability.ProductDirectory
	Log      *zap.Logger
	Interval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     AuditReport
}

// NewIntegrityAuditor creates an auditor. It does nothing until Start.
func NewIntegrityAuditor(ledger *traceability.Ledger, products traceability.ProductDirectory, log *zap.Logger, interval time.Duration) *IntegrityAuditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntegrityAuditor{
		Ledger:   ledger,
		Products: products,
		Log:      log.Named("auditor"),
		Interval: interval,
	}
}

// Start begins the auditor. A non-positive interval leaves it disabled.
func (a *IntegrityAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Interval <= 0 {
		a.Log.Info("disabled, not starting")
		return
	}
	if a.ticker != nil {
		return
	}

	a.ticker = time.NewTicker(a.Interval)
	a.stop = make(chan struct{})
	a.wg.Add(1)

	go a.run()

	a.Log.Info("started", zap.Duration("interval", a.Interval))
}

// Stop stops the auditor and waits for an in-flight run to finish.
func (a *IntegrityAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.ticker = nil
		a.Log.Info("stopped")
	}
}

func (a *IntegrityAuditor) run() {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-a.stop
		cancel()
	}()

	a.RunNow(ctx)

	for {
		select {
		case <-a.ticker.C:
			a.RunNow(ctx)
		case <-a.stop:
			return
		}
	}
}

// RunNow audits every product once and returns the report.
func (a *IntegrityAuditor) RunNow(ctx context.Context) AuditReport {
	report := AuditReport{RunAt: time.Now().UTC()}

	products, err := a.Products.Products(ctx)
	if err != nil {
		a.Log.Error("listing products failed", zap.Error(err))
		report.Failed++
		a.setLast(report)
		return report
	}

	for _, p := range products {
		if ctx.Err() != nil {
			break
		}
		v, err := a.Ledger.VerifyIntegrity(ctx, p.ID)
		if err != nil {
			a.Log.Warn("verify failed",
				zap.Int64("product_id", int64(p.ID)),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		report.Checked++
		if !v.IsValid {
			a.Log.Warn("integrity compromised",
				zap.Int64("product_id", int64(p.ID)),
				zap.String("batch_code", p.BatchCode),
				zap.Int("total_stages", v.TotalStages),
			)
			report.Compromised = append(report.Compromised, p.ID)
		}
	}

	a.Log.Info("audit complete",
		zap.Int("checked", report.Checked),
		zap.Int("compromised", len(report.Compromised)),
		zap.Int("failed", report.Failed),
	)
	a.setLast(report)
	return report
}

// LastReport returns the most recent run's report.
func (a *IntegrityAuditor) LastReport() AuditReport {
	a.reportMu.RLock()
	defer a.reportMu.RUnlock()
	return a.last
}

func (a *IntegrityAuditor) setLast(r AuditReport) {
	a.reportMu.Lock()
	a.last = r
	a.reportMu.Unlock()
}
