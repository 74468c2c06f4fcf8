// Package store provides an in-memory traceability.AdminStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/supplychain/traceability"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	stages   []traceability.Stage // insertion order
	products map[traceability.ProductID]traceability.Product
	users    map[traceability.UserID]traceability.User

	nextStage   traceability.StageID
	nextProduct traceability.ProductID
	nextUser    traceability.UserID
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.stages = nil
	m.products = make(map[traceability.ProductID]traceability.Product)
	m.users = make(map[traceability.UserID]traceability.User)
	m.nextStage, m.nextProduct, m.nextUser = 1, 1, 1
}

// AppendStage adds a stage. Append-only.
func (m *Memory) AppendStage(_ context.Context, d traceability.StageDraft) (traceability.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[d.ProductID]; !ok {
		return traceability.Stage{}, fmt.Errorf("product %d: %w", d.ProductID, traceability.ErrForeignKey)
	}
	user, ok := m.users[d.UpdatedBy]
	if !ok {
		return traceability.Stage{}, fmt.Errorf("user %d: %w", d.UpdatedBy, traceability.ErrForeignKey)
	}

	s := traceability.Stage{
		ID:            m.nextStage,
		ProductID:     d.ProductID,
		StageName:     d.StageName,
		Location:      d.Location,
		UpdatedBy:     d.UpdatedBy,
		UpdatedByName: user.Name,
		Description:   d.Description,
		Notes:         d.Notes,
		Timestamp:     d.Timestamp,
	}
	m.nextStage++
	m.stages = append(m.stages, s)
	return s, nil
}

func (m *Memory) StagesByProduct(_ context.Context, productID traceability.ProductID) ([]traceability.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []traceability.Stage{}
	for _, s := range m.stages {
		if s.ProductID == productID {
			result = append(result, s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return before(result[i].Timestamp, result[i].ID, result[j].Timestamp, result[j].ID)
	})
	return result, nil
}

func (m *Memory) StagesByProducer(_ context.Context, producerID traceability.UserID) ([]traceability.ProductStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []traceability.ProductStage{}
	for _, s := range m.stages {
		p := m.products[s.ProductID]
		if p.CreatedBy != producerID {
			continue
		}
		result = append(result, traceability.ProductStage{Stage: s, ProductName: p.Name, BatchCode: p.BatchCode})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return before(result[j].Timestamp, result[j].ID, result[i].Timestamp, result[i].ID)
	})
	return result, nil
}

func before(ti time.Time, idi traceability.StageID, tj time.Time, idj traceability.StageID) bool {
	if ti.Equal(tj) {
		return idi < idj
	}
	return ti.Before(tj)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) Product(_ context.Context, id traceability.ProductID) (*traceability.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ProductByBatchCode(_ context.Context, batchCode string) (*traceability.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.products {
		if p.BatchCode == batchCode {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) ProductsByProducer(_ context.Context, producerID traceability.UserID) ([]traceability.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []traceability.Product{}
	for _, p := range m.products {
		if p.CreatedBy == producerID {
			result = append(result, p)
		}
	}
	sortProducts(result)
	return result, nil
}

func (m *Memory) Products(_ context.Context) ([]traceability.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]traceability.Product, 0, len(m.products))
	for _, p := range m.products {
		result = append(result, p)
	}
	sortProducts(result)
	return result, nil
}

func sortProducts(ps []traceability.Product) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

// SaveProduct inserts a product and assigns its ID.
func (m *Memory) SaveProduct(_ context.Context, p traceability.Product) (traceability.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[p.CreatedBy]; !ok {
		return traceability.Product{}, fmt.Errorf("user %d: %w", p.CreatedBy, traceability.ErrForeignKey)
	}
	for _, existing := range m.products {
		if existing.BatchCode == p.BatchCode {
			return traceability.Product{}, fmt.Errorf("%s: %w", p.BatchCode, traceability.ErrDuplicateBatchCode)
		}
	}
	p.ID = m.nextProduct
	m.nextProduct++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.products[p.ID] = p
	return p, nil
}

// SaveUser inserts a user and assigns its ID.
func (m *Memory) SaveUser(_ context.Context, u traceability.User) (traceability.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.ID = m.nextUser
	m.nextUser++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) User(_ context.Context, id traceability.UserID) (*traceability.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Reset clears all data. Dev only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }
