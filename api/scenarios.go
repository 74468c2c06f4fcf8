/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	supply-chain data for demos and mobile client development. There is no
	login flow, so each load returns bearer tokens for the seeded users.

AVAILABLE SCENARIOS:

	farm-to-table:     One batch through harvest, packing, distribution, retail
	awaiting-history:  A registered batch with no stages yet
	busy-producer:     Three products with 0, 3 and 1 stages

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create users (producer, admin, consumer)
 3. Create products
 4. Append stages through the ledger, so timestamps come from its clock
 5. Issue a token per user

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "farm-to-table"}

NOTE:

	Scenarios reset the database. The routes are mounted only when
	ENABLE_SCENARIOS=true.

SEE ALSO:
  - handlers.go: Ledger endpoints
  - auth/token.go: Token issuing
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/supplychain/traceability"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "farm-to-table",
		Name:        "Farm to Table",
		Description: "Tomato batch BATCH-001 from harvest to retail shelf",
	},
	{
		ID:          "awaiting-history",
		Name:        "Awaiting History",
		Description: "Registered batch that has not recorded any stage yet",
	},
	{
		ID:          "busy-producer",
		Name:        "Busy Producer",
		Description: "Producer with several products and uneven histories",
	},
}

type seededScenario struct {
	users    []traceability.User
	products []traceability.Product
}

type scenarioLoader func(ctx context.Context, h *Handler, s *seededScenario) error

var scenarioLoaders = map[string]scenarioLoader{
	"farm-to-table":    loadFarmToTable,
	"awaiting-history": loadAwaitingHistory,
	"busy-producer":    loadBusyProducer,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var seeded seededScenario
	if err := loader(ctx, h, &seeded); err != nil {
		h.Log.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	resp := LoadScenarioResponse{
		Users:    make([]SeededUserDTO, 0, len(seeded.users)),
		Products: make([]ProductDTO, 0, len(seeded.products)),
	}
	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			resp.Scenario = s
		}
	}
	for _, u := range seeded.users {
		token, err := h.Issuer.Issue(u)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
			return
		}
		resp.Users = append(resp.Users, SeededUserDTO{ID: u.ID, Name: u.Name, Role: u.Role, Token: token})
	}
	for _, p := range seeded.products {
		resp.Products = append(resp.Products, toProductDTO(p))
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded",
		zap.String("scenario", req.ScenarioID),
		zap.Int("users", len(seeded.users)),
		zap.Int("products", len(seeded.products)),
	)
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// LOADERS
// =============================================================================

// seedUsers creates the producer, admin and consumer every scenario uses.
func seedUsers(ctx context.Context, h *Handler, s *seededScenario, producerName string) (traceability.User, error) {
	producer, err := h.Store.SaveUser(ctx, traceability.User{
		Name: producerName, Email: "producer@example.com", Role: traceability.RoleProducer,
	})
	if err != nil {
		return traceability.User{}, err
	}
	admin, err := h.Store.SaveUser(ctx, traceability.User{
		Name: "Quality Inspector", Email: "admin@example.com", Role: traceability.RoleAdmin,
	})
	if err != nil {
		return traceability.User{}, err
	}
	consumer, err := h.Store.SaveUser(ctx, traceability.User{
		Name: "Demo Shopper", Email: "shopper@example.com", Role: traceability.RoleConsumer,
	})
	if err != nil {
		return traceability.User{}, err
	}
	s.users = append(s.users, producer, admin, consumer)
	return producer, nil
}

func seedProduct(ctx context.Context, h *Handler, s *seededScenario, p traceability.Product) (traceability.Product, error) {
	p, err := h.Store.SaveProduct(ctx, p)
	if err != nil {
		return traceability.Product{}, err
	}
	s.products = append(s.products, p)
	return p, nil
}

type stageSeed struct {
	name, location, description, notes string
}

func seedStages(ctx context.Context, h *Handler, p traceability.Product, actor traceability.UserID, stages []stageSeed) error {
	for _, st := range stages {
		_, err := h.Ledger.Append(ctx, traceability.StageInput{
			ProductID:   p.ID,
			StageName:   st.name,
			Location:    st.location,
			ActorID:     actor,
			Description: st.description,
			Notes:       st.notes,
		})
		if err != nil {
			return fmt.Errorf("append %q to %s: %w", st.name, p.BatchCode, err)
		}
	}
	return nil
}

func loadFarmToTable(ctx context.Context, h *Handler, s *seededScenario) error {
	producer, err := seedUsers(ctx, h, s, "Green Acres Farm")
	if err != nil {
		return err
	}
	tomatoes, err := seedProduct(ctx, h, s, traceability.Product{
		Name:        "Organic Tomatoes",
		BatchCode:   "BATCH-001",
		Description: "Vine-ripened heirloom tomatoes",
		CreatedBy:   producer.ID,
	})
	if err != nil {
		return err
	}
	return seedStages(ctx, h, tomatoes, producer.ID, []stageSeed{
		{"Harvesting", "Green Acres Farm, Field 7", "Hand-picked at peak ripeness", ""},
		{"Processing", "Valley Packhouse", "Washed, sorted and packed", "Cold chain at 10°C"},
		{"Distribution", "Regional Distribution Hub", "", "Truck DX-42"},
		{"Retail", "FreshMart Downtown", "On shelf", ""},
	})
}

func loadAwaitingHistory(ctx context.Context, h *Handler, s *seededScenario) error {
	producer, err := seedUsers(ctx, h, s, "Hill Farm")
	if err != nil {
		return err
	}
	_, err = seedProduct(ctx, h, s, traceability.Product{
		Name:      "Free-range Eggs",
		BatchCode: "BATCH-NEW-001",
		CreatedBy: producer.ID,
	})
	return err
}

func loadBusyProducer(ctx context.Context, h *Handler, s *seededScenario) error {
	producer, err := seedUsers(ctx, h, s, "Riverside Orchards")
	if err != nil {
		return err
	}

	catalog := []struct {
		product traceability.Product
		stages  []stageSeed
	}{
		{
			product: traceability.Product{Name: "Pears", BatchCode: "PEAR-2025-01", CreatedBy: producer.ID},
		},
		{
			product: traceability.Product{Name: "Apples", BatchCode: "APPLE-2025-01", CreatedBy: producer.ID},
			stages: []stageSeed{
				{"Harvesting", "North Orchard", "", ""},
				{"Storage", "Controlled-atmosphere store", "", "2% O2"},
				{"Shipping", "Port of Rotterdam", "", ""},
			},
		},
		{
			product: traceability.Product{Name: "Cherries", BatchCode: "CHERRY-2025-01", CreatedBy: producer.ID},
			stages: []stageSeed{
				{"Harvesting", "South Orchard", "", ""},
			},
		},
	}

	for _, item := range catalog {
		p, err := seedProduct(ctx, h, s, item.product)
		if err != nil {
			return err
		}
		if err := seedStages(ctx, h, p, producer.ID, item.stages); err != nil {
			return err
		}
	}
	return nil
}
