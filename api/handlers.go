/*
handlers.go - HTTP API handlers for the supply-chain stage ledger

PURPOSE:
  Exposes traceability.Ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger.

ENDPOINTS:
  Stages:
    POST   /api/supply-chain/{product_id}         Append a stage (producer/admin)
    GET    /api/supply-chain/{product_id}         Product journey, oldest first
    GET    /api/supply-chain/{product_id}/stats   Journey statistics
    GET    /api/supply-chain/{product_id}/verify  Timestamp integrity check

  Consumers:
    GET    /api/supply-chain/batch/{batch_code}   Scan lookup (tri-state)

  Callers (authenticated):
    GET    /api/me                                         Stored profile of the token holder

  Producers (authenticated):
    GET    /api/supply-chain/producer/stages               Feed, newest first
    GET    /api/supply-chain/producer/products-with-stages Products by history size
    GET    /api/supply-chain/producer/summary              Totals and average

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Ledger: Stage ledger operations
  - Store:  Admin access for scenarios and health
  - Issuer: Token issuing for scenario users
  - Auditor: Optional; its last report is shown on /api/health

ERROR HANDLING:
  Errors are returned as JSON {error, details}:
  - 400: Validation errors, malformed product_id or body
  - 401/403: Missing token / wrong role (auth middleware)
  - 404: Unknown product
  - 413: Request body over maxBodyBytes
  - 500: Store failures, including foreign key violations on append

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - traceability/ledger.go: Ledger operations
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/supplychain/auth"
	"github.com/warp/supplychain/traceability"
)

const stageAddedMessage = "Supply chain stage added successfully"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *traceability.Ledger
	Store  traceability.AdminStore
	Issuer *auth.Issuer
	Log    *zap.Logger

	// Auditor is set by the server binary; nil in most tests.
	Auditor *IntegrityAuditor

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler whose ledger runs on store.
func NewHandler(store traceability.AdminStore, issuer *auth.Issuer, log *zap.Logger, opts ...traceability.Option) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Ledger: traceability.NewLedger(store, opts...),
		Store:  store,
		Issuer: issuer,
		Log:    log,
	}
}

// =============================================================================
// STAGE ENDPOINTS
// =============================================================================

// AppendStage records a new stage for a product.
// POST /api/supply-chain/{product_id}
func (h *Handler) AppendStage(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required", nil)
		return
	}

	var req AppendStageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := traceability.StageInput{
		ProductID:   productID,
		StageName:   req.StageName,
		Location:    req.Location,
		ActorID:     caller.UserID,
		Description: req.Description,
		Notes:       req.Notes,
	}
	if err := in.Validate(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	stage, err := h.Ledger.Append(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AppendStageResponse{
		Message:   stageAddedMessage,
		Stage:     toStageDTO(stage),
		BlockHash: stage.BlockHash(),
	})
}

// ListStages returns a product's journey, oldest first.
// GET /api/supply-chain/{product_id}
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	stages, err := h.Ledger.ListByProduct(r.Context(), productID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStageDTOs(stages))
}

// GetStats returns journey statistics.
// GET /api/supply-chain/{product_id}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	stats, err := h.Ledger.Stats(r.Context(), productID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalStages:        stats.TotalStages,
		FirstStageDate:     formatOptional(stats.FirstStageAt),
		LastStageDate:      formatOptional(stats.LastStageAt),
		UniqueContributors: stats.UniqueContributors,
	})
}

// VerifyIntegrity checks that stored timestamps never decrease.
// GET /api/supply-chain/{product_id}/verify
func (h *Handler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	v, err := h.Ledger.VerifyIntegrity(r.Context(), productID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		IsValid:     v.IsValid,
		TotalStages: v.TotalStages,
		Message:     v.Message,
	})
}

// =============================================================================
// CONSUMER ENDPOINTS
// =============================================================================

// ResolveBatch serves a consumer scan. The three outcomes have distinct
// shapes; see dto.go.
// GET /api/supply-chain/batch/{batch_code}
func (h *Handler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	batchCode, err := pathParam(r, "batch_code")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch_code", err)
		return
	}

	res, err := h.Ledger.ResolveByBatchCode(r.Context(), batchCode)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	switch res := res.(type) {
	case traceability.ProductNotFound:
		writeJSON(w, http.StatusNotFound, BatchNotFoundResponse{ProductNotFound: true})
	case traceability.ProductFoundNoStages:
		writeJSON(w, http.StatusOK, BatchNoStagesResponse{
			Product:  toProductDTO(res.Product),
			Stages:   []StageDTO{},
			NoStages: true,
		})
	case traceability.ProductFoundWithStages:
		writeJSON(w, http.StatusOK, toProductStageDTOs(res.Stages))
	default:
		h.writeLedgerError(w, r, errors.New("unhandled batch resolution"))
	}
}

// =============================================================================
// CALLER PROFILE
// =============================================================================

// Me returns the stored user behind the bearer token. A token can outlive
// its user after a scenario reset, which is reported as 404.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required", nil)
		return
	}

	u, err := h.Store.User(r.Context(), caller.UserID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if u == nil {
		h.writeLedgerError(w, r, &traceability.NotFoundError{Resource: "user", Key: caller.UserID.String()})
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// =============================================================================
// PRODUCER ENDPOINTS
// =============================================================================

// ListProducerStages returns the caller's feed, newest first.
// GET /api/supply-chain/producer/stages
func (h *Handler) ListProducerStages(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required", nil)
		return
	}

	stages, err := h.Ledger.ListByProducer(r.Context(), caller.UserID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductStageDTOs(stages))
}

// ListProductsWithStages returns the caller's products, richest history first.
// GET /api/supply-chain/producer/products-with-stages
func (h *Handler) ListProductsWithStages(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required", nil)
		return
	}

	histories, err := h.Ledger.AggregateByProducer(r.Context(), caller.UserID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]ProductWithStagesDTO, len(histories))
	for i, ph := range histories {
		dtos[i] = ProductWithStagesDTO{
			ProductDTO: toProductDTO(ph.Product),
			Stages:     toStageDTOs(ph.Stages),
			StageCount: ph.StageCount,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProducerSummary returns totals across the caller's products.
// GET /api/supply-chain/producer/summary
func (h *Handler) GetProducerSummary(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required", nil)
		return
	}

	s, err := h.Ledger.ProducerSummary(r.Context(), caller.UserID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProducerSummaryResponse{
		TotalProducts:           s.TotalProducts,
		ProductsWithStages:      s.ProductsWithStages,
		TotalStages:             s.TotalStages,
		AverageStagesPerProduct: s.AverageStagesPerProduct,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store is reachable.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	resp := HealthResponse{Status: "ok"}
	if h.Auditor != nil {
		if last := h.Auditor.LastReport(); !last.RunAt.IsZero() {
			resp.Audit = toAuditDTO(last)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func productIDParam(w http.ResponseWriter, r *http.Request) (traceability.ProductID, bool) {
	id, err := traceability.ParseProductID(chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product_id", err)
		return 0, false
	}
	return id, true
}

// pathParam returns a decoded URL parameter. chi matches against RawPath
// when the request carries escaped slashes, leaving the value encoded.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

// decodeBody reads a size-capped JSON body into dst. It writes the error
// response itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeLedgerError maps the ledger's error kinds to HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case traceability.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case traceability.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		h.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
