/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines request/response structures for JSON serialization.
  Keeps API contracts separate from domain models.

NAMING:
  Stage and product fields are snake_case (stage_name, batch_code).
  Computed fields added by the API are camelCase (blockHash, stageCount,
  isValid, noStages, productNotFound). Mobile clients depend on both.

NULLS:
  description and notes are null, never "", when not recorded.
  Timestamps are strings in traceability.TimestampLayout.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/supplychain/traceability"
)

// =============================================================================
// STAGE DTOs
// =============================================================================

// StageDTO is one ledger entry. ProductName and BatchCode are set on
// producer feeds only.
type StageDTO struct {
	ID            traceability.StageID   `json:"id"`
	ProductID     traceability.ProductID `json:"product_id"`
	StageName     string                 `json:"stage_name"`
	Location      string                 `json:"location"`
	UpdatedBy     traceability.UserID    `json:"updated_by"`
	UpdatedByName string                 `json:"updated_by_name"`
	Description   *string                `json:"description"`
	Notes         *string                `json:"notes"`
	Timestamp     string                 `json:"timestamp"`
	ProductName   string                 `json:"product_name,omitempty"`
	BatchCode     string                 `json:"batch_code,omitempty"`
}

// AppendStageRequest is the body of POST /api/supply-chain/{product_id}.
type AppendStageRequest struct {
	StageName   string `json:"stage_name"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type AppendStageResponse struct {
	Message   string   `json:"message"`
	Stage     StageDTO `json:"stage"`
	BlockHash string   `json:"blockHash"`
}

// =============================================================================
// PRODUCT DTOs
// =============================================================================

type ProductDTO struct {
	ID          traceability.ProductID `json:"id"`
	Name        string                 `json:"name"`
	BatchCode   string                 `json:"batch_code"`
	Description *string                `json:"description"`
	CreatedBy   traceability.UserID    `json:"created_by"`
	CreatedAt   string                 `json:"created_at"`
}

// ProductWithStagesDTO flattens the product fields next to its stages.
type ProductWithStagesDTO struct {
	ProductDTO
	Stages     []StageDTO `json:"stages"`
	StageCount int        `json:"stageCount"`
}

// BatchNotFoundResponse is served with 404 for an unknown batch code.
type BatchNotFoundResponse struct {
	ProductNotFound bool `json:"productNotFound"`
}

// BatchNoStagesResponse is served for a known batch with no history yet.
// A batch with history is served as a bare []StageDTO.
type BatchNoStagesResponse struct {
	Product  ProductDTO `json:"product"`
	Stages   []StageDTO `json:"stages"`
	NoStages bool       `json:"noStages"`
}

// =============================================================================
// INTEGRITY & STATS DTOs
// =============================================================================

type VerifyResponse struct {
	IsValid     bool   `json:"isValid"`
	TotalStages int    `json:"totalStages"`
	Message     string `json:"message"`
}

type StatsResponse struct {
	TotalStages        int     `json:"total_stages"`
	FirstStageDate     *string `json:"first_stage_date"`
	LastStageDate      *string `json:"last_stage_date"`
	UniqueContributors int     `json:"unique_contributors"`
}

type ProducerSummaryResponse struct {
	TotalProducts           int             `json:"total_products"`
	ProductsWithStages      int             `json:"products_with_stages"`
	TotalStages             int             `json:"total_stages"`
	AverageStagesPerProduct decimal.Decimal `json:"average_stages_per_product"`
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// SeededUserDTO carries a ready-to-use bearer token for a demo user.
type SeededUserDTO struct {
	ID    traceability.UserID `json:"id"`
	Name  string              `json:"name"`
	Role  traceability.Role   `json:"role"`
	Token string              `json:"token"`
}

type LoadScenarioResponse struct {
	Scenario ScenarioDTO     `json:"scenario"`
	Users    []SeededUserDTO `json:"users"`
	Products []ProductDTO    `json:"products"`
}

// =============================================================================
// COMMON DTOs
// =============================================================================

type HealthResponse struct {
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Audit  *AuditDTO `json:"audit,omitempty"`
}

// AuditDTO is the integrity auditor's most recent run.
type AuditDTO struct {
	RunAt       string                   `json:"runAt"`
	Checked     int                      `json:"checked"`
	Compromised []traceability.ProductID `json:"compromised"`
	Failed      int                      `json:"failed"`
}

type UserDTO struct {
	ID        traceability.UserID `json:"id"`
	Name      string              `json:"name"`
	Email     *string             `json:"email"`
	Role      traceability.Role   `json:"role"`
	CreatedAt string              `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toStageDTO(s traceability.Stage) StageDTO {
	return StageDTO{
		ID:            s.ID,
		ProductID:     s.ProductID,
		StageName:     s.StageName,
		Location:      s.Location,
		UpdatedBy:     s.UpdatedBy,
		UpdatedByName: s.UpdatedByName,
		Description:   nullable(s.Description),
		Notes:         nullable(s.Notes),
		Timestamp:     traceability.FormatTimestamp(s.Timestamp),
	}
}

func toStageDTOs(stages []traceability.Stage) []StageDTO {
	dtos := make([]StageDTO, len(stages))
	for i, s := range stages {
		dtos[i] = toStageDTO(s)
	}
	return dtos
}

func toProductStageDTOs(stages []traceability.ProductStage) []StageDTO {
	dtos := make([]StageDTO, len(stages))
	for i, ps := range stages {
		dtos[i] = toStageDTO(ps.Stage)
		dtos[i].ProductName = ps.ProductName
		dtos[i].BatchCode = ps.BatchCode
	}
	return dtos
}

func toProductDTO(p traceability.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		BatchCode:   p.BatchCode,
		Description: nullable(p.Description),
		CreatedBy:   p.CreatedBy,
		CreatedAt:   traceability.FormatTimestamp(p.CreatedAt),
	}
}

func toUserDTO(u traceability.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     nullable(u.Email),
		Role:      u.Role,
		CreatedAt: traceability.FormatTimestamp(u.CreatedAt),
	}
}

func toAuditDTO(r AuditReport) *AuditDTO {
	compromised := r.Compromised
	if compromised == nil {
		compromised = []traceability.ProductID{}
	}
	return &AuditDTO{
		RunAt:       traceability.FormatTimestamp(r.RunAt),
		Checked:     r.Checked,
		Compromised: compromised,
		Failed:      r.Failed,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := traceability.FormatTimestamp(*t)
	return &s
}
