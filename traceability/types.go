/*
Package traceability provides the supply-chain stage ledger.

PURPOSE:
  Products move through supply-chain steps (harvesting, processing,
  packaging, shipping). Each step is recorded as a Stage: an immutable,
  timestamped record attributed to the actor who reported it. The ledger
  answers "where has this product been, and in what order?"

KEY CONCEPTS IN THIS FILE (types.go):
  - Stage:        One immutable step record
  - ProductStage: A Stage annotated with its product's name and batch code
  - Product:      The product a stage belongs to (owned by the directory)
  - User:         The actor recorded as updated_by

IDENTIFIERS:
  IDs are store-assigned integers. StageID is monotonically increasing,
  so insertion order is recoverable even when timestamps tie.

TIMESTAMPS:
  Stage timestamps are assigned by the ledger clock at append time,
  truncated to milliseconds and kept in UTC. Their wire form is the
  ISO-8601 layout in TimestampLayout (e.g. 2024-01-15T10:00:00.000Z).

SEE ALSO:
  - ledger.go: Operations over stages
  - store.go: Persistence interfaces
  - resolution.go: Batch-code lookup result type
*/
package traceability

import (
	"strconv"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StageID int64
type ProductID int64
type UserID int64

func (id StageID) String() string   { return strconv.FormatInt(int64(id), 10) }
func (id ProductID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id UserID) String() string    { return strconv.FormatInt(int64(id), 10) }

// ParseProductID parses a path parameter into a ProductID.
func ParseProductID(s string) (ProductID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "product_id", Message: "must be a positive integer"}
	}
	return ProductID(n), nil
}

// =============================================================================
// TIME
// =============================================================================

// TimestampLayout is the wire form of stage timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// Clock returns the current time. The ledger truncates it to milliseconds.
type Clock func() time.Time

// =============================================================================
// STAGE - One immutable supply-chain record
// =============================================================================

// Stage is a single supply-chain step for a product.
// Once appended it is never modified or removed.
type Stage struct {
	ID            StageID
	ProductID     ProductID
	StageName     string
	Location      string
	UpdatedBy     UserID
	UpdatedByName string // joined from the user directory on read
	Description   string
	Notes         string
	Timestamp     time.Time
}

// BlockHash returns the display hash for the stage. See BlockHash.
func (s Stage) BlockHash() string {
	return BlockHash(s.ID.String(), FormatTimestamp(s.Timestamp))
}

// StageDraft is what gets persisted by Store.AppendStage.
// The store assigns the ID; the ledger assigns the Timestamp.
type StageDraft struct {
	ProductID   ProductID
	StageName   string
	Location    string
	UpdatedBy   UserID
	Description string
	Notes       string
	Timestamp   time.Time
}

// ProductStage is a Stage annotated with product fields for display.
type ProductStage struct {
	Stage
	ProductName string
	BatchCode   string
}

// =============================================================================
// PRODUCT / USER - Directory records referenced by stages
// =============================================================================

type Product struct {
	ID          ProductID
	Name        string
	BatchCode   string
	Description string
	CreatedBy   UserID
	CreatedAt   time.Time
}

type Role string

const (
	RoleProducer Role = "producer"
	RoleAdmin    Role = "admin"
	RoleConsumer Role = "consumer"
)

type User struct {
	ID        UserID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}
