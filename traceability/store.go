/*
store.go - Persistence interfaces for stages and the records they reference

APPEND-ONLY CONTRACT:
  StageStore has exactly one write: AppendStage. There is no update and no
  delete. The store assigns the stage ID; the ledger assigns the timestamp.

REFERENTIAL INTEGRITY:
  AppendStage must fail with a PersistenceError when the product or the
  actor does not exist. The ledger relies on this instead of checking.

ORDERING:
  StagesByProduct:  timestamp ASC, id ASC   (journey)
  StagesByProducer: timestamp DESC, id DESC (latest activity first)

IMPLEMENTATIONS:
  - store/sqlite:           SQLite (dev, tests)
  - store/mysql:            MySQL (production)
  - traceability/store:     In-memory (tests)
*/
package traceability

import "context"

// StageStore persists stages.
type StageStore interface {
	// AppendStage persists a new stage and returns it with ID and
	// UpdatedByName populated. This is the ONLY write operation.
	AppendStage(ctx context.Context, draft StageDraft) (Stage, error)

	// StagesByProduct returns a product's stages, oldest first.
	StagesByProduct(ctx context.Context, productID ProductID) ([]Stage, error)

	// StagesByProducer returns stages of every product created by
	// producerID, newest first, annotated with product name and batch code.
	StagesByProducer(ctx context.Context, producerID UserID) ([]ProductStage, error)
}

// ProductDirectory resolves products. Lookups return (nil, nil) when the
// product does not exist.
type ProductDirectory interface {
	Product(ctx context.Context, id ProductID) (*Product, error)
	ProductByBatchCode(ctx context.Context, batchCode string) (*Product, error)
	ProductsByProducer(ctx context.Context, producerID UserID) ([]Product, error)
	Products(ctx context.Context) ([]Product, error)
}

// Store is everything the ledger reads and writes.
type Store interface {
	StageStore
	ProductDirectory
}

// AdminStore adds the directory writes used for seeding demo data.
// Products and users are owned elsewhere in production; these exist so a
// fresh database can be populated.
type AdminStore interface {
	Store
	SaveUser(ctx context.Context, u User) (User, error)
	User(ctx context.Context, id UserID) (*User, error)
	SaveProduct(ctx context.Context, p Product) (Product, error)
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
}
