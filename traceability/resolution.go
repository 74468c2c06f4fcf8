package traceability

// BatchResolution is the outcome of ResolveByBatchCode. It is one of:
//
//	ProductNotFound         no product carries the batch code
//	ProductFoundNoStages    the product exists but has no history yet
//	ProductFoundWithStages  the product and its stages, oldest first
//
// Consumers must tell all three apart, so callers branch with a type
// switch rather than inspecting an empty list.
type BatchResolution interface {
	batchResolution()
}

type ProductNotFound struct {
	BatchCode string
}

type ProductFoundNoStages struct {
	Product Product
}

type ProductFoundWithStages struct {
	Product Product
	Stages  []ProductStage
}

func (ProductNotFound) batchResolution()        {}
func (ProductFoundNoStages) batchResolution()   {}
func (ProductFoundWithStages) batchResolution() {}
