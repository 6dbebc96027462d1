package snapshot

import "fmt"

type Reason string

const (
	ReasonProductMissing  Reason = "product_missing"
	ReasonFetchFailed     Reason = "fetch_failed"
	ReasonIncomplete      Reason = "incomplete_product"
	ReasonInvalidPrice    Reason = "invalid_price"
	ReasonInvalidQuantity Reason = "invalid_quantity"
	ReasonFeeLookupFailed Reason = "fee_lookup_failed"
)

// Diagnostic reports a cart line that was dropped or priced with fallback
// data while building a snapshot.
type Diagnostic struct {
	ProductID string
	Reason    Reason
	Err       error
}

// Dropped reports whether the line was left out of the snapshot.
func (d Diagnostic) Dropped() bool {
	return d.Reason != ReasonFeeLookupFailed
}

func (d Diagnostic) String() string {
	if d.Err != nil {
		return fmt.Sprintf("product %s: %s: %v", d.ProductID, d.Reason, d.Err)
	}
	return fmt.Sprintf("product %s: %s", d.ProductID, d.Reason)
}
