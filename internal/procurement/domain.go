package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/workflow"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft             POStatus = "draft"
	POStatusApproved          POStatus = "approved"
	POStatusOrdered           POStatus = "ordered"
	POStatusPartiallyReceived POStatus = "partially_received"
	POStatusCompleted         POStatus = "completed"
	POStatusCancelled         POStatus = "cancelled"
)

// POTransitions is the purchase order state machine. completed and
// cancelled are terminal.
var POTransitions = workflow.Table[POStatus]{
	POStatusDraft:             {POStatusApproved, POStatusCancelled},
	POStatusApproved:          {POStatusOrdered, POStatusCancelled},
	POStatusOrdered:           {POStatusPartiallyReceived, POStatusCompleted, POStatusCancelled},
	POStatusPartiallyReceived: {POStatusCompleted, POStatusCancelled},
}

// Supplier confirmation states. Receiving is only possible once the
// supplier has confirmed, with or without a date.
type ConfirmationState string

const (
	ConfirmationUnconfirmed  ConfirmationState = "unconfirmed"
	ConfirmationWithDate     ConfirmationState = "confirmed_with_date"
	ConfirmationUndetermined ConfirmationState = "confirmed_undetermined"
)

// Goods receipt lifecycle statuses.
type GRStatus string

const (
	GRStatusDraft     GRStatus = "draft"
	GRStatusCompleted GRStatus = "completed"
	GRStatusCancelled GRStatus = "cancelled"
)

// GRTransitions is the goods receipt state machine.
var GRTransitions = workflow.Table[GRStatus]{
	GRStatusDraft: {GRStatusCompleted, GRStatusCancelled},
}

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID                int64             `json:"id"`
	Number            string            `json:"number"`
	SupplierID        int64             `json:"supplier_id"`
	Status            POStatus          `json:"status"`
	ConfirmationState ConfirmationState `json:"confirmation_state"`
	ExpectedDate      *time.Time        `json:"expected_date,omitempty"`
	OrderedAt         *time.Time        `json:"ordered_at,omitempty"`
	Notes             string            `json:"notes"`
	CreatedBy         int64             `json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Receivable reports whether goods may be received against the order.
func (po PurchaseOrder) Receivable() bool {
	statusOK := po.Status == POStatusOrdered || po.Status == POStatusPartiallyReceived
	confirmationOK := po.ConfirmationState == ConfirmationWithDate || po.ConfirmationState == ConfirmationUndetermined
	return statusOK && confirmationOK
}

// POItem is a purchase order line.
type POItem struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	ProductID   int64           `json:"product_id"`
	OrderedQty  float64         `json:"ordered_qty"`
	ReceivedQty float64         `json:"received_qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// OrderTotal sums ordered quantity times unit price across the lines.
func OrderTotal(items []POItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.OrderedQty).Mul(item.UnitPrice))
	}
	return total
}

// FullyReceived reports whether every line has received at least its
// ordered quantity. An order without lines is never fully received.
func FullyReceived(items []POItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.ReceivedQty < item.OrderedQty {
			return false
		}
	}
	return true
}

// GoodsReceipt domain model.
type GoodsReceipt struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	POID      int64     `json:"po_id,omitempty"`
	Status    GRStatus  `json:"status"`
	Notes     string    `json:"notes"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GRItem is a goods receipt line targeting a bin, optionally batched.
type GRItem struct {
	ID          int64      `json:"id"`
	ReceiptID   int64      `json:"receipt_id"`
	ProductID   int64      `json:"product_id"`
	BinID       int64      `json:"bin_id"`
	Qty         float64    `json:"qty"`
	BatchNumber string     `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// EntityTypePO is the approval gate entity type for purchase orders.
const EntityTypePO = "purchase_order"
