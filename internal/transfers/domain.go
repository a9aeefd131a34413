package transfers

import (
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/workflow"
)

// Stock transfer lifecycle statuses. Transfers move stock between bins of
// one warehouse and complete in a single step.
type TransferStatus string

const (
	TransferStatusDraft     TransferStatus = "draft"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// TransferTransitions is the stock transfer state machine.
var TransferTransitions = workflow.Table[TransferStatus]{
	TransferStatusDraft: {TransferStatusCompleted, TransferStatusCancelled},
}

// Inter-warehouse transfer lifecycle statuses. Goods spend time on a truck,
// so the machine carries an in_transit stage backed by reservations at the
// source bins.
type IWTStatus string

const (
	IWTStatusDraft     IWTStatus = "draft"
	IWTStatusInTransit IWTStatus = "in_transit"
	IWTStatusCompleted IWTStatus = "completed"
	IWTStatusCancelled IWTStatus = "cancelled"
)

// IWTTransitions is the inter-warehouse transfer state machine.
var IWTTransitions = workflow.Table[IWTStatus]{
	IWTStatusDraft:     {IWTStatusInTransit, IWTStatusCancelled},
	IWTStatusInTransit: {IWTStatusCompleted, IWTStatusCancelled},
}

// StockTransfer domain model.
type StockTransfer struct {
	ID        int64          `json:"id"`
	Number    string         `json:"number"`
	Status    TransferStatus `json:"status"`
	Notes     string         `json:"notes"`
	CreatedBy int64          `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}

// TransferItem is a stock transfer line between two bins.
type TransferItem struct {
	ID         int64   `json:"id"`
	TransferID int64   `json:"transfer_id"`
	ProductID  int64   `json:"product_id"`
	FromBinID  int64   `json:"from_bin_id"`
	ToBinID    int64   `json:"to_bin_id"`
	Qty        float64 `json:"qty"`
}

// InterWarehouseTransfer domain model.
type InterWarehouseTransfer struct {
	ID              int64     `json:"id"`
	Number          string    `json:"number"`
	FromWarehouseID int64     `json:"from_warehouse_id"`
	ToWarehouseID   int64     `json:"to_warehouse_id"`
	Status          IWTStatus `json:"status"`
	Notes           string    `json:"notes"`
	CreatedBy       int64     `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// IWTItem is an inter-warehouse transfer line.
type IWTItem struct {
	ID         int64   `json:"id"`
	TransferID int64   `json:"transfer_id"`
	ProductID  int64   `json:"product_id"`
	FromBinID  int64   `json:"from_bin_id"`
	ToBinID    int64   `json:"to_bin_id"`
	Qty        float64 `json:"qty"`
}
