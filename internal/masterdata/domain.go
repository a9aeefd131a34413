package masterdata

import "time"

// Product is a stock-keeping unit. BatchTracked products carry a batch
// sub-ledger and are issued FEFO.
type Product struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	BatchTracked bool      `json:"batch_tracked"`
	CreatedAt    time.Time `json:"created_at"`
}

// Warehouse groups bins under one site code.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Bin is a storage location inside a warehouse. Codes are unique per
// warehouse.
type Bin struct {
	ID          int64     `json:"id"`
	WarehouseID int64     `json:"warehouse_id"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
}
