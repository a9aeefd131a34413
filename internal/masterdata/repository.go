package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository provides PostgreSQL backed persistence for master data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func mapInsertErr(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s already exists", shared.ErrIntegrityConflict, what)
	}
	return err
}

// CreateProduct inserts a product. A duplicate SKU maps to an integrity
// conflict.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, name, unit, batch_tracked)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		p.SKU, p.Name, p.Unit, p.BatchTracked).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Product{}, mapInsertErr(err, "sku "+p.SKU)
	}
	return p, nil
}

// GetProduct returns one product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, unit, batch_tracked, created_at
FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.BatchTracked, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns all products ordered by sku.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, batch_tracked, created_at
FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.BatchTracked, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// BatchTracked reports whether a product carries a batch sub-ledger.
func (r *Repository) BatchTracked(ctx context.Context, productID int64) (bool, error) {
	var tracked bool
	err := r.pool.QueryRow(ctx, `SELECT batch_tracked FROM products WHERE id=$1`, productID).Scan(&tracked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return tracked, nil
}

// CreateWarehouse inserts a warehouse. A duplicate code maps to an
// integrity conflict.
func (r *Repository) CreateWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (code, name)
VALUES ($1, $2) RETURNING id, created_at`, wh.Code, wh.Name).
		Scan(&wh.ID, &wh.CreatedAt)
	if err != nil {
		return Warehouse{}, mapInsertErr(err, "warehouse "+wh.Code)
	}
	return wh, nil
}

// GetWarehouse returns one warehouse by id.
func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var wh Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, created_at FROM warehouses WHERE id=$1`, id).
		Scan(&wh.ID, &wh.Code, &wh.Name, &wh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	return wh, nil
}

// ListWarehouses returns all warehouses ordered by code.
func (r *Repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, created_at FROM warehouses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Warehouse
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.Code, &wh.Name, &wh.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

// CreateBin inserts a bin. The (warehouse, code) pair is unique.
func (r *Repository) CreateBin(ctx context.Context, bin Bin) (Bin, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO bins (warehouse_id, code)
VALUES ($1, $2) RETURNING id, created_at`, bin.WarehouseID, bin.Code).
		Scan(&bin.ID, &bin.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Bin{}, fmt.Errorf("%w: bin %s already exists in warehouse %d", shared.ErrIntegrityConflict, bin.Code, bin.WarehouseID)
			case "23503":
				return Bin{}, fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, bin.WarehouseID)
			}
		}
		return Bin{}, err
	}
	return bin, nil
}

// GetBin returns one bin by id.
func (r *Repository) GetBin(ctx context.Context, id int64) (Bin, error) {
	var bin Bin
	err := r.pool.QueryRow(ctx, `SELECT id, warehouse_id, code, created_at FROM bins WHERE id=$1`, id).
		Scan(&bin.ID, &bin.WarehouseID, &bin.Code, &bin.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bin{}, shared.ErrNotFound
		}
		return Bin{}, err
	}
	return bin, nil
}

// ListBins returns bins, optionally filtered by warehouse.
func (r *Repository) ListBins(ctx context.Context, warehouseID int64) ([]Bin, error) {
	query := `SELECT id, warehouse_id, code, created_at FROM bins ORDER BY warehouse_id, code`
	args := []any{}
	if warehouseID > 0 {
		query = `SELECT id, warehouse_id, code, created_at FROM bins WHERE warehouse_id=$1 ORDER BY code`
		args = append(args, warehouseID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bin
	for rows.Next() {
		var bin Bin
		if err := rows.Scan(&bin.ID, &bin.WarehouseID, &bin.Code, &bin.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, bin)
	}
	return out, rows.Err()
}
