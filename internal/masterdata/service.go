package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Service validates and persists master data.
type Service struct {
	repo   *Repository
	cache  *CachedProducts
	logger *slog.Logger
}

// NewService builds the service. The cache is optional.
func NewService(repo *Repository, cache *CachedProducts, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// CreateProductInput carries the fields of a new product.
type CreateProductInput struct {
	SKU          string
	Name         string
	Unit         string
	BatchTracked bool
}

// CreateProduct stores a product.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return Product{}, fmt.Errorf("%w: sku required", shared.ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return Product{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	unit := input.Unit
	if unit == "" {
		unit = "pcs"
	}
	product, err := s.repo.CreateProduct(ctx, Product{
		SKU:          sku,
		Name:         input.Name,
		Unit:         unit,
		BatchTracked: input.BatchTracked,
	})
	if err != nil {
		return Product{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, product.ID)
	}
	s.logger.Info("product created", slog.Int64("id", product.ID), slog.String("sku", product.SKU))
	return product, nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// BatchTracked resolves the batch tracking flag, via the cache when one is
// configured. Satisfies the issuing product port.
func (s *Service) BatchTracked(ctx context.Context, productID int64) (bool, error) {
	if s.cache != nil {
		return s.cache.BatchTracked(ctx, productID)
	}
	return s.repo.BatchTracked(ctx, productID)
}

// CreateWarehouse stores a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, code, name string) (Warehouse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Warehouse{}, fmt.Errorf("%w: code required", shared.ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		return Warehouse{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	wh, err := s.repo.CreateWarehouse(ctx, Warehouse{Code: code, Name: name})
	if err != nil {
		return Warehouse{}, err
	}
	s.logger.Info("warehouse created", slog.Int64("id", wh.ID), slog.String("code", wh.Code))
	return wh, nil
}

// GetWarehouse returns one warehouse.
func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	return s.repo.GetWarehouse(ctx, id)
}

// ListWarehouses returns all warehouses.
func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

// CreateBin stores a bin inside a warehouse.
func (s *Service) CreateBin(ctx context.Context, warehouseID int64, code string) (Bin, error) {
	if warehouseID <= 0 {
		return Bin{}, fmt.Errorf("%w: warehouse_id required", shared.ErrValidation)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Bin{}, fmt.Errorf("%w: code required", shared.ErrValidation)
	}
	bin, err := s.repo.CreateBin(ctx, Bin{WarehouseID: warehouseID, Code: code})
	if err != nil {
		return Bin{}, err
	}
	s.logger.Info("bin created",
		slog.Int64("id", bin.ID),
		slog.Int64("warehouse_id", bin.WarehouseID),
		slog.String("code", bin.Code))
	return bin, nil
}

// GetBin returns one bin.
func (s *Service) GetBin(ctx context.Context, id int64) (Bin, error) {
	return s.repo.GetBin(ctx, id)
}

// ListBins returns bins, optionally scoped to one warehouse.
func (s *Service) ListBins(ctx context.Context, warehouseID int64) ([]Bin, error) {
	return s.repo.ListBins(ctx, warehouseID)
}
