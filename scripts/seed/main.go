// Seeds a development database with master data and a default approval
// rule, then prints a signed token for manual testing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/app"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/auth"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var warehouseID int64
	err = pool.QueryRow(ctx, `INSERT INTO warehouses (code, name) VALUES ('MAIN', 'Main warehouse')
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name RETURNING id`).Scan(&warehouseID)
	if err != nil {
		logger.Error("seed warehouse", slog.Any("error", err))
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, bin := range []string{"A-01", "A-02", "B-01", "RECEIVING", "SHIPPING"} {
		bin := bin
		group.Go(func() error {
			_, err := pool.Exec(groupCtx, `INSERT INTO bins (warehouse_id, code) VALUES ($1, $2)
ON CONFLICT (warehouse_id, code) DO NOTHING`, warehouseID, bin)
			return err
		})
	}
	products := []struct {
		sku     string
		name    string
		tracked bool
	}{
		{"BOLT-M8", "Hex bolt M8", false},
		{"NUT-M8", "Hex nut M8", false},
		{"GLUE-500", "Adhesive 500ml", true},
		{"SEAL-KIT", "Sealing kit", true},
	}
	for _, p := range products {
		p := p
		group.Go(func() error {
			_, err := pool.Exec(groupCtx, `INSERT INTO products (sku, name, unit, batch_tracked)
VALUES ($1, $2, 'pcs', $3) ON CONFLICT (sku) DO NOTHING`, p.sku, p.name, p.tracked)
			return err
		})
	}
	group.Go(func() error {
		_, err := pool.Exec(groupCtx, `INSERT INTO approval_rules (entity_type, min_amount, required_role, is_active)
SELECT 'purchase_order', 10000, 'manager', TRUE
WHERE NOT EXISTS (SELECT 1 FROM approval_rules WHERE entity_type = 'purchase_order' AND is_active)`)
		return err
	})
	if err := group.Wait(); err != nil {
		logger.Error("seed data", slog.Any("error", err))
		os.Exit(1)
	}

	token, err := auth.IssueToken([]byte(cfg.JWTSecret), shared.Actor{UserID: 1, Role: "manager"}, cfg.TokenTTL)
	if err != nil {
		logger.Error("issue token", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seed complete", slog.Int64("warehouse_id", warehouseID))
	fmt.Printf("export TOKEN=%s\n", token)
	fmt.Printf("# example: curl -H \"Authorization: Bearer $TOKEN\" -H \"X-Operation-Id: %s\" ...\n", uuid.NewString())
}
