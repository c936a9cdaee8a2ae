package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/ledger"
	"lojapdv/backend/internal/store"
)

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	databaseURL := os.Getenv("PDV_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PDV_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd_it_%d", stamp)
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	now := time.Now().UTC()
	if err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, domain.Product{
			ID: productID, Name: "Produto IT " + productID, Price: decimal.RequireFromString("3.50"),
			Stock: 5, CreatedAt: now, UpdatedAt: now,
		})
	}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx store.Tx) error {
				return ledger.CommitDecrement(ctx, tx, productID, 2)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stock, err := s.Stock(ctx, productID)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if stock < 0 {
		t.Fatalf("stock went negative: %d", stock)
	}
	if want := 5 - 2*succeeded; stock != want {
		t.Fatalf("expected stock %d after %d decrements, got %d", want, succeeded, stock)
	}
	if succeeded > 2 {
		t.Fatalf("expected at most 2 successful decrements, got %d", succeeded)
	}
}
