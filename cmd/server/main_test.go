package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapdv/backend/internal/config"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/logging"
	"lojapdv/backend/internal/store/memory"
	sqlitestore "lojapdv/backend/internal/store/sqlite"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected short AUTH_SECRET to be rejected")
	}

	err = validateSecurityConfig(config.Config{AuthSecret: strongSecret, SQLitePath: "pdv.db", SeedAdminPassword: "admin123"})
	if err == nil {
		t.Fatalf("expected default admin password to be rejected for a persistent store")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, SQLitePath: "pdv.db", SeedAdminPassword: "f3rr0-v3lho!"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, SeedAdminPassword: "admin123"}); err != nil {
		t.Fatalf("memory store keeps demo credentials, got %v", err)
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	for _, weak := range []string{"short", "aaaaaaaaaa", "Password", "cashier123"} {
		assert.Error(t, validatePasswordStrength(weak), weak)
	}
	assert.NoError(t, validatePasswordStrength("caixa-forte-9"))
}

func TestAppRegistersCommands(t *testing.T) {
	app := newApp()
	names := []string{}
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	repo, err := openStore(context.Background(), config.Config{}, logging.Discard())
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.(*memory.Store)
	assert.True(t, ok, "expected the in-memory store, got %T", repo)
}

func TestSeedCommandImportsIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pdv.db")
	seedPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
products:
  - name: Arroz 5kg
    price: "24.90"
    stock: 12
  - name: Feijao 1kg
    price: "8.35"
    stock: 30
customers:
  - name: Maria
    phone: "11988887777"
`), 0o600))

	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")
	t.Setenv("SQLITE_PATH", dbPath)

	args := []string{"lojapdv", "--env-file", filepath.Join(dir, "missing.env"), "seed", "--file", seedPath}
	require.NoError(t, newApp().Run(args))
	// A second import skips what already exists.
	require.NoError(t, newApp().Run(args))

	repo, err := sqlitestore.New(context.Background(), dbPath)
	require.NoError(t, err)
	defer repo.Close()

	products, err := repo.ListProducts(context.Background(), domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	stock := map[string]int{}
	for _, p := range products {
		stock[p.Name] = p.Stock
	}
	assert.Equal(t, map[string]int{"Arroz 5kg": 12, "Feijao 1kg": 30}, stock)

	customers, err := repo.ListCustomers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestSeedCommandRefusesMemoryStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")
	t.Setenv("SQLITE_PATH", "")
	os.Unsetenv("SQLITE_PATH")

	err := newApp().Run([]string{"lojapdv", "--env-file", filepath.Join(t.TempDir(), "none.env"), "seed", "--file", "catalog.yaml"})
	assert.Error(t, err)
}
