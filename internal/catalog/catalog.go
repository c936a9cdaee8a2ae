// Package catalog reads product and customer seed files in YAML.
//
//	products:
//	  - id: prd_arroz
//	    name: Arroz 5kg
//	    price: "24.90"
//	    stock: 40
//	customers:
//	  - name: Maria Souza
//	    phone: "11999990000"
package catalog

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"lojapdv/backend/internal/domain"
)

type file struct {
	Products  []productEntry  `yaml:"products"`
	Customers []customerEntry `yaml:"customers"`
}

type productEntry struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Stock int    `yaml:"stock"`
}

type customerEntry struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
}

type Seed struct {
	Products  []domain.Product
	Customers []domain.Customer
}

func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	seed, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return seed, nil
}

// Parse validates every entry and fails on the first bad one. Product ids
// are optional; names must be unique ignoring case.
func Parse(data []byte) (*Seed, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}

	seed := &Seed{}
	seen := make(map[string]bool, len(f.Products))
	for i, entry := range f.Products {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, errors.Errorf("product %d: name is required", i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, errors.Errorf("product %q listed twice", name)
		}
		seen[key] = true

		price, err := decimal.NewFromString(strings.TrimSpace(entry.Price))
		if err != nil {
			return nil, errors.Wrapf(err, "product %q: price", name)
		}
		if !price.Round(2).IsPositive() {
			return nil, errors.Errorf("product %q: price must be greater than zero", name)
		}
		if entry.Stock < 0 {
			return nil, errors.Errorf("product %q: stock must not be negative", name)
		}
		seed.Products = append(seed.Products, domain.Product{
			ID:    strings.TrimSpace(entry.ID),
			Name:  name,
			Price: price,
			Stock: entry.Stock,
		})
	}

	for i, entry := range f.Customers {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, errors.Errorf("customer %d: name is required", i+1)
		}
		seed.Customers = append(seed.Customers, domain.Customer{
			Name:  name,
			Phone: strings.TrimSpace(entry.Phone),
			Email: strings.TrimSpace(entry.Email),
		})
	}
	return seed, nil
}
