package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Seed is a menu fixture for the in-memory catalog.
type Seed struct {
	Restaurants []SeedRestaurant `yaml:"restaurants"`
}

type SeedRestaurant struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Items []SeedItem `yaml:"items"`
}

type SeedItem struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	CategoryID string `yaml:"category"`
	Price      string `yaml:"price"`
	// Available defaults to true.
	Available *bool `yaml:"available"`
	// Stock starts inventory tracking when set.
	Stock             *string `yaml:"stock"`
	Unit              string  `yaml:"unit"`
	LowStockThreshold string  `yaml:"low_stock_threshold"`
}

func (it SeedItem) PriceValue() (decimal.Decimal, error) {
	return decimal.NewFromString(it.Price)
}

func (it SeedItem) IsAvailable() bool {
	return it.Available == nil || *it.Available
}

func LoadSeed(path string) (Seed, error) {
	var s Seed
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("config: read seed %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("config: parse seed %s: %w", path, err)
	}
	for _, r := range s.Restaurants {
		if r.ID == "" {
			return s, fmt.Errorf("config: seed restaurant without id")
		}
		for _, it := range r.Items {
			if it.ID == "" {
				return s, fmt.Errorf("config: seed item without id in %s", r.ID)
			}
			if _, err := it.PriceValue(); err != nil {
				return s, fmt.Errorf("config: seed item %s price: %w", it.ID, err)
			}
		}
	}
	return s, nil
}
