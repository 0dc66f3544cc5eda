package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

type catalogItem struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Quantity int    `yaml:"quantity"`
}

type catalog struct {
	Items []catalogItem `yaml:"items"`
}

func loadCatalog(path string) (catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (catalog, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return catalog{}, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Items))
	for i, it := range c.Items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			return catalog{}, fmt.Errorf("item %d: id is required", i)
		}
		if _, dup := seen[it.ID]; dup {
			return catalog{}, fmt.Errorf("item %s listed twice", it.ID)
		}
		if it.Quantity < 0 {
			return catalog{}, fmt.Errorf("item %s: quantity must not be negative", it.ID)
		}
		if strings.TrimSpace(it.Name) == "" {
			it.Name = it.ID
		}
		seen[it.ID] = struct{}{}
		c.Items[i] = it
	}
	return c, nil
}

// apply inserts every catalog item, leaving existing items untouched.
func apply(ctx context.Context, repo port.InventoryRepository, c catalog, logger *zap.Logger) (created, skipped int, err error) {
	for _, it := range c.Items {
		err := repo.CreateItem(ctx, domain.StockItem{
			ID:            it.ID,
			Name:          it.Name,
			Category:      it.Category,
			TotalQuantity: it.Quantity,
		})
		if errors.Is(err, domain.ErrItemExists) {
			logger.Info("item already exists", zap.String("item_id", it.ID))
			skipped++
			continue
		}
		if err != nil {
			return created, skipped, fmt.Errorf("create %s: %w", it.ID, err)
		}
		logger.Info("item created", zap.String("item_id", it.ID), zap.Int("quantity", it.Quantity))
		created++
	}
	return created, skipped, nil
}
