package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mino1214/juncom-server/internal/cache"
	"github.com/Mino1214/juncom-server/internal/repository"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// StockService serves stock reads through the short-TTL cache. The database
// row stays authoritative; a slightly stale count here only affects what the
// storefront displays, never what an order transaction decides.
type StockService struct {
	products repository.ProductRepository
	cache    *cache.StockCache
	logger   *slog.Logger
}

// NewStockService creates a new cache-backed stock reader.
func NewStockService(products repository.ProductRepository, stockCache *cache.StockCache, logger *slog.Logger) *StockService {
	return &StockService{
		products: products,
		cache:    stockCache,
		logger:   logger,
	}
}

// GetStock returns the stock count for a product, reading through the cache.
func (s *StockService) GetStock(ctx context.Context, productID string) (int, error) {
	stock, err := s.cache.Get(ctx, productID)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		// Redis trouble should not take the endpoint down.
		s.logger.WarnContext(ctx, "stock cache read failed, falling back to database",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}

	stock, err = s.products.GetStock(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("get stock from database: %w", err)
	}

	if err := s.cache.Set(ctx, productID, stock); err != nil {
		s.logger.WarnContext(ctx, "failed to populate stock cache",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}

	return stock, nil
}
