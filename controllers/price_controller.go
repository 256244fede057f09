package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pricewatch_backend/apperrors"
	"pricewatch_backend/services/pricecache"
)

// PriceController exposes the price cache to API callers
type PriceController struct {
	cache *pricecache.Cache
}

// NewPriceController creates a new price controller
func NewPriceController(cache *pricecache.Cache) *PriceController {
	return &PriceController{cache: cache}
}

// GetPrice returns the current price for a symbol.
// ?fresh=true bypasses the cache, ?cached=true serves memory only and
// never spends upstream budget.
// GET /api/v1/prices/:symbol
func (pc *PriceController) GetPrice(c *gin.Context) {
	if c.Query("cached") == "true" {
		price, ok := pc.cache.Peek(c.Param("symbol"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "symbol not cached"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": price})
		return
	}

	useCache := c.Query("fresh") != "true"

	price, err := pc.cache.GetPrice(c.Request.Context(), c.Param("symbol"), useCache)
	if err != nil {
		status, message := mapPriceError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": price})
}

// batchRequest is the bulk lookup request body
type batchRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
}

// batchResult is one symbol's entry in the bulk response
type batchResult struct {
	Symbol string            `json:"symbol"`
	Price  *pricecache.Price `json:"price,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// GetBatchPrices resolves many symbols in one call. Per-symbol
// failures are reported inline; only an oversized batch fails whole.
// POST /api/v1/prices/batch
func (pc *PriceController) GetBatchPrices(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := pc.cache.GetManyPrices(c.Request.Context(), req.Symbols)
	if err != nil {
		status, message := mapPriceError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	out := make([]batchResult, 0, len(results))
	for symbol, entry := range results {
		item := batchResult{Symbol: symbol, Price: entry.Price}
		if entry.Err != nil {
			item.Error = entry.Err.Error()
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}

// GetCachedPrices returns the full cache snapshot for display
// GET /api/v1/prices
func (pc *PriceController) GetCachedPrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": pc.cache.Snapshot()})
}

// mapPriceError translates the engine's error taxonomy to HTTP
func mapPriceError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidSymbol), errors.Is(err, apperrors.ErrTooManySymbols):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrSymbolNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests, "Quote fetch budget exhausted, please retry later"
	case errors.Is(err, apperrors.ErrUpstreamTimeout), errors.Is(err, apperrors.ErrUpstreamError):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
