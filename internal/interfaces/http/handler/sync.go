package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fulfillment/backoffice/internal/application/ordersync"
	domain "github.com/fulfillment/backoffice/internal/domain/ordersync"
	"github.com/fulfillment/backoffice/internal/interfaces/http/dto"
)

// RateStatusReader reports per-store rate window consumption.
type RateStatusReader interface {
	Status(ctx context.Context, storeCode string) (*domain.RateLimitStatus, error)
}

// PassRunner runs one on-demand synchronization pass for a store.
type PassRunner interface {
	SyncStore(ctx context.Context, store *domain.StoreCredential) (*ordersync.PassResult, error)
}

// RunHistory exposes recent pass results, newest first.
type RunHistory interface {
	History(limit int) []*ordersync.PassResult
	HistoryForStore(storeCode string, limit int) []*ordersync.PassResult
}

// SyncHandler handles synchronization API endpoints
type SyncHandler struct {
	stores  domain.StoreDirectory
	rates   RateStatusReader
	runner  PassRunner
	history RunHistory
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(stores domain.StoreDirectory, rates RateStatusReader, runner PassRunner, history RunHistory) *SyncHandler {
	return &SyncHandler{
		stores:  stores,
		rates:   rates,
		runner:  runner,
		history: history,
	}
}

// RegisterRoutes registers sync routes on the API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	sync.GET("/stores", h.ListStores)
	sync.GET("/stores/:code/rate-limit", h.GetRateLimit)
	sync.POST("/stores/:code/run", h.RunStore)
	sync.GET("/runs", h.ListRuns)
}

// StoreResponse represents one configured store. The API token never leaves
// the service.
type StoreResponse struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	APIBaseURL string `json:"api_base_url"`
	Active     bool   `json:"active"`
}

// ListStores returns the stores currently enabled for synchronization
func (h *SyncHandler) ListStores(c *gin.Context) {
	stores, err := h.stores.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeInternal),
			dto.NewErrorResponse(dto.ErrCodeInternal, "failed to list stores"))
		return
	}

	response := make([]StoreResponse, 0, len(stores))
	for _, s := range stores {
		response = append(response, StoreResponse{
			ID:         s.ID.String(),
			Code:       s.Code,
			Name:       s.Name,
			APIBaseURL: s.APIBaseURL,
			Active:     s.Active,
		})
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}

// GetRateLimit returns the four window counters for one store
func (h *SyncHandler) GetRateLimit(c *gin.Context) {
	code := c.Param("code")

	if _, err := h.stores.FindByCode(c.Request.Context(), code); err != nil {
		if errors.Is(err, domain.ErrStoreNotConfigured) {
			c.JSON(dto.GetHTTPStatus(dto.ErrCodeNotFound),
				dto.NewErrorResponse(dto.ErrCodeNotFound, "store not found"))
			return
		}
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeInternal),
			dto.NewErrorResponse(dto.ErrCodeInternal, "failed to resolve store"))
		return
	}

	status, err := h.rates.Status(c.Request.Context(), code)
	if err != nil {
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeUnavailable),
			dto.NewErrorResponse(dto.ErrCodeUnavailable, "rate counters unavailable"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(status))
}

// RunStore triggers one synchronization pass for a store and waits for it
func (h *SyncHandler) RunStore(c *gin.Context) {
	code := c.Param("code")

	store, err := h.stores.FindByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrStoreNotConfigured) {
			c.JSON(dto.GetHTTPStatus(dto.ErrCodeNotFound),
				dto.NewErrorResponse(dto.ErrCodeNotFound, "store not found"))
			return
		}
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeInternal),
			dto.NewErrorResponse(dto.ErrCodeInternal, "failed to resolve store"))
		return
	}

	result, err := h.runner.SyncStore(c.Request.Context(), store)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			c.JSON(dto.GetHTTPStatus(dto.ErrCodeConflict),
				dto.NewErrorResponse(dto.ErrCodeConflict, "a sync pass is already running for this store"))
			return
		}
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeSyncFailed),
			dto.NewErrorResponse(dto.ErrCodeSyncFailed, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(result))
}

// ListRuns returns recent pass results, optionally filtered by store
func (h *SyncHandler) ListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(dto.GetHTTPStatus(dto.ErrCodeBadRequest),
				dto.NewErrorResponse(dto.ErrCodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	var runs []*ordersync.PassResult
	if storeCode := c.Query("store"); storeCode != "" {
		runs = h.history.HistoryForStore(storeCode, limit)
	} else {
		runs = h.history.History(limit)
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(runs))
}
