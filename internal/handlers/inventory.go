package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"go.uber.org/zap"
)

// ProductStore is implemented by *db.CachedProductRepository and
// *db.ProductRepository.
type ProductStore interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id int) (*models.Product, error)
	Upsert(ctx context.Context, id int, req models.UpsertProductRequest) (*models.Product, error)
}

type InventoryHandler struct {
	store  ProductStore
	logger *zap.Logger
}

func NewInventoryHandler(store ProductStore, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		store:  store,
		logger: logger.With(zap.String("component", "inventory_handler")),
	}
}

func (h *InventoryHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/inventory")
	api.GET("", h.ListProducts)
	api.GET("/:productId", h.GetProduct)
	api.PUT("/:productId", h.UpsertProduct)
}

// ListProducts returns every product with its stock level
func (h *InventoryHandler) ListProducts(c *gin.Context) {
	products, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}

	c.JSON(http.StatusOK, products)
}

// GetProduct returns a single product
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	product, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get product", zap.Int("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}

	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	c.JSON(http.StatusOK, product)
}

// UpsertProduct creates or replaces a product under a caller-chosen id
func (h *InventoryHandler) UpsertProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	var req models.UpsertProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.store.Upsert(c.Request.Context(), id, req)
	if err != nil {
		h.logger.Error("Failed to upsert product", zap.Int("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save product"})
		return
	}

	h.logger.Info("Product saved", zap.Int("product_id", id), zap.Int("units_in_stock", product.UnitsInStock))
	c.JSON(http.StatusOK, product)
}

func productIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("productId"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return 0, false
	}
	return id, true
}
