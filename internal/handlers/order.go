package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/orders"
	"go.uber.org/zap"
)

// OrderService is implemented by *orders.Service.
type OrderService interface {
	PlaceOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	RecentOrders(ctx context.Context) ([]models.OrderSummary, error)
	GetOrder(ctx context.Context, id int) (*models.Order, error)
}

type OrderHandler struct {
	service OrderService
	logger  *zap.Logger
}

func NewOrderHandler(service OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With(zap.String("component", "order_handler")),
	}
}

func (h *OrderHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/orders")
	api.POST("", h.CreateOrder)
	api.GET("", h.ListOrders)
	api.GET("/:id", h.GetOrder)
}

// ListOrders returns the most recent orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	summaries, err := h.service.RecentOrders(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// GetOrder returns a single order with line totals
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get order", zap.Int("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get order"})
		return
	}

	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, models.NewOrderDetail(order))
}

// CreateOrder saves the order and publishes OrderPlaced
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.PlaceOrder(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, order)
	case errors.Is(err, orders.ErrEmptyOrder), errors.Is(err, orders.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrPublishFailed) && order != nil:
		// The order exists; the client needs its id to follow up.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "order saved but stock update could not be scheduled",
			"orderId": order.ID,
		})
	default:
		h.logger.Error("Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
	}
}
