// Package handlers serves the read-only admin/ops HTTP surface. Trading
// flows only through the XML wire; these endpoints observe engine state.
package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"exchange-core/src/engine"
	"exchange-core/src/models"
)

type AdminHandler struct {
	Ex *engine.Exchange
}

func NewAdminHandler(ex *engine.Exchange) *AdminHandler {
	return &AdminHandler{Ex: ex}
}

func (h *AdminHandler) HealthCheck(c *fiber.Ctx) error {
	stats := h.Ex.Stats()
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: stats.UptimeSeconds,
		OrdersInBook:  stats.OrdersInBook,
	})
}

func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	stats := h.Ex.Stats()
	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersPlaced:           stats.OrdersPlaced,
		OrdersRejected:         stats.OrdersRejected,
		OrdersCanceled:         stats.OrdersCanceled,
		TradesExecuted:         stats.TradesExecuted,
		OrdersInBook:           stats.OrdersInBook,
		LatencyP50Ms:           stats.LatencyP50Ms,
		LatencyP99Ms:           stats.LatencyP99Ms,
		LatencyP999Ms:          stats.LatencyP999Ms,
		ThroughputOrdersPerSec: stats.OrdersPerSec,
	})
}

func (h *AdminHandler) GetOrderBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	depth, err := strconv.Atoi(c.Query("depth", "10"))
	if err != nil || depth <= 0 {
		depth = 10
	}
	// edge case: enforce maximum depth limit
	if depth > 1000 {
		depth = 1000
	}

	bids, asks := h.Ex.BookDepth(symbol, depth)

	bidLevels := make([]models.PriceLevelInfo, 0, len(bids))
	for _, level := range bids {
		bidLevels = append(bidLevels, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}
	askLevels := make([]models.PriceLevelInfo, 0, len(asks))
	for _, level := range asks {
		askLevels = append(askLevels, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Symbol:    symbol,
		Timestamp: time.Now().Unix(),
		Bids:      bidLevels,
		Asks:      askLevels,
	})
}

func (h *AdminHandler) GetOrderStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	st, err := h.Ex.Query(id)
	if err != nil {
		log.Warn().Int64("order_id", id).Msg("Order status: order not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	executions := make([]models.ExecutionInfo, 0, len(st.Fills))
	for _, fill := range st.Fills {
		executions = append(executions, models.ExecutionInfo{
			Shares: fill.Shares,
			Price:  fill.Price,
			Time:   fill.Time,
		})
	}

	var canceled *models.CanceledInfo
	if st.Cancel != nil {
		canceled = &models.CanceledInfo{Shares: st.Cancel.Shares, Time: st.Cancel.Time}
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:    st.ID,
		AccountID:  st.AccountID,
		Symbol:     st.Symbol,
		Side:       string(st.Side),
		Limit:      st.Limit,
		Original:   st.Original,
		Open:       st.Open,
		Executions: executions,
		Canceled:   canceled,
	})
}

func (h *AdminHandler) GetAccount(c *fiber.Ctx) error {
	snapshot, err := h.Ex.AccountSnapshot(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Account not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.AccountResponse{
		ID:        snapshot.ID,
		Balance:   snapshot.Balance,
		Positions: snapshot.Positions,
	})
}
