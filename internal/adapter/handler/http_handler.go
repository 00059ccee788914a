package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cloudkitchen/fulfillment/internal/core/service"
	"github.com/cloudkitchen/fulfillment/internal/port"
)

type HTTPHandler struct {
	intake    *service.IntakeService
	inventory port.InventoryRepository
}

type PlaceOrderRequest struct {
	RecipeID string `json:"recipe_id"`
}

type OrderResponse struct {
	OrderID  string `json:"order_id"`
	RecipeID string `json:"recipe_id"`
	Status   string `json:"status"`
}

type InventoryItemResponse struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Qty      int    `json:"qty"`
	LowStock bool   `json:"low_stock"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(intake *service.IntakeService, inventory port.InventoryRepository) *HTTPHandler {
	return &HTTPHandler{intake: intake, inventory: inventory}
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.RecipeID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "recipe_id is required"})
		return
	}

	order, err := h.intake.PlaceOrder(r.Context(), req.RecipeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, OrderResponse{
		OrderID:  order.ID,
		RecipeID: order.RecipeID,
		Status:   string(order.Status),
	})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orders, err := h.intake.ListOrders(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderResponse{
			OrderID:  o.ID,
			RecipeID: o.RecipeID,
			Status:   string(o.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.inventory.ListItems(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	out := make([]InventoryItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, InventoryItemResponse{
			ItemID:   item.ID,
			Name:     item.Name,
			Qty:      item.Qty,
			LowStock: item.Qty < service.LowStockThreshold,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
