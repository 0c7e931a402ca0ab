package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ersoyb/go-storefront/internal/config"
	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/products", func(r chi.Router) {
		r.Post("/", handleCreateProduct(db))
		r.Get("/", handleListProducts(db))
		r.Get("/{id}", handleGetProduct(db))
		r.Post("/{id}/variants", handleCreateVariant(db))
		r.Put("/{id}/option-types", handleSyncOptionTypes(db, cfg))
	})

	r.Post("/option-types", handleCreateOptionType(db))
	r.Post("/option-types/{id}/values", handleCreateOptionValue(db))

	r.Get("/variants/{id}", handleGetVariant(db))
	r.Delete("/variants/{id}", handleDeleteVariant(db))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handleCreateOrder(db))
		r.Get("/", handleListOrders(db))
		r.Get("/{id}", handleGetOrder(db))
		r.Patch("/{id}/status", handleUpdateOrderStatus(db))
		r.Post("/{id}/finalize", handleFinalizeOrder(db, cfg))
		r.Post("/{id}/restock", handleRestockOrder(db, cfg))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Info().Str("port", cfg.Server.Port).Msg("server starting")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func handleCreateProduct(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		product, err := store.CreateProduct(r.Context(), db, req.Name, req.Description)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, product)
	}
}

func handleListProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		result, err := store.ListProducts(r.Context(), db, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func handleGetProduct(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid product id")
			return
		}

		product, err := store.GetProduct(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, product)
	}
}

func handleCreateOptionType(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name         string `json:"name"`
			Presentation string `json:"presentation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ot, err := store.CreateOptionType(r.Context(), db, req.Name, req.Presentation)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, ot)
	}
}

func handleCreateOptionValue(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		optionTypeID, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid option type id")
			return
		}

		var req struct {
			Value    string `json:"value"`
			Position int    `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ov, err := store.CreateOptionValue(r.Context(), db, optionTypeID, req.Value, req.Position)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, ov)
	}
}

func handleCreateVariant(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid product id")
			return
		}

		var req struct {
			SKU            string  `json:"sku"`
			Price          float64 `json:"price"`
			VATRate        float64 `json:"vat_rate"`
			Stock          int     `json:"stock"`
			OptionValueIDs []int64 `json:"option_value_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		variant, err := store.CreateVariant(r.Context(), db, store.CreateVariantRequest{
			ProductID:      productID,
			SKU:            req.SKU,
			Price:          decimal.NewFromFloat(req.Price),
			VATRate:        decimal.NewFromFloat(req.VATRate),
			StockQuantity:  req.Stock,
			OptionValueIDs: req.OptionValueIDs,
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, variant)
	}
}

func handleGetVariant(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid variant id")
			return
		}

		variant, err := store.GetVariant(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, variant)
	}
}

func handleDeleteVariant(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid variant id")
			return
		}

		if err := store.DeleteVariant(r.Context(), db, id); err != nil {
			respondStoreError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSyncOptionTypes(db *sql.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid product id")
			return
		}

		var req struct {
			OptionTypeIDs []int64 `json:"option_type_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		lk := database.NewLocker(cfg.Database.AdvisoryLocks)
		result, err := store.SyncOptionTypes(r.Context(), db, lk, productID, req.OptionTypeIDs)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func handleCreateOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CustomerName        string `json:"customer_name"`
			CustomerEmail       string `json:"customer_email"`
			ShippingAddressText string `json:"shipping_address_text"`
			Lines               []struct {
				VariantID   *int64   `json:"variant_id"`
				Description string   `json:"description"`
				Quantity    int      `json:"quantity"`
				UnitPrice   *float64 `json:"unit_price"`
			} `json:"lines"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var lines []store.OrderLineRequest
		for _, line := range req.Lines {
			lineReq := store.OrderLineRequest{
				VariantID:   line.VariantID,
				Description: line.Description,
				Quantity:    line.Quantity,
			}
			if line.UnitPrice != nil {
				price := decimal.NewFromFloat(*line.UnitPrice)
				lineReq.UnitPrice = &price
			}
			lines = append(lines, lineReq)
		}

		order, err := store.CreateOrder(r.Context(), db, store.CreateOrderRequest{
			CustomerName:        req.CustomerName,
			CustomerEmail:       req.CustomerEmail,
			ShippingAddressText: req.ShippingAddressText,
			Lines:               lines,
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, order)
	}
}

func handleListOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		result, err := store.ListOrders(r.Context(), db, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func handleGetOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		order, err := store.GetOrder(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, order)
	}
}

func handleUpdateOrderStatus(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := store.UpdateOrderStatus(r.Context(), db, id, req.Status); err != nil {
			respondStoreError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleFinalizeOrder(db *sql.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		lk := database.NewLocker(cfg.Database.AdvisoryLocks)
		result, err := store.FinalizeOrder(r.Context(), db, lk, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func handleRestockOrder(db *sql.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		lk := database.NewLocker(cfg.Database.AdvisoryLocks)
		result, err := store.RestockOrder(r.Context(), db, lk, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// respondStoreError maps store errors onto HTTP: not-found sentinels to 404,
// rejected business rules to 422, anything else to 500.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrVariantNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case database.IsDomainFailure(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
