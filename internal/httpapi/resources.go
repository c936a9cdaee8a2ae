package httpapi

import (
	"net/http"
	"strings"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/receipt"
	"lojapdv/backend/internal/session"
)

func (a *API) handleSales(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	from, err := parseTimeParam(query.Get("from"))
	if err != nil {
		a.fail(w, err)
		return
	}
	to, err := parseTimeParam(query.Get("to"))
	if err != nil {
		a.fail(w, err)
		return
	}

	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		Query:      query.Get("q"),
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		From:       from,
		To:         to,
		Limit:      parsePositiveLimit(query.Get("limit"), 50, 500),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

// handleReturnable reports what is left to return, for every line of the
// sale or for one product when product_id is given.
func (a *API) handleReturnable(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	saleID := r.PathValue("id")
	if productID := strings.TrimSpace(r.URL.Query().Get("product_id")); productID != "" {
		available, err := a.service.AvailableToReturn(r.Context(), saleID, productID)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sale_id":    saleID,
			"product_id": productID,
			"available":  available,
		})
		return
	}

	lines, err := a.service.ReturnableLines(r.Context(), saleID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale_id": saleID, "lines": lines})
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}

	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(receipt.Text(&sale, a.storeName)))
	case "pdf":
		doc, err := receipt.PDF(&sale, a.storeName)
		if err != nil {
			a.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="receipt-`+sale.ID+`.pdf"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc)
	default:
		a.fail(w, domain.InvalidInput("format must be text or pdf"))
	}
}

func (a *API) handleReturns(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	switch r.Method {
	case http.MethodGet:
		saleID := strings.TrimSpace(r.URL.Query().Get("sale_id"))
		if saleID == "" {
			a.fail(w, domain.InvalidInput("sale_id is required"))
			return
		}
		records, err := a.service.ListReturns(r.Context(), saleID)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"returns": records})
	case http.MethodPost:
		var req domain.ReturnRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		record, err := a.service.ProcessReturn(r.Context(), sess, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"return": record})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context(), domain.ProductFilter{
			Query: strings.TrimSpace(r.URL.Query().Get("q")),
			Limit: parsePositiveLimit(r.URL.Query().Get("limit"), 0, 500),
		})
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.LowStock(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProduct(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	id := strings.TrimSpace(r.PathValue("id"))

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": updated})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	id := strings.TrimSpace(r.PathValue("id"))

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), id)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodPatch:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateCustomer(r.Context(), id, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": updated})
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), id); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerSales(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sales, err := a.service.CustomerSales(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.SalesReport(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cashier, err := a.auth.CreateCashier(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PasswordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.auth.ChangePassword(r.Context(), sess.Actor.Username, req); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
