package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/logging"
	"lojapdv/backend/internal/metrics"
	"lojapdv/backend/internal/service"
	"lojapdv/backend/internal/store/memory"
)

// newTestAPI builds a full API with the seeded in-memory store, a real
// AuthManager and a real Service so handler tests exercise the whole path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier123")

	repo := memory.NewSeeded()
	log := logging.Discard()
	m := metrics.New()
	svc := service.New(repo, service.Options{Logger: log, Metrics: m})
	auth := NewAuthManager("test-secret-key", time.Hour, repo, log)
	return New(svc, auth, Options{AllowedOrigin: "*", StoreName: "Loja Teste", Metrics: m, Logger: log})
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), rec.Body.String())
	return body
}

func login(t *testing.T, h http.Handler, username, password string) domain.LoginResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decimalField(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected decimal string, got %T", v)
	return decimal.RequireFromString(s)
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestLoginOpensSession(t *testing.T) {
	h := newTestAPI(t).Handler()
	resp := login(t, h, "cashier", "cashier123")

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, domain.RoleCashier, resp.Role)
	assert.True(t, strings.HasPrefix(resp.SessionID, "ses_"))

	rec := do(t, h, http.MethodGet, "/api/v1/session", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decodeBody(t, rec)["session"].(map[string]any)
	assert.Equal(t, resp.SessionID, sess["id"])
	assert.Equal(t, "0.00", sess["subtotal"])
}

func TestLoginWrongPassword(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	h := newTestAPI(t).Handler()
	resp := login(t, h, "cashier", "cashier123")

	rec := do(t, h, http.MethodPost, "/api/v1/session/cart/lines", resp.AccessToken, cartLineRequest{ProductID: "prd_cafe", Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/auth/logout", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/session", resp.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutFlowWithDiscountAndCash(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "cashier", "cashier123").AccessToken

	rec := do(t, h, http.MethodPost, "/api/v1/session/cart/lines", token, cartLineRequest{ProductID: "prd_cafe", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "35.60", decodeBody(t, rec)["session"].(map[string]any)["subtotal"])

	rec = do(t, h, http.MethodPut, "/api/v1/session/discount", token, map[string]any{"kind": "percentage", "value": "10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "32.04", decodeBody(t, rec)["session"].(map[string]any)["total"])

	rec = do(t, h, http.MethodPost, "/api/v1/session/checkout", token, map[string]any{"payment_method": "cash", "received_amount": "40"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody(t, rec)["sale"].(map[string]any)
	assert.True(t, decimalField(t, sale["total"]).Equal(decimal.RequireFromString("32.04")))
	assert.True(t, decimalField(t, sale["change_amount"]).Equal(decimal.RequireFromString("7.96")))
	assert.Equal(t, "cashier", sale["processed_by"])
	saleID := sale["id"].(string)

	rec = do(t, h, http.MethodGet, "/api/v1/products/prd_cafe", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 28, decodeBody(t, rec)["product"].(map[string]any)["stock"])

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/returnable?product_id=prd_cafe", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["available"])

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/receipt", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Loja Teste")
	assert.Contains(t, rec.Body.String(), "TOTAL")

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/receipt?format=pdf", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = do(t, h, http.MethodGet, "/api/v1/sales?q="+saleID[:10], token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["sales"], 1)
}

func TestCheckoutInsufficientPaymentIsStructured(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "cashier", "cashier123").AccessToken

	rec := do(t, h, http.MethodPost, "/api/v1/session/cart/lines", token, cartLineRequest{ProductID: "prd_pao", Quantity: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/session/checkout", token, map[string]any{"payment_method": "cash", "received_amount": "30"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_payment", body["kind"])
	assert.True(t, decimalField(t, body["shortfall"]).Equal(decimal.RequireFromString("8.40")))

	rec = do(t, h, http.MethodGet, "/api/v1/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["session"].(map[string]any)["lines"], 1, "cart kept after failed checkout")
}

func TestAddToCartInsufficientStockReportsAvailable(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "cashier", "cashier123").AccessToken

	rec := do(t, h, http.MethodPost, "/api/v1/session/cart/lines", token, cartLineRequest{ProductID: "prd_pao", Quantity: 5})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_stock", body["kind"])
	assert.Equal(t, "prd_pao", body["product_id"])
	assert.EqualValues(t, 4, body["available"])

	rec = do(t, h, http.MethodPost, "/api/v1/session/cart/lines", token, cartLineRequest{ProductID: "prd_nope", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/session/checkout", token, map[string]any{"payment_method": "pix"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_cart", decodeBody(t, rec)["kind"])
}

func TestReturnsRequireAdminAndCapAtSold(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashierToken := login(t, h, "cashier", "cashier123").AccessToken
	adminToken := login(t, h, "admin", "admin123").AccessToken

	do(t, h, http.MethodPost, "/api/v1/session/cart/lines", cashierToken, cartLineRequest{ProductID: "prd_leite", Quantity: 5})
	rec := do(t, h, http.MethodPost, "/api/v1/session/checkout", cashierToken, map[string]any{"payment_method": "debit_card"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saleID := decodeBody(t, rec)["sale"].(map[string]any)["id"].(string)

	ret := domain.ReturnRequest{SaleID: saleID, ProductID: "prd_leite", Quantity: 3, Reason: "expired"}
	rec = do(t, h, http.MethodPost, "/api/v1/returns", cashierToken, ret)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/returns", adminToken, ret)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "admin", decodeBody(t, rec)["return"].(map[string]any)["processed_by"])

	rec = do(t, h, http.MethodPost, "/api/v1/returns", adminToken, ret)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "exceeds_sold_quantity", body["kind"])
	assert.EqualValues(t, 2, body["available"])

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/returnable", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := decodeBody(t, rec)["lines"].([]any)
	require.Len(t, lines, 1)
	assert.EqualValues(t, 3, lines[0].(map[string]any)["returned"])

	rec = do(t, h, http.MethodGet, "/api/v1/returns?sale_id="+saleID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["returns"], 1)
}

func TestProductAdministrationIsAdminOnly(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashierToken := login(t, h, "cashier", "cashier123").AccessToken
	adminToken := login(t, h, "admin", "admin123").AccessToken
	create := map[string]any{"name": "Farinha", "price": "6.50", "initial_stock": 12}

	rec := do(t, h, http.MethodPost, "/api/v1/products", cashierToken, create)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/products", adminToken, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody(t, rec)["product"].(map[string]any)["id"].(string)

	rec = do(t, h, http.MethodPost, "/api/v1/products", adminToken, create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPatch, "/api/v1/products/"+id, adminToken, map[string]any{"stock": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/products/low-stock", cashierToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	names := []string{}
	for _, p := range decodeBody(t, rec)["products"].([]any) {
		names = append(names, p.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "Farinha")

	rec = do(t, h, http.MethodDelete, "/api/v1/products/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCustomersAndHistory(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "cashier", "cashier123").AccessToken

	rec := do(t, h, http.MethodPost, "/api/v1/customers", token, domain.CustomerRequest{Name: "Joana", Phone: "11999990000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customerID := decodeBody(t, rec)["customer"].(map[string]any)["id"].(string)

	rec = do(t, h, http.MethodPut, "/api/v1/session/customer", token, map[string]any{"customer_id": customerID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	do(t, h, http.MethodPost, "/api/v1/session/cart/lines", token, cartLineRequest{ProductID: "prd_arroz", Quantity: 1})
	rec = do(t, h, http.MethodPost, "/api/v1/session/checkout", token, map[string]any{"payment_method": "pix"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Joana", decodeBody(t, rec)["sale"].(map[string]any)["customer_name"])

	rec = do(t, h, http.MethodGet, "/api/v1/customers/"+customerID+"/sales", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["sales"], 1)

	rec = do(t, h, http.MethodDelete, "/api/v1/customers/"+customerID, token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSalesReportForAdmin(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashierToken := login(t, h, "cashier", "cashier123").AccessToken
	adminToken := login(t, h, "admin", "admin123").AccessToken

	do(t, h, http.MethodPost, "/api/v1/session/cart/lines", cashierToken, cartLineRequest{ProductID: "prd_oleo", Quantity: 2})
	rec := do(t, h, http.MethodPost, "/api/v1/session/checkout", cashierToken, map[string]any{"payment_method": "credit_card"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/reports/sales?period=today", cashierToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/reports/sales?period=all", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody(t, rec)
	assert.EqualValues(t, 1, report["sales"])
	assert.True(t, decimalField(t, report["total_revenue"]).Equal(decimal.RequireFromString("14.50")))

	rec = do(t, h, http.MethodGet, "/api/v1/reports/sales?period=year", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashierManagementAndPasswordChange(t *testing.T) {
	h := newTestAPI(t).Handler()
	adminToken := login(t, h, "admin", "admin123").AccessToken

	rec := do(t, h, http.MethodPost, "/api/v1/users/cashiers", adminToken, domain.CashierCreateRequest{Username: "caixa02", Password: "caixa-pass"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/users/cashiers", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["cashiers"], 2)

	newToken := login(t, h, "caixa02", "caixa-pass").AccessToken
	rec = do(t, h, http.MethodPost, "/api/v1/users/password", newToken, domain.PasswordChangeRequest{CurrentPassword: "caixa-pass", NewPassword: "outra-senha"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login(t, h, "caixa02", "outra-senha")
}

func TestMetricsEndpointExposesSales(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "cashier", "cashier123").AccessToken
	do(t, h, http.MethodPost, "/api/v1/session/cart/lines", token, cartLineRequest{ProductID: "prd_sabao", Quantity: 1})
	rec := do(t, h, http.MethodPost, "/api/v1/session/checkout", token, map[string]any{"payment_method": "pix"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pdv_sales_committed_total{payment_method="pix"} 1`)
	assert.Contains(t, rec.Body.String(), "pdv_http_requests_total")
}
