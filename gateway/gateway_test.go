package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	ledgergrpc "github.com/Vinayak0987/CareSync-sub001/pkg/grpc"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePeers struct {
	peers []ledgergrpc.PeerStatus
	err   error
}

func (f fakePeers) Peers(context.Context) ([]ledgergrpc.PeerStatus, error) {
	return f.peers, f.err
}

func newTestGateway(t *testing.T, peers Peers) (*Gateway, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	l, err := ledger.New(ledger.Options{
		Store:    store.NewOrderStore(backend.Session(), store.DefaultKeys(), time.Second, nil),
		Defaults: models.SeedOrders(),
		Origin:   "tab-http",
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return NewGateway(&config.Config{}, zap.NewNop(), l, peers), backend
}

func do(t *testing.T, g *Gateway, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	g, _ := newTestGateway(t, nil)
	w := do(t, g, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "tab-http", body["origin"])
}

func TestListOrders(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	w := do(t, g, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SeedOrders(), decode[[]models.Order](t, w))

	w = do(t, g, http.MethodGet, "/api/v1/orders?patient=Priya%20Sharma", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode[[]models.Order](t, w)
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-2026-002", orders[0].ID)

	w = do(t, g, http.MethodGet, "/api/v1/orders?patient_id=pat-ravi-kumar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders = decode[[]models.Order](t, w)
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-2026-001", orders[0].ID)

	w = do(t, g, http.MethodGet, "/api/v1/orders?patient=nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetOrder(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	w := do(t, g, http.MethodGet, "/api/v1/orders/ORD-2026-003", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SeedOrders()[0], decode[models.Order](t, w))

	w = do(t, g, http.MethodGet, "/api/v1/orders/ORD-2026-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrder(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	w := do(t, g, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"patientName":     "Meera Nair",
		"items":           []map[string]interface{}{{"name": "Paracetamol 650mg", "quantity": 2, "price": 30}},
		"deliveryAddress": "Indiranagar, Bengaluru",
		"prescription":    false,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Order](t, w)
	assert.Equal(t, "Meera Nair", created.PatientName)
	assert.Equal(t, 60.0, created.Total)
	assert.Equal(t, models.StatusPending, created.Status)
	_, seq, ok := models.ParseOrderID(created.ID)
	require.True(t, ok)
	assert.Equal(t, 4, seq)

	w = do(t, g, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, created.ID, decode[[]models.Order](t, w)[0].ID)
}

func TestCreateOrderValidation(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	cases := map[string]map[string]interface{}{
		"missing patient": {
			"items":           []map[string]interface{}{{"name": "X", "quantity": 1, "price": 1}},
			"deliveryAddress": "Pune",
		},
		"no items": {
			"patientName":     "A",
			"items":           []map[string]interface{}{},
			"deliveryAddress": "Pune",
		},
		"missing address": {
			"patientName": "A",
			"items":       []map[string]interface{}{{"name": "X", "quantity": 1, "price": 1}},
		},
		"zero quantity": {
			"patientName":     "A",
			"items":           []map[string]interface{}{{"name": "X", "quantity": 0, "price": 1}},
			"deliveryAddress": "Pune",
		},
		"unknown status": {
			"patientName":     "A",
			"items":           []map[string]interface{}{{"name": "X", "quantity": 1, "price": 1}},
			"deliveryAddress": "Pune",
			"status":          "shipped",
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, g, http.MethodPost, "/api/v1/orders", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := do(t, g, http.MethodGet, "/api/v1/orders", nil)
	assert.Len(t, decode[[]models.Order](t, w), 3, "rejected drafts are not added")
}

func TestUpdateOrderStatus(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	w := do(t, g, http.MethodPut, "/api/v1/orders/ORD-2026-001/status", map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusProcessing, decode[models.Order](t, w).Status)

	w = do(t, g, http.MethodPut, "/api/v1/orders/ORD-2026-001/status", map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, g, http.MethodPut, "/api/v1/orders/ORD-2026-001/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, g, http.MethodPut, "/api/v1/orders/ORD-2026-404/status", map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, g, http.MethodPut, "/api/v1/orders/ORD-2026-001/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdvanceAndCancel(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	w := do(t, g, http.MethodPost, "/api/v1/orders/ORD-2026-003/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusDelivered, decode[models.Order](t, w).Status)

	w = do(t, g, http.MethodPost, "/api/v1/orders/ORD-2026-003/advance", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, g, http.MethodPost, "/api/v1/orders/ORD-2026-001/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusCancelled, decode[models.Order](t, w).Status)

	w = do(t, g, http.MethodPost, "/api/v1/orders/ORD-2026-002/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFocus(t *testing.T) {
	g, backend := newTestGateway(t, nil)

	w := do(t, g, http.MethodPost, "/api/v1/focus", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"adopted":false}`, w.Body.String())

	raw, err := store.EncodeOrders(models.SeedOrders()[:1])
	require.NoError(t, err)
	backend.Put(store.DefaultKeys().Orders, raw)

	w = do(t, g, http.MethodPost, "/api/v1/focus", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"adopted":true}`, w.Body.String())

	w = do(t, g, http.MethodGet, "/api/v1/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[ledger.Info](t, w).Orders)
}

func TestSessions(t *testing.T) {
	g, _ := newTestGateway(t, nil)
	w := do(t, g, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	peers := fakePeers{peers: []ledgergrpc.PeerStatus{{Status: "SERVING"}}}
	peers.peers[0].Origin = "tab-a"
	g, _ = newTestGateway(t, peers)
	w = do(t, g, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[[]ledgergrpc.PeerStatus](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "tab-a", got[0].Origin)
	assert.Equal(t, "SERVING", got[0].Status)

	g, _ = newTestGateway(t, fakePeers{err: errors.New("etcd down")})
	w = do(t, g, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	g, _ := newTestGateway(t, nil)
	do(t, g, http.MethodGet, "/health", nil)
	w := do(t, g, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
