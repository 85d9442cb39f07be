package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/memory"
)

// --- Mock implementations ---

type sent struct {
	userID  string
	message string
}

type recordingNotifier struct {
	mu        sync.Mutex
	messages  []sent
	delivered bool
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, userID, message string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, sent{userID: userID, message: message})
	return n.delivered, n.err
}

func (n *recordingNotifier) history() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.messages...)
}

// --- Helpers ---

type testEnv struct {
	router   http.Handler
	orders   *order.Service
	products *memory.ProductRepository
	notifier *recordingNotifier

	admin, customer, other                *user.User
	adminToken, customerToken, otherToken string
}

// notifications waits for background status notifications and returns
// everything the notifier received.
func (env *testEnv) notifications() []sent {
	env.orders.Wait()
	return env.notifier.history()
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	products := memory.NewProductRepository()
	require.NoError(t, products.Create(ctx, &product.Product{
		ID:       "p1",
		Name:     "Espresso Beans",
		Category: "coffee",
		Image:    "img/beans.png",
		Price:    d("100"),
		Stock:    40,
		DiscountTiers: []discount.Tier{
			{MinQuantity: 5, Percentage: d("5")},
			{MinQuantity: 10, Percentage: d("10")},
		},
	}))
	require.NoError(t, products.Create(ctx, &product.Product{
		ID:    "p2",
		Name:  "Apron",
		Image: "https://images.example.org/apron.png",
		Price: d("19.99"),
		Stock: 5,
	}))

	users := user.NewService(memory.NewUserRepository())
	register := func(name string, role user.Role) *user.User {
		u, err := users.Register(ctx, user.RegisterRequest{
			Name:     name,
			Email:    name + "@example.com",
			Password: "correct horse",
			Role:     role,
		})
		require.NoError(t, err)
		return u
	}

	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	issue := func(u *user.User) string {
		tok, _, err := tokens.Issue(u)
		require.NoError(t, err)
		return tok
	}

	notifier := &recordingNotifier{delivered: true}
	orders := order.NewService(products, memory.NewOrderRepository(), notifier)
	h := NewHandler(
		Config{ImageBaseURL: "https://cdn.example.com/"},
		product.NewService(products),
		orders,
		users,
		tokens,
		notifier,
	)

	r := chi.NewRouter()
	r.Mount("/api", h.Routes())

	env := &testEnv{
		router:   r,
		orders:   orders,
		products: products,
		notifier: notifier,
		admin:    register("admin", user.RoleAdmin),
		customer: register("alice", user.RoleCustomer),
		other:    register("bob", user.RoleCustomer),
	}
	env.adminToken = issue(env.admin)
	env.customerToken = issue(env.customer)
	env.otherToken = issue(env.other)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) placeOrder(t *testing.T, userID string, quantity int) *order.Order {
	t.Helper()
	res, err := e.orders.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		UserID: userID,
		Items:  []order.CartLine{{ProductID: "p1", Quantity: quantity}},
	})
	require.NoError(t, err)
	return res.Order
}

func decodeObject(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	dec := json.NewDecoder(w.Body)
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m), "body: %s", w.Body.String())
	return m
}

func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	dec := json.NewDecoder(w.Body)
	dec.UseNumber()
	var a []any
	require.NoError(t, dec.Decode(&a), "body: %s", w.Body.String())
	return a
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decodeObject(t, w)
	assert.Equal(t, json.Number(strconv.Itoa(status)), body["code"])
	assert.NotEmpty(t, body["message"])
}

// --- Tests ---

func TestProducts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeArray(t, w)
	require.Len(t, list, 2)
	apron := list[0].(map[string]any)
	assert.Equal(t, "Apron", apron["name"])
	assert.Equal(t, json.Number("19.99"), apron["price"])
	assert.Equal(t, "https://images.example.org/apron.png", apron["image"], "absolute urls are kept")

	w = env.do(t, http.MethodGet, "/api/products/p1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	beans := decodeObject(t, w)
	assert.Equal(t, json.Number("100.00"), beans["price"])
	assert.Equal(t, "https://cdn.example.com/img/beans.png", beans["image"])
	tiers := beans["discountTiers"].([]any)
	require.Len(t, tiers, 2)
	assert.Equal(t, map[string]any{
		"minQuantity":        json.Number("5"),
		"discountPercentage": json.Number("5"),
	}, tiers[0])

	assertError(t, env.do(t, http.MethodGet, "/api/products/missing", "", ""), http.StatusNotFound)
}

func TestQuoteProduct(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		quantity string
		unit     string
		subtotal string
		tier     bool
	}{
		{quantity: "3", unit: "100.00", subtotal: "300.00"},
		{quantity: "7", unit: "95.00", subtotal: "665.00", tier: true},
		{quantity: "10", unit: "90.00", subtotal: "900.00", tier: true},
	}
	for _, tt := range tests {
		t.Run(tt.quantity, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/products/p1/quote?quantity="+tt.quantity, "", "")
			require.Equal(t, http.StatusOK, w.Code)
			q := decodeObject(t, w)
			assert.Equal(t, json.Number(tt.unit), q["unitPrice"])
			assert.Equal(t, json.Number(tt.subtotal), q["subtotal"])
			assert.Equal(t, json.Number("100.00"), q["basePrice"])
			if tt.tier {
				assert.NotNil(t, q["tier"])
			} else {
				assert.Nil(t, q["tier"])
			}
		})
	}

	assertError(t, env.do(t, http.MethodGet, "/api/products/p1/quote?quantity=abc", "", ""), http.StatusBadRequest)
	assertError(t, env.do(t, http.MethodGet, "/api/products/p1/quote?quantity=0", "", ""), http.StatusUnprocessableEntity)
	assertError(t, env.do(t, http.MethodGet, "/api/products/nope/quote?quantity=1", "", ""), http.StatusNotFound)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name":"Carol","email":"Carol@Example.com","password":"long enough","phone":"+100"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeObject(t, w)
	assert.Equal(t, "carol@example.com", created["email"])
	assert.Equal(t, "customer", created["role"])
	assert.Equal(t, false, created["telegramLinked"])
	assert.NotContains(t, created, "passwordHash")

	// Role in the body is ignored.
	w = env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name":"Mallory","email":"m@example.com","password":"long enough","role":"admin"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "customer", decodeObject(t, w)["role"])

	assertError(t, env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name":"Carol","email":"carol@example.com","password":"long enough"}`), http.StatusConflict)
	assertError(t, env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name":"Dan","email":"not-an-email","password":"long enough"}`), http.StatusBadRequest)
	assertError(t, env.do(t, http.MethodPost, "/api/auth/register", "", `{"name":`), http.StatusBadRequest)
	assertError(t, env.do(t, http.MethodPost, "/api/auth/register", "", ""), http.StatusBadRequest)

	assertError(t, env.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"carol@example.com","password":"wrong password"}`), http.StatusUnauthorized)
	assertError(t, env.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"nobody@example.com","password":"long enough"}`), http.StatusUnauthorized)

	w = env.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"CAROL@example.com","password":"long enough"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decodeObject(t, w)
	token, _ := login["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, login["expiresAt"])

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Carol", decodeObject(t, rec)["name"])

	w = env.do(t, http.MethodPost, "/api/auth/logout", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.do(t, http.MethodGet, "/api/orders", "", ""), http.StatusUnauthorized)
	assertError(t, env.do(t, http.MethodGet, "/api/orders", "garbage", ""), http.StatusUnauthorized)

	other, err := auth.NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	forged, _, err := other.Issue(env.admin)
	require.NoError(t, err)
	assertError(t, env.do(t, http.MethodGet, "/api/admin/orders", forged, ""), http.StatusUnauthorized)

	assertError(t, env.do(t, http.MethodGet, "/api/admin/orders", env.customerToken, ""), http.StatusForbidden)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/products", env.customerToken, `{}`), http.StatusForbidden)

	w := env.do(t, http.MethodGet, "/api/admin/orders", env.adminToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	assertError(t, env.do(t, http.MethodGet, "/api/unknown", "", ""), http.StatusNotFound)
	assertError(t, env.do(t, http.MethodDelete, "/api/products", "", ""), http.StatusMethodNotAllowed)
}

func TestLinkTelegram(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/me/telegram", env.customerToken, `{"chatId":123456789}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeObject(t, w)["telegramLinked"])

	w = env.do(t, http.MethodPut, "/api/me/telegram", env.customerToken, `{"chatId":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeObject(t, w)["telegramLinked"])

	w = env.do(t, http.MethodPut, "/api/me/telegram", env.customerToken, `{"chatId":"  42 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeObject(t, w)["telegramLinked"])
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/orders", env.customerToken,
		`{"items":[{"productId":"p1","quantity":7},{"productId":"p2","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decodeObject(t, w)
	assert.Equal(t, "pending", o["status"])
	assert.Equal(t, env.customer.ID, o["userId"])
	assert.Equal(t, json.Number("684.99"), o["total"])
	assert.Nil(t, o["expectedDeliveryTime"])
	assert.Equal(t, json.Number("1"), o["version"])

	items := o["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, json.Number("95.00"), first["unitPrice"])
	assert.Equal(t, json.Number("665.00"), first["subtotal"])
	assert.Len(t, o["products"], 2)
	assert.Empty(t, env.notifications(), "placing an order does not notify")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "unknown product", body: `{"items":[{"productId":"p1","quantity":1},{"productId":"ghost","quantity":1}]}`, status: http.StatusUnprocessableEntity},
		{name: "zero quantity", body: `{"items":[{"productId":"p1","quantity":0}]}`, status: http.StatusUnprocessableEntity},
		{name: "empty items", body: `{"items":[]}`, status: http.StatusBadRequest},
		{name: "no items field", body: `{}`, status: http.StatusBadRequest},
		{name: "quantity not a number", body: `{"items":[{"productId":"p1","quantity":"two"}]}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, env.do(t, http.MethodPost, "/api/orders", env.customerToken, tt.body), tt.status)
		})
	}

	w = env.do(t, http.MethodGet, "/api/orders", env.customerToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeArray(t, w), 1, "failed orders are not stored")
}

func TestGetOrderVisibility(t *testing.T) {
	env := newTestEnv(t)
	o := env.placeOrder(t, env.customer.ID, 2)

	w := env.do(t, http.MethodGet, "/api/orders/"+o.ID, env.customerToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o.ID, decodeObject(t, w)["id"])

	assertError(t, env.do(t, http.MethodGet, "/api/orders/"+o.ID, env.otherToken, ""), http.StatusNotFound)

	w = env.do(t, http.MethodGet, "/api/orders/"+o.ID, env.adminToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders", env.otherToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeArray(t, w))
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	o := env.placeOrder(t, env.customer.ID, 3)
	path := "/api/admin/orders/" + o.ID

	w := env.do(t, http.MethodPost, path+"/status", env.adminToken,
		`{"status":"approved","expectedDeliveryTime":"2025-07-01T15:30:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decodeObject(t, w)
	assert.Equal(t, "approved", approved["status"])
	assert.Equal(t, "2025-07-01T15:30:00Z", approved["expectedDeliveryTime"])
	assert.Equal(t, json.Number("2"), approved["version"])

	msgs := env.notifications()
	require.Len(t, msgs, 1)
	assert.Equal(t, env.customer.ID, msgs[0].userID)
	assert.Equal(t, "Order #"+order.ShortID(o.ID)+" status changed to approved. Expected delivery: 2025-07-01", msgs[0].message)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "skip to delivered", body: `{"status":"delivered"}`, status: http.StatusConflict},
		{name: "unknown status", body: `{"status":"lost"}`, status: http.StatusBadRequest},
		{name: "delivery time on cancel", body: `{"status":"cancelled","expectedDeliveryTime":"2025-07-01T00:00:00Z"}`, status: http.StatusBadRequest},
		{name: "bad delivery time", body: `{"status":"shipping","expectedDeliveryTime":"tomorrow"}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, env.do(t, http.MethodPost, path+"/status", env.adminToken, tt.body), tt.status)
		})
	}
	assert.Len(t, env.notifications(), 1, "rejected changes do not notify")

	w = env.do(t, http.MethodPost, path+"/status", env.adminToken, `{"status":"shipping"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-07-01T15:30:00Z", decodeObject(t, w)["expectedDeliveryTime"], "delivery time is preserved")

	w = env.do(t, http.MethodPost, path+"/status", env.adminToken, `{"status":"delivered"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Terminal orders only move through the explicit override.
	assertError(t, env.do(t, http.MethodPost, path+"/status", env.adminToken, `{"status":"pending"}`), http.StatusConflict)
	w = env.do(t, http.MethodPost, path+"/force-status", env.adminToken, `{"status":"pending"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decodeObject(t, w)["status"])
	assert.Len(t, env.notifications(), 4)

	assertError(t, env.do(t, http.MethodPost, "/api/admin/orders/missing/status", env.adminToken, `{"status":"approved"}`), http.StatusNotFound)
}

func TestAdminListAndDeleteOrders(t *testing.T) {
	env := newTestEnv(t)
	first := env.placeOrder(t, env.customer.ID, 1)
	env.placeOrder(t, env.other.ID, 1)
	_, err := env.orders.Transition(context.Background(), order.TransitionRequest{
		OrderID: first.ID,
		Status:  order.StatusCancelled,
	})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/admin/orders", env.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeArray(t, w), 2)

	w = env.do(t, http.MethodGet, "/api/admin/orders?status=cancelled", env.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decodeArray(t, w)
	require.Len(t, cancelled, 1)
	assert.Equal(t, first.ID, cancelled[0].(map[string]any)["id"])

	w = env.do(t, http.MethodGet, "/api/admin/orders?userId="+env.other.ID, env.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeArray(t, w), 1)

	assertError(t, env.do(t, http.MethodGet, "/api/admin/orders?status=weird", env.adminToken, ""), http.StatusBadRequest)

	w = env.do(t, http.MethodDelete, "/api/admin/orders/"+first.ID, env.adminToken, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assertError(t, env.do(t, http.MethodDelete, "/api/admin/orders/"+first.ID, env.adminToken, ""), http.StatusNotFound)
}

func TestAdminProducts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/products", env.adminToken,
		`{"name":"Grinder","category":"tools","price":"49.90","stock":3,"discountTiers":[{"minQuantity":2,"discountPercentage":5}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeObject(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, json.Number("49.90"), created["price"])

	assertError(t, env.do(t, http.MethodPost, "/api/admin/products", env.adminToken,
		`{"name":"Bad","price":1,"discountTiers":[{"minQuantity":2,"discountPercentage":150}]}`), http.StatusUnprocessableEntity)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/products", env.adminToken,
		`{"price":1}`), http.StatusUnprocessableEntity)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/products", env.adminToken,
		`{"name":"Bad","price":true}`), http.StatusBadRequest)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/products", env.adminToken,
		`{"name":"Bad","price":10.005}`), http.StatusUnprocessableEntity)

	w = env.do(t, http.MethodPatch, "/api/admin/products/"+id, env.adminToken, `{"price":55,"stock":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := decodeObject(t, w)
	assert.Equal(t, json.Number("55.00"), patched["price"])
	assert.Equal(t, json.Number("0"), patched["stock"])
	assertError(t, env.do(t, http.MethodPatch, "/api/admin/products/"+id, env.adminToken,
		`{"price":"55.555"}`), http.StatusUnprocessableEntity)
	assert.Equal(t, "Grinder", patched["name"])
	assertError(t, env.do(t, http.MethodPatch, "/api/admin/products/ghost", env.adminToken, `{"stock":1}`), http.StatusNotFound)

	w = env.do(t, http.MethodPost, "/api/admin/products/"+id+"/discounts", env.adminToken,
		`{"minQuantity":10,"discountPercentage":"12.5"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeObject(t, w)["discountTiers"], 2)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/products/"+id+"/discounts", env.adminToken,
		`{"minQuantity":20,"discountPercentage":1}`), http.StatusUnprocessableEntity)

	w = env.do(t, http.MethodDelete, "/api/admin/products/"+id+"/discounts/2", env.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeObject(t, w)["discountTiers"], 1)
	assertError(t, env.do(t, http.MethodDelete, "/api/admin/products/"+id+"/discounts/2", env.adminToken, ""), http.StatusNotFound)
	assertError(t, env.do(t, http.MethodDelete, "/api/admin/products/"+id+"/discounts/two", env.adminToken, ""), http.StatusBadRequest)

	stored, err := env.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, d("55").Equal(stored.Price))
}

func TestSendNotification(t *testing.T) {
	env := newTestEnv(t)
	body := `{"userId":"` + env.customer.ID + `","message":"  Your table is ready  "}`

	w := env.do(t, http.MethodPost, "/api/admin/notifications", env.adminToken, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"delivered":true}`, w.Body.String())
	msgs := env.notifications()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Your table is ready", msgs[0].message)

	env.notifier.delivered = false
	w = env.do(t, http.MethodPost, "/api/admin/notifications", env.adminToken, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"delivered":false}`, w.Body.String())

	env.notifier.err = errors.New("telegram down")
	assertError(t, env.do(t, http.MethodPost, "/api/admin/notifications", env.adminToken, body), http.StatusBadGateway)

	assertError(t, env.do(t, http.MethodPost, "/api/admin/notifications", env.adminToken,
		`{"userId":"ghost","message":"hi"}`), http.StatusNotFound)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/notifications", env.adminToken,
		`{"userId":"`+env.customer.ID+`","message":"   "}`), http.StatusBadRequest)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &order.ProductNotFoundError{ProductID: "x"}, want: http.StatusUnprocessableEntity},
		{err: &order.InvalidQuantityError{ProductID: "x"}, want: http.StatusUnprocessableEntity},
		{err: &discount.InvalidTierError{MinQuantity: 0, Reason: "r"}, want: http.StatusUnprocessableEntity},
		{err: errors.Wrap(product.ErrInvalidProduct, "name"), want: http.StatusUnprocessableEntity},
		{err: order.ErrEmptyItems, want: http.StatusBadRequest},
		{err: errors.Wrap(order.ErrUnknownStatus, `"x"`), want: http.StatusBadRequest},
		{err: order.ErrDeliveryTimeNotAllowed, want: http.StatusBadRequest},
		{err: badRequest("nope"), want: http.StatusBadRequest},
		{err: &order.InvalidTransitionError{From: order.StatusPending, To: order.StatusDelivered}, want: http.StatusConflict},
		{err: errors.Wrap(order.ErrConcurrentUpdate, "update order 1"), want: http.StatusConflict},
		{err: errors.Wrap(product.ErrConcurrentUpdate, "update product p1"), want: http.StatusConflict},
		{err: user.ErrEmailTaken, want: http.StatusConflict},
		{err: user.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{err: order.ErrNotFound, want: http.StatusNotFound},
		{err: product.ErrNotFound, want: http.StatusNotFound},
		{err: user.ErrNotFound, want: http.StatusNotFound},
		{err: errForbidden, want: http.StatusForbidden},
		{err: errors.New("connection reset"), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	fail(w, req, errors.New("pq: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
	entries := logs.FilterMessage("Request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pq: connection reset by peer", entries[0].ContextMap()["error"])
}
