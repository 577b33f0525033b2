package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/live"
	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/provider"
	"smartspray.io/notifier/internal/repository"
	"smartspray.io/notifier/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = middleware.JWTConfig{SigningKey: []byte("handler-test-key"), Issuer: "smartspray-test"}

type fixture struct {
	router http.Handler
	store  *repository.SQLiteStore
	email  *provider.MockSender
	hub    *live.Hub
}

type fixtureOption func(*ServerDeps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := testutil.NewSQLiteStore(t)
	testutil.SeedUser(t, store, "amy")
	testutil.SeedUser(t, store, "bob", func(u *repository.User) { u.NotifyEmail = false })
	testutil.SeedUser(t, store, "root", func(u *repository.User) { u.Role = "admin" })

	email := provider.NewMockSender()
	hub := live.NewHub()
	d := notification.NewDispatcher(store, store,
		notification.Senders{notification.ChannelEmail: email},
		notification.WithPusher(hub),
	)

	deps := ServerDeps{
		Store:         store,
		Dispatcher:    d,
		Hub:           hub,
		RetentionDays: 30,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(deps)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	srv.RegisterHealthRoutes(r)
	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuth(testJWT), middleware.MustOpenAPIValidator("/api/v1"))
	srv.RegisterRoutes(api)

	return &fixture{router: r, store: store, email: email, hub: hub}
}

func token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	tok, _, err := middleware.GenerateToken(testJWT, userID, userID, roles)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	FieldErrors []struct {
		Field string `json:"field"`
		Code  string `json:"code"`
	} `json:"field_errors"`
}

func (f *fixture) create(t *testing.T, tok string, body map[string]interface{}) *notification.Notification {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/notifications", tok, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	n := decode[notification.Notification](t, w)
	return &n
}

func TestCreateNotification(t *testing.T) {
	f := newFixture(t)
	amy := token(t, "amy")

	n := f.create(t, amy, map[string]interface{}{
		"kind":     "warning",
		"title":    "Tank low",
		"message":  "Sprayer 3 is below 10%",
		"channels": []string{"in-app", "email"},
	})
	assert.Equal(t, "amy", n.UserID)
	assert.Equal(t, notification.PriorityMedium, n.Priority)
	assert.True(t, n.Sent)
	assert.Equal(t, notification.ChannelSet{notification.ChannelEmail}, n.SentChannels)

	deliveries := f.email.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "amy@farm.example", deliveries[0].Address)
}

func TestCreateNotification_Recipient(t *testing.T) {
	f := newFixture(t)
	body := map[string]interface{}{"user_id": "bob", "kind": "info", "title": "Hi", "message": "Hello"}

	w := f.do(t, http.MethodPost, "/api/v1/notifications", token(t, "amy"), body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, w).Code)

	n := f.create(t, token(t, "root", "admin"), body)
	assert.Equal(t, "bob", n.UserID)

	body["user_id"] = "ghost"
	w = f.do(t, http.MethodPost, "/api/v1/notifications", token(t, "root", "admin"), body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_USER", decode[errorBody](t, w).Code)
}

func TestCreateNotification_Invalid(t *testing.T) {
	f := newFixture(t)
	amy := token(t, "amy")

	w := f.do(t, http.MethodPost, "/api/v1/notifications", amy, map[string]interface{}{
		"kind": "gossip", "message": "no title",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
	fields := map[string]string{}
	for _, fe := range body.FieldErrors {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "INVALID", fields["kind"])
	assert.Equal(t, "REQUIRED", fields["title"])

	w = f.do(t, http.MethodPost, "/api/v1/notifications", amy, map[string]interface{}{
		"kind": "info", "title": "t", "message": "m", "colour": "red",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, middleware.CodeOpenAPIRequestInvalid, decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodPost, "/api/v1/notifications", "", map[string]interface{}{"kind": "info"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListNotifications(t *testing.T) {
	f := newFixture(t)
	amy := token(t, "amy")
	for _, kind := range []string{"info", "alert", "info"} {
		f.create(t, amy, map[string]interface{}{"kind": kind, "title": kind, "message": "m"})
	}
	f.create(t, token(t, "bob"), map[string]interface{}{"kind": "info", "title": "bob's", "message": "m"})

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantItems int
	}{
		{"all", "", 3, 3},
		{"by kind", "?kind=info", 2, 2},
		{"unread", "?read=false", 3, 3},
		{"read", "?read=true", 0, 0},
		{"paged", "?page=2&per_page=2", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/v1/notifications"+tt.query, amy, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			page := decode[notification.Page](t, w)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Len(t, page.Items, tt.wantItems)
			for _, n := range page.Items {
				assert.Equal(t, "amy", n.UserID)
			}
		})
	}

	w := f.do(t, http.MethodGet, "/api/v1/notifications?per_page=500", amy, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationLifecycle(t *testing.T) {
	f := newFixture(t)
	amy := token(t, "amy")
	bob := token(t, "bob")
	first := f.create(t, amy, map[string]interface{}{"kind": "info", "title": "one", "message": "m"})
	f.create(t, amy, map[string]interface{}{"kind": "alert", "title": "two", "message": "m"})

	w := f.do(t, http.MethodGet, "/api/v1/notifications/"+first.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/notifications/"+first.ID, token(t, "root", "admin"), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/notifications/missing", amy, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOTIFICATION_NOT_FOUND", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodGet, "/api/v1/notifications/unread-count", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[map[string]int](t, w)["count"])

	w = f.do(t, http.MethodPut, "/api/v1/notifications/"+first.ID+"/read", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	read := decode[notification.Notification](t, w)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	w = f.do(t, http.MethodPut, "/api/v1/notifications/"+first.ID+"/read", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, read.ReadAt.Unix(), decode[notification.Notification](t, w).ReadAt.Unix())

	w = f.do(t, http.MethodGet, "/api/v1/notifications/stats", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[notification.Stats](t, w)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Unread)
	assert.Equal(t, 1, stats.ByKind[notification.KindAlert])

	w = f.do(t, http.MethodPut, "/api/v1/notifications/read-all", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[map[string]int](t, w)["count"])

	w = f.do(t, http.MethodDelete, "/api/v1/notifications/"+first.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/notifications/"+first.ID, amy, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/notifications/"+first.ID, amy, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeEnqueuer struct {
	got []notification.BroadcastRequest
	err error
}

func (e *fakeEnqueuer) EnqueueBroadcast(_ context.Context, req notification.BroadcastRequest) (int64, error) {
	if e.err != nil {
		return 0, e.err
	}
	e.got = append(e.got, req)
	return int64(len(e.got)), nil
}

func TestBroadcastNotification(t *testing.T) {
	body := map[string]interface{}{"title": "Frost tonight", "message": "Cover seedlings"}

	t.Run("inline", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/admin/notifications/broadcast", token(t, "root", "admin"), body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := decode[notification.BroadcastResult](t, w)
		assert.Equal(t, 3, res.CreatedCount)
		assert.Zero(t, res.FailedCount)
	})

	t.Run("queued", func(t *testing.T) {
		q := &fakeEnqueuer{}
		f := newFixture(t, func(d *ServerDeps) { d.Broadcasts = q })
		w := f.do(t, http.MethodPost, "/api/v1/admin/notifications/broadcast", token(t, "root", "admin"), body)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, 1, decode[map[string]int](t, w)["job_id"])
		require.Len(t, q.got, 1)
		assert.Equal(t, "Frost tonight", q.got[0].Title)

		w = f.do(t, http.MethodPost, "/api/v1/admin/notifications/broadcast", token(t, "root", "admin"),
			map[string]interface{}{"title": "", "message": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Len(t, q.got, 1)
	})

	t.Run("queue down", func(t *testing.T) {
		f := newFixture(t, func(d *ServerDeps) { d.Broadcasts = &fakeEnqueuer{err: errors.New("conn refused")} })
		w := f.do(t, http.MethodPost, "/api/v1/admin/notifications/broadcast", token(t, "root", "admin"), body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "BROADCAST_FAILED", decode[errorBody](t, w).Code)
	})

	t.Run("not admin", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/admin/notifications/broadcast", token(t, "amy"), body)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestCleanupNotifications(t *testing.T) {
	f := newFixture(t)
	f.create(t, token(t, "amy"), map[string]interface{}{"kind": "info", "title": "fresh", "message": "m"})

	w := f.do(t, http.MethodPost, "/api/v1/admin/notifications/cleanup", token(t, "root", "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[map[string]int](t, w)["deleted"])

	w = f.do(t, http.MethodPost, "/api/v1/admin/notifications/cleanup?retention_days=abc", token(t, "root", "admin"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventTriggers(t *testing.T) {
	f := newFixture(t)
	admin := token(t, "root", "admin")

	tests := []struct {
		path string
		body map[string]interface{}
	}{
		{"spray-completed", map[string]interface{}{"user_id": "amy", "spray_id": "sp-1", "field_name": "North", "litres": 120.5}},
		{"disease-detected", map[string]interface{}{"user_id": "amy", "farm_id": "farm-1", "disease": "Blight", "confidence": 0.93}},
		{"device-offline", map[string]interface{}{"user_id": "amy", "device_id": "dev-7"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/admin/events/"+tt.path, admin, tt.body)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			n := decode[notification.Notification](t, w)
			assert.Equal(t, "amy", n.UserID)
			assert.NotNil(t, n.RelatedEntity)
		})
	}

	w := f.do(t, http.MethodPost, "/api/v1/admin/events/device-offline", admin, map[string]interface{}{"user_id": "amy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthRoutes(t *testing.T) {
	healthy := pingerFunc(func(context.Context) error { return nil })
	broken := pingerFunc(func(context.Context) error { return errors.New("down") })

	f := newFixture(t, func(d *ServerDeps) { d.Checks = map[string]Pinger{"store": healthy} })
	w := f.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f = newFixture(t, func(d *ServerDeps) { d.Checks = map[string]Pinger{"store": healthy, "redis": broken} })
	w = f.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"store": "ok", "redis": "error"}, body.Checks)
}

func TestServeLive(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/ws?token=" + token(t, "amy")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return f.hub.Subscribers("amy") == 1 }, 2*time.Second, 10*time.Millisecond)

	created := f.create(t, token(t, "amy"), map[string]interface{}{"kind": "info", "title": "live", "message": "m"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg live.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, live.MessageTypeNewNotification, msg.Type)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, created.ID, msg.Notification.ID)
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "https://evil.example", true},
		{[]string{"https://app.smartspray.io"}, "", true},
		{[]string{"https://app.smartspray.io"}, "https://app.smartspray.io", true},
		{[]string{"https://app.smartspray.io"}, "https://evil.example", false},
		{[]string{"*"}, "https://evil.example", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, originAllowed(tt.allowed, tt.origin), "%v %q", tt.allowed, tt.origin)
	}
}

func TestBindJSON_RejectsUnknownFieldsWithoutContract(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(ServerDeps{Store: f.store, Dispatcher: notification.NewDispatcher(f.store, f.store, nil), Hub: f.hub})

	r := gin.New()
	r.Use(middleware.ErrorHandler(), func(c *gin.Context) {
		ctx := middleware.WithCaller(c.Request.Context(), middleware.Caller{UserID: "amy", Roles: []string{"user"}})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	srv.RegisterRoutes(r.Group("/api/v1"))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown field", `{"kind":"info","title":"T","message":"M","colour":"red"}`, http.StatusBadRequest},
		{"malformed", `{"kind":`, http.StatusBadRequest},
		{"known fields only", `{"kind":"info","title":"T","message":"M"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Equal(t, "INVALID_REQUEST_FIELD", decode[errorBody](t, w).Code)
			}
		})
	}
}
