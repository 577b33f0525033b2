package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartspray.io/notifier/internal/notification"
)

func TestHub_Serve(t *testing.T) {
	hub := NewHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(context.Background(), conn, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=farmer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("farmer") == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Push("farmer", &notification.Notification{ID: "n-1", UserID: "farmer", Title: "Tank empty"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeNewNotification, msg.Type)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "Tank empty", msg.Notification.Title)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers("farmer") == 0 },
		2*time.Second, 10*time.Millisecond)
}
