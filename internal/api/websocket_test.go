package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/doc-classifier/dashboard/internal/dashboard"
	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, a *testAPI) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(a.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestEvents_StreamsDashboardEvents(t *testing.T) {
	a := newTestAPI(t)
	ws := dialEvents(t, a)

	assert.Equal(t, MsgTypeConnected, readMessage(t, ws).Type)

	id := a.fake.AddFile("memo.txt", models.FileStatusCompleted)
	rec := a.do(http.MethodPost, "/api/files/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeEvent, msg.Type)
	var ev dashboard.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, dashboard.EventFilesRefreshed, ev.Type)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/api/files/%d", id), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	msg = readMessage(t, ws)
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, dashboard.EventFileDeleted, ev.Type)
	assert.Equal(t, id, ev.FileID)
}

func TestEvents_PingAndUnknownType(t *testing.T) {
	a := newTestAPI(t)
	ws := dialEvents(t, a)
	readMessage(t, ws)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, ws).Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "upload:init"}))
	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeError, msg.Type)
	var payload WSErrorResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "INVALID_TYPE", payload.Code)
}

func TestEvents_ClosedOnShutdown(t *testing.T) {
	a := newTestAPI(t)
	ws := dialEvents(t, a)
	readMessage(t, ws)

	require.NoError(t, a.dash.Close())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestEvents_OriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		wantOK  bool
	}{
		{"listed origin", []string{"http://localhost:5173"}, "http://localhost:5173", true},
		{"listed origin trailing slash", []string{"http://localhost:5173/"}, "http://LOCALHOST:5173", true},
		{"unlisted origin", []string{"http://localhost:5173"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"no origin header", []string{"http://localhost:5173"}, "", true},
		{"same-origin default rejects foreign", nil, "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewEventHandler(nil, nil, tt.origins).upgrader.CheckOrigin
			req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8089/api/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if check == nil {
				// The upgrader falls back to its same-origin check.
				assert.False(t, tt.wantOK)
				return
			}
			assert.Equal(t, tt.wantOK, check(req))
		})
	}
}

func TestEvents_RejectsForeignOriginHandshake(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
