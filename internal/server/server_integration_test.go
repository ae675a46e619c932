package server

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/server/api"
)

func jpegFrame(t *testing.T, width, height int) []byte {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 140, 210, 0), height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/recognize/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func TestStream_RecognizesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s, e := newTestServer(t, config.Default(), fixedModule{name: config.ModuleDetection, word: "hello", conf: 0.88})
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn := dial(t, ts, "?session_id=ws-1")

	var hello streamHello
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("ReadJSON(hello) error = %v", err)
	}
	if hello.SessionID != "ws-1" {
		t.Errorf("hello session = %q, want ws-1", hello.SessionID)
	}

	// Binary JPEG frame.
	frame := jpegFrame(t, 640, 480)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	var res api.RecognizeResponse
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("ReadJSON(result) error = %v", err)
	}
	if res.Word != "hello" || res.BufferStatus != "ready" || res.SessionID != "ws-1" {
		t.Errorf("unexpected result %+v", res)
	}

	// Text data URI frame.
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(uri)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	res = api.RecognizeResponse{}
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("ReadJSON(result) error = %v", err)
	}
	if res.Word != "hello" {
		t.Errorf("text frame result = %+v", res)
	}

	// A bad frame gets an error and keeps the connection open.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("not an image")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	var bad streamError
	if err := conn.ReadJSON(&bad); err != nil {
		t.Fatalf("ReadJSON(error) error = %v", err)
	}
	if bad.Error == "" {
		t.Error("expected an error message for a bad frame")
	}

	if _, ok := e.Sessions().Lookup("ws-1"); !ok {
		t.Fatal("expected the session to exist while connected")
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := e.Sessions().Lookup("ws-1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session was not dropped after the connection closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStream_GeneratesSessionID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s, _ := newTestServer(t, config.Default(), fixedModule{name: config.ModuleDetection, word: "A", conf: 0.9})
	ts := httptest.NewServer(s)
	defer ts.Close()

	first := dial(t, ts, "")
	second := dial(t, ts, "")

	var a, b streamHello
	if err := first.ReadJSON(&a); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if err := second.ReadJSON(&b); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if a.SessionID == "" || a.SessionID == b.SessionID {
		t.Errorf("expected distinct generated session ids, got %q and %q", a.SessionID, b.SessionID)
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting until %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStream_SharedSessionOutlivesOneConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	_, e := newTestServer(t, config.Default(), fixedModule{name: config.ModuleDetection, word: "hello", conf: 0.9})
	h := NewStreamHandler(e, config.NewRegistry(config.Default()))
	ts := httptest.NewServer(h)
	defer ts.Close()

	first := dial(t, ts, "?session_id=shared")
	second := dial(t, ts, "?session_id=shared")
	for _, conn := range []*websocket.Conn{first, second} {
		var hello streamHello
		if err := conn.ReadJSON(&hello); err != nil {
			t.Fatalf("ReadJSON(hello) error = %v", err)
		}
	}
	waitUntil(t, "both connections are counted", func() bool { return h.Connections("shared") == 2 })

	if err := first.WriteMessage(websocket.BinaryMessage, jpegFrame(t, 320, 240)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	var res api.RecognizeResponse
	if err := first.ReadJSON(&res); err != nil {
		t.Fatalf("ReadJSON(result) error = %v", err)
	}

	first.Close()
	waitUntil(t, "the first connection is released", func() bool { return h.Connections("shared") == 1 })
	if _, ok := e.Sessions().Lookup("shared"); !ok {
		t.Fatal("session dropped while another connection still uses it")
	}

	if err := second.WriteMessage(websocket.BinaryMessage, jpegFrame(t, 320, 240)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	res = api.RecognizeResponse{}
	if err := second.ReadJSON(&res); err != nil {
		t.Fatalf("ReadJSON(result) error = %v", err)
	}
	if res.Word != "hello" || res.SessionID != "shared" {
		t.Errorf("unexpected result on the remaining connection %+v", res)
	}

	second.Close()
	waitUntil(t, "the session is dropped", func() bool {
		_, ok := e.Sessions().Lookup("shared")
		return !ok && h.Connections("shared") == 0
	})
}
