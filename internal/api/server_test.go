package api

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"danmaku/internal/config"
	"danmaku/internal/render"
	"danmaku/internal/sim"

	"github.com/gorilla/websocket"
)

func newIntegrationServer(t *testing.T, enemyCap int) (*sim.Engine, *Server, *httptest.Server) {
	t.Helper()
	ecfg := sim.DefaultEngineConfig()
	ecfg.Enemy.Capacity = enemyCap
	engine, err := sim.NewEngine(ecfg)
	if err != nil {
		t.Fatal(err)
	}

	scfg := config.DefaultServer()
	scfg.RateLimit = 1000
	scfg.RateBurst = 1000
	scfg.BroadcastHz = 50

	srv := NewServer(engine, render.NewDebugRenderer(64, 64), scfg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return engine, srv, ts
}

func TestServerSpawnTickSnapshot(t *testing.T) {
	engine, _, ts := newIntegrationServer(t, 2)

	body := `{"x":0,"y":0,"speed":0.125,"angle":0,"radius":0.01,"grazeRadius":0.02}`
	for i := 0; i < 2; i++ {
		if resp, out := post(t, ts.URL+"/api/spawn", body, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("spawn %d: %d %v", i, resp.StatusCode, out)
		}
	}
	// Pool is full
	if resp, _ := post(t, ts.URL+"/api/spawn", body, nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("over capacity status = %d, want 503", resp.StatusCode)
	}

	engine.Advance(1)

	resp, err := http.Get(ts.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	var frame sim.Frame
	json.NewDecoder(resp.Body).Decode(&frame)
	resp.Body.Close()
	if frame.Tick != 1 || len(frame.Enemy) != 2 {
		t.Fatalf("frame tick %d with %d bullets", frame.Tick, len(frame.Enemy))
	}
	// Spawned between ticks, moved once by the tick
	if frame.Enemy[0].X != 0.125 {
		t.Errorf("x = %v, want 0.125", frame.Enemy[0].X)
	}

	resp, err = http.Get(ts.URL + "/api/frame.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("frame width = %d", img.Bounds().Dx())
	}

	if resp, out := post(t, ts.URL+"/api/clear", `{"pool":"enemy"}`, nil); resp.StatusCode != http.StatusOK || out["removed"] != float64(2) {
		t.Errorf("clear: %d %v", resp.StatusCode, out)
	}
	if st := engine.Stats(); st.Enemy.Live != 0 || st.Enemy.Cleared != 2 {
		t.Errorf("after clear: live %d cleared %d", st.Enemy.Live, st.Enemy.Cleared)
	}
}

func TestServerWebSocketFeed(t *testing.T) {
	engine, srv, ts := newIntegrationServer(t, 16)
	go srv.Hub().Run()
	srv.Hub().StartBroadcastLoop(engine)
	engine.Advance(3)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event string    `json:"event"`
		Data  sim.Frame `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event != "sim:frame" || msg.Data.Tick != 3 {
		t.Errorf("message = %s tick %d", msg.Event, msg.Data.Tick)
	}
}

func TestServerRejectsForeignOrigin(t *testing.T) {
	_, srv, ts := newIntegrationServer(t, 16)
	go srv.Hub().Run()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v", resp)
	}
}
