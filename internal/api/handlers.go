package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"danmaku/internal/bullet"
	"danmaku/internal/sim"
	"danmaku/internal/trajectory"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// spawnRequest is the JSON form of bullet.SpawnSpec. Kind and pool are names;
// params keys match trajectory.Params fields case-insensitively.
type spawnRequest struct {
	Pool        string            `json:"pool"` // "enemy" (default) or "shots"
	Kind        string            `json:"kind"` // defaults to "straight"
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Speed       float64           `json:"speed"`
	Angle       float64           `json:"angle"`
	Radius      float64           `json:"radius"`
	GrazeRadius float64           `json:"grazeRadius"`
	Visual      uint16            `json:"visual"`
	Color       uint32            `json:"color"`
	Owner       string            `json:"owner"`
	Lifetime    int32             `json:"lifetime"`
	Damage      int32             `json:"damage"`
	Pierce      int32             `json:"pierce"`
	Params      trajectory.Params `json:"params"`
}

func (req *spawnRequest) toSpec() (sim.PoolID, bullet.SpawnSpec, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return 0, bullet.SpawnSpec{}, err
	}
	kind := trajectory.Straight
	if req.Kind != "" {
		k, ok := trajectory.ParseKind(req.Kind)
		if !ok {
			return 0, bullet.SpawnSpec{}, fmt.Errorf("unknown kind %q", req.Kind)
		}
		kind = k
	}
	return pool, bullet.SpawnSpec{
		Kind:        kind,
		Params:      req.Params,
		X:           req.X,
		Y:           req.Y,
		Speed:       req.Speed,
		Angle:       req.Angle,
		Radius:      req.Radius,
		GrazeRadius: req.GrazeRadius,
		Visual:      req.Visual,
		Color:       req.Color,
		Owner:       req.Owner,
		Lifetime:    req.Lifetime,
		Damage:      req.Damage,
		Pierce:      req.Pierce,
	}, nil
}

func parsePool(name string) (sim.PoolID, error) {
	if name == "" {
		return sim.EnemyPool, nil
	}
	id, ok := sim.ParsePoolID(name)
	if !ok {
		return 0, fmt.Errorf("unknown pool %q", name)
	}
	return id, nil
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// spawnStatus maps pool errors to HTTP status codes.
func spawnStatus(err error) int {
	switch {
	case errors.Is(err, bullet.ErrInvalidSpawnSpec):
		return http.StatusBadRequest
	case errors.Is(err, bullet.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Stats())
}

func (h *routerHandlers) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	// Encode while viewing so the frame is not copied; the reader lock is
	// only held for the marshal, not the network write.
	var buf bytes.Buffer
	var err error
	h.engine.ViewSnapshot(func(f *sim.Frame) {
		err = json.NewEncoder(&buf).Encode(f)
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "renderer disabled", http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	var err error
	h.engine.ViewSnapshot(func(f *sim.Frame) {
		err = h.renderer.EncodePNG(&buf, f)
	})
	if err != nil {
		log.Printf("⚠️ Frame render failed: %v", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pool, spec, err := req.toSpec()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	handle, err := h.engine.SpawnNow(pool, spec)
	if err != nil {
		writeError(w, err.Error(), spawnStatus(err))
		return
	}
	writeJSON(w, map[string]any{
		"handle": handle.String(),
		"slot":   handle.Slot,
		"gen":    handle.Gen,
		"pool":   pool.String(),
	})
}

type ringRequest struct {
	spawnRequest
	Count  int      `json:"count"`
	Spread *float64 `json:"spread"` // Degrees; defaults to a full circle
}

func (h *routerHandlers) handleSpawnRing(w http.ResponseWriter, r *http.Request) {
	var req ringRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pool, spec, err := req.toSpec()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	spread := 360.0
	if req.Spread != nil {
		spread = *req.Spread
	}

	n, err := h.engine.SpawnRingNow(pool, spec, req.Count, spread)
	if err != nil && n == 0 {
		writeError(w, err.Error(), spawnStatus(err))
		return
	}
	resp := map[string]any{
		"spawned":   n,
		"requested": req.Count,
		"pool":      pool.String(),
	}
	// Partial ring: the pool filled up midway
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, resp)
}

type clearRequest struct {
	Pool    string       `json:"pool"`
	Owner   *string      `json:"owner"` // Omitted clears every owner
	Region  *bullet.Rect `json:"region"`
	Outside bool         `json:"outside"`
}

func (h *routerHandlers) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pool, err := parsePool(req.Pool)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	f := bullet.All()
	if req.Owner != nil {
		f = bullet.ByOwner(*req.Owner)
	}
	f.Region = req.Region
	f.Outside = req.Outside

	removed, err := h.engine.ClearNow(pool, f)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"removed": len(removed),
		"pool":    pool.String(),
	})
}

// handleReset empties both pools and the delayed-spawn queues.
func (h *routerHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"removed": h.engine.ResetAll()})
}

type playerRequest struct {
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	HitRadius    *float64 `json:"hitRadius"`
	GrazeRadius  *float64 `json:"grazeRadius"`
	Invulnerable *bool    `json:"invulnerable"`
}

func (h *routerHandlers) handleSetPlayer(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := h.engine.Player().At(req.X, req.Y)
	if req.HitRadius != nil {
		p.HitRadius = *req.HitRadius
	}
	if req.GrazeRadius != nil {
		p.GrazeRadius = *req.GrazeRadius
	}
	if req.Invulnerable != nil {
		p.Invulnerable = *req.Invulnerable
	}
	if p.HitRadius < 0 || p.GrazeRadius < 0 {
		writeError(w, "radii must not be negative", http.StatusBadRequest)
		return
	}

	h.engine.SetPlayer(p)
	writeJSON(w, p)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
