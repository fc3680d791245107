// Package sim drives bullet pools at a fixed tick rate.
//
// The Engine owns every pool on its tick goroutine. Script goroutines talk to
// it through a lock-free command queue that is drained strictly before each
// tick's integration pass; renderers read a triple-buffered Frame.
package sim

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"danmaku/internal/bullet"
	"danmaku/internal/bullet/spatial"
	"danmaku/internal/config"
	"danmaku/internal/eventlog"
	"danmaku/internal/metrics"
)

// PoolID selects one of the engine's pools.
type PoolID uint8

const (
	EnemyPool PoolID = iota // Enemy bullets, collide with the player
	ShotPool                // Player shots, collide with targets
)

func (id PoolID) String() string {
	switch id {
	case EnemyPool:
		return "enemy"
	case ShotPool:
		return "shots"
	}
	return "unknown"
}

// ParsePoolID maps "enemy"/"shots" to a PoolID.
func ParsePoolID(s string) (PoolID, bool) {
	switch s {
	case "enemy", "":
		return EnemyPool, true
	case "shots", "shot", "player":
		return ShotPool, true
	}
	return 0, false
}

// CommandKind enumerates queued script operations.
type CommandKind uint8

const (
	CmdSpawn CommandKind = iota + 1
	CmdRing
	CmdDelayed
	CmdClear
)

// Command is one queued script operation.
type Command struct {
	Kind   CommandKind
	Pool   PoolID
	Spec   bullet.SpawnSpec
	Count  int     // CmdRing
	Spread float64 // CmdRing
	Delay  int     // CmdDelayed
	Filter bullet.Filter
}

// MaxTargets caps registered enemy targets.
const MaxTargets = 64

// EngineConfig holds engine construction parameters.
type EngineConfig struct {
	TickRate         int
	CommandQueueSize int
	Enemy            bullet.Config
	Shots            bullet.Config
	Player           bullet.Player
}

// DefaultEngineConfig mirrors config.DefaultSim.
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFrom(config.DefaultSim())
}

// EngineConfigFrom converts the file/env configuration.
func EngineConfigFrom(c config.SimConfig) EngineConfig {
	bounds := bullet.Bounds{Playfield: bullet.Playfield, Margin: c.Playfield.Margin}
	pool := func(p config.PoolConfig) bullet.Config {
		policy := bullet.KeepOnHit
		if p.HitPolicy == "destroy" {
			policy = bullet.DestroyOnHit
		}
		return bullet.Config{
			Capacity:          p.Capacity,
			Bounds:            bounds,
			HitPolicy:         policy,
			Workers:           p.Workers,
			ParallelThreshold: p.ParallelThreshold,
			GridCellSize:      p.GridCellSize,
		}
	}

	player := bullet.Player{HitRadius: c.Player.HitRadius, GrazeRadius: c.Player.GrazeRadius}.At(c.Player.X, c.Player.Y)
	return EngineConfig{
		TickRate:         c.TickRate,
		CommandQueueSize: c.CommandQueueSize,
		Enemy:            pool(c.Enemy),
		Shots:            pool(c.Shots),
		Player:           player,
	}
}

// EngineStats is a point-in-time view of the engine.
type EngineStats struct {
	Tick            uint64            `json:"tick"`
	Running         bool              `json:"running"`
	TickRate        int               `json:"tickRate"`
	LastTickNs      int64             `json:"lastTickNs"`
	QueueLen        int               `json:"queueLen"`
	CommandsDropped uint64            `json:"commandsDropped"`
	TargetHits      uint64            `json:"targetHits"`
	Enemy           bullet.Stats      `json:"enemy"`
	Shots           bullet.Stats      `json:"shots"`
	ShotGrid        spatial.GridStats `json:"shotGrid"`
	EventLog        eventlog.Stats    `json:"eventLog"`
}

// Engine is the fixed-tick driver.
type Engine struct {
	mu    sync.Mutex // Held for a whole tick and by the synchronous *Now calls
	pools [2]*bullet.Pool

	queue *Queue[Command]
	drain []Command

	player    atomic.Pointer[bullet.Player]
	targetsMu sync.Mutex
	targetsIn []bullet.Target // Written by SetTargets
	targets   []bullet.Target // Tick goroutine copy

	snapshots *SnapshotBuffer
	eventLog  *eventlog.EventLog

	onTick      func(uint64)
	onContact   func(PoolID, bullet.Contact)
	onTargetHit func(bullet.TargetHit)

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}

	tickCount       atomic.Uint64
	lastTickNs      atomic.Int64
	commandsDropped atomic.Uint64
	targetHits      uint64

	dropLog  *rate.Limiter // Throttles drop warnings
	reported [2]bullet.Stats
}

// NewEngine builds both pools and the host plumbing. Pools are preallocated
// here; nothing grows while running.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("sim: tick rate must be positive, got %d", cfg.TickRate)
	}
	if cfg.CommandQueueSize <= 0 {
		cfg.CommandQueueSize = 4096
	}

	enemy, err := bullet.NewPool(cfg.Enemy)
	if err != nil {
		return nil, fmt.Errorf("enemy pool: %w", err)
	}
	shots, err := bullet.NewPool(cfg.Shots)
	if err != nil {
		return nil, fmt.Errorf("shot pool: %w", err)
	}

	e := &Engine{
		pools:     [2]*bullet.Pool{enemy, shots},
		queue:     NewQueue[Command](cfg.CommandQueueSize),
		drain:     make([]Command, 256),
		targetsIn: make([]bullet.Target, 0, MaxTargets),
		targets:   make([]bullet.Target, 0, MaxTargets),
		snapshots: NewSnapshotBuffer(cfg.Enemy.Capacity, cfg.Shots.Capacity, MaxTargets),
		eventLog:  eventlog.New(),
		tickRate:  cfg.TickRate,
		stopChan:  make(chan struct{}),
		dropLog:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	player := cfg.Player
	e.player.Store(&player)

	for i, p := range e.pools {
		id := PoolID(i)
		p.SetPlayer(player)
		p.OnDeath(func(d bullet.Death) { e.recordDeath(id, d) })
	}
	return e, nil
}

// Start begins the tick loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))

	go func() {
		for {
			select {
			case <-e.ticker.C:
				e.tick()
			case <-e.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Simulation started at %d TPS (enemy cap %d, shot cap %d)",
		e.tickRate, e.pools[EnemyPool].Capacity(), e.pools[ShotPool].Capacity())
}

// Stop stops the tick loop. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	log.Println("🛑 Simulation stopped")
}

// Advance runs n ticks synchronously. Used by tools and tests.
func (e *Engine) Advance(n int) {
	for i := 0; i < n; i++ {
		e.tick()
	}
}

// Tick returns the number of completed ticks.
func (e *Engine) Tick() uint64 {
	return e.tickCount.Load()
}

// TickRate returns the configured ticks per second.
func (e *Engine) TickRate() int {
	return e.tickRate
}

// OnTick registers a callback run at the start of every tick, before queued
// commands are applied, so commands it submits take effect the same tick.
// Call before Start. Same locking rules as OnContact.
func (e *Engine) OnTick(fn func(tick uint64)) {
	e.mu.Lock()
	e.onTick = fn
	e.mu.Unlock()
}

// OnContact registers the player collision callback. Call before Start.
// Callbacks run on the tick goroutine with the engine locked: they may use
// Submit* but must not call the *Now methods.
func (e *Engine) OnContact(fn func(PoolID, bullet.Contact)) {
	e.mu.Lock()
	e.onContact = fn
	e.mu.Unlock()
}

// OnTargetHit registers the shot-vs-target callback. Call before Start.
func (e *Engine) OnTargetHit(fn func(bullet.TargetHit)) {
	e.mu.Lock()
	e.onTargetHit = fn
	e.mu.Unlock()
}

// SetPlayer replaces the player state used from the next tick on.
func (e *Engine) SetPlayer(p bullet.Player) {
	e.player.Store(&p)
}

// Player returns the most recently set player state.
func (e *Engine) Player() bullet.Player {
	return *e.player.Load()
}

// SetTargets replaces the enemy targets player shots collide with.
// Extra targets beyond MaxTargets are ignored.
func (e *Engine) SetTargets(ts []bullet.Target) {
	if len(ts) > MaxTargets {
		ts = ts[:MaxTargets]
	}
	e.targetsMu.Lock()
	e.targetsIn = append(e.targetsIn[:0], ts...)
	e.targetsMu.Unlock()
}

// Submit queues a command for the start of the next tick.
// Returns false if the queue is full; the command is dropped.
func (e *Engine) Submit(cmd Command) bool {
	if e.queue.TryPush(cmd) {
		return true
	}
	e.commandsDropped.Add(1)
	metrics.IncCommandsDropped()
	if e.dropLog.Allow() {
		log.Printf("⚠️ Command queue full, dropping commands (%d total)", e.commandsDropped.Load())
	}
	return false
}

// SubmitSpawn queues one spawn
func (e *Engine) SubmitSpawn(pool PoolID, spec bullet.SpawnSpec) bool {
	return e.Submit(Command{Kind: CmdSpawn, Pool: pool, Spec: spec})
}

// SubmitRing queues a ring of count bullets over spread degrees
func (e *Engine) SubmitRing(pool PoolID, spec bullet.SpawnSpec, count int, spread float64) bool {
	return e.Submit(Command{Kind: CmdRing, Pool: pool, Spec: spec, Count: count, Spread: spread})
}

// SubmitDelayed queues a spawn that appears delay ticks later
func (e *Engine) SubmitDelayed(pool PoolID, spec bullet.SpawnSpec, delay int) bool {
	return e.Submit(Command{Kind: CmdDelayed, Pool: pool, Spec: spec, Delay: delay})
}

// SubmitClear queues a filtered clear
func (e *Engine) SubmitClear(pool PoolID, f bullet.Filter) bool {
	return e.Submit(Command{Kind: CmdClear, Pool: pool, Filter: f})
}

// SpawnNow spawns between ticks and reports the pool's result. The bullet is
// first moved by the next tick.
func (e *Engine) SpawnNow(pool PoolID, spec bullet.SpawnSpec) (bullet.Handle, error) {
	p, err := e.pool(pool)
	if err != nil {
		return bullet.Handle{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.Spawn(spec)
}

// SpawnRingNow spawns a ring between ticks and returns how many fit.
func (e *Engine) SpawnRingNow(pool PoolID, spec bullet.SpawnSpec, count int, spread float64) (int, error) {
	p, err := e.pool(pool)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	handles, err := p.SpawnRing(spec, count, spread, nil)
	return len(handles), err
}

// ClearNow clears between ticks and returns the removed bullets.
func (e *Engine) ClearNow(pool PoolID, f bullet.Filter) ([]bullet.Removed, error) {
	p, err := e.pool(pool)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := p.Clear(f)
	e.emitClear(pool, len(removed))
	return append([]bullet.Removed(nil), removed...), nil
}

// ResetAll removes every bullet and queued delayed spawn from every pool and
// returns how many bullets were removed.
func (e *Engine) ResetAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for id, p := range e.pools {
		n := p.Len()
		p.Reset()
		e.emitClear(PoolID(id), n)
		total += n
	}
	return total
}

var errUnknownPool = errors.New("sim: unknown pool")

func (e *Engine) pool(id PoolID) (*bullet.Pool, error) {
	if int(id) >= len(e.pools) {
		return nil, fmt.Errorf("%w %d", errUnknownPool, id)
	}
	return e.pools[id], nil
}

// tick runs one fixed step: commands, enemy pool, shot pool, snapshot.
func (e *Engine) tick() {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	tick := e.tickCount.Add(1)
	if e.onTick != nil {
		e.onTick(tick)
	}

	// Commands are applied strictly before integration
	e.applyCommands()

	player := *e.player.Load()
	e.targetsMu.Lock()
	e.targets = append(e.targets[:0], e.targetsIn...)
	e.targetsMu.Unlock()

	enemy, shots := e.pools[EnemyPool], e.pools[ShotPool]
	enemy.SetPlayer(player)
	shots.SetPlayer(player)

	contacts, err := enemy.Tick()
	if err != nil {
		log.Printf("⚠️ Enemy pool tick: %v", err)
	}
	hits, grazes := 0, 0
	for _, c := range contacts {
		if c.Kind == bullet.ContactHit {
			hits++
			e.eventLog.EmitSimple(eventlog.TypeHit, tick, c.Owner, contactPayload(EnemyPool, c))
		} else {
			grazes++
			e.eventLog.EmitSimple(eventlog.TypeGraze, tick, c.Owner, contactPayload(EnemyPool, c))
		}
		if e.onContact != nil {
			e.onContact(EnemyPool, c)
		}
	}

	targetHits := e.tickShots(shots, tick)

	elapsed := time.Since(start)
	e.lastTickNs.Store(elapsed.Nanoseconds())
	e.publish(tick, player, hits, grazes, targetHits)
	e.updateMetrics(hits, grazes, targetHits, elapsed)

	if tick%uint64(e.tickRate) == 0 {
		es := enemy.Stats()
		e.eventLog.EmitSimple(eventlog.TypeTick, tick, "", eventlog.TickPayload{
			Pool:    EnemyPool.String(),
			Live:    es.Live,
			Pending: es.Pending,
			Hits:    hits,
			Grazes:  grazes,
			TickNs:  elapsed.Nanoseconds(),
		})
	}
}

// tickShots runs the player-shot pool against the registered targets.
func (e *Engine) tickShots(shots *bullet.Pool, tick uint64) int {
	if err := shots.Integrate(); err != nil {
		log.Printf("⚠️ Shot pool integrate: %v", err)
		return 0
	}
	_ = shots.Cull()
	hits, _ := shots.CollideTargets(e.targets)
	for _, h := range hits {
		e.eventLog.EmitSimple(eventlog.TypeTargetHit, tick, h.Owner, eventlog.TargetHitPayload{
			Target: h.Target, Damage: h.Damage, X: h.X, Y: h.Y,
		})
		if e.onTargetHit != nil {
			e.onTargetHit(h)
		}
	}
	n := len(hits)
	e.targetHits += uint64(n)
	_ = shots.Finish()
	return n
}

func (e *Engine) applyCommands() {
	for {
		n := e.queue.DrainTo(e.drain)
		if n == 0 {
			return
		}
		for i := range e.drain[:n] {
			e.apply(&e.drain[i])
			e.drain[i] = Command{}
		}
	}
}

func (e *Engine) apply(cmd *Command) {
	p, err := e.pool(cmd.Pool)
	if err != nil {
		e.logDrop(err)
		return
	}

	switch cmd.Kind {
	case CmdSpawn:
		_, err = p.Spawn(cmd.Spec)
	case CmdRing:
		_, err = p.SpawnRing(cmd.Spec, cmd.Count, cmd.Spread, nil)
	case CmdDelayed:
		err = p.SpawnDelayed(cmd.Spec, cmd.Delay)
	case CmdClear:
		e.emitClear(cmd.Pool, len(p.Clear(cmd.Filter)))
	default:
		err = fmt.Errorf("sim: unknown command kind %d", cmd.Kind)
	}
	if err != nil {
		e.logDrop(err)
	}
}

// logDrop reports rejected script commands at most once per second.
// Capacity drops are expected under load and are counted, not fatal.
func (e *Engine) logDrop(err error) {
	if errors.Is(err, bullet.ErrCapacityExceeded) {
		e.eventLog.EmitSimple(eventlog.TypeDrop, e.tickCount.Load(), "", eventlog.DropPayload{Count: 1})
	}
	if e.dropLog.Allow() {
		log.Printf("⚠️ Script command rejected: %v", err)
	}
}

func (e *Engine) emitClear(pool PoolID, removed int) {
	e.eventLog.EmitSimple(eventlog.TypeClear, e.tickCount.Load(), "", eventlog.ClearPayload{
		Pool: pool.String(), Removed: removed,
	})
}

func (e *Engine) recordDeath(pool PoolID, d bullet.Death) {
	if d.Cause == bullet.CauseCulled {
		return // counted in stats; too frequent to log one by one
	}
	e.eventLog.EmitSimple(eventlog.TypeDeath, e.tickCount.Load(), d.Owner, eventlog.DeathPayload{
		Pool:   pool.String(),
		Handle: d.Handle.String(),
		Cause:  d.Cause.String(),
		X:      d.X,
		Y:      d.Y,
	})
}

func contactPayload(pool PoolID, c bullet.Contact) eventlog.ContactPayload {
	return eventlog.ContactPayload{Pool: pool.String(), Handle: c.Handle.String(), X: c.X, Y: c.Y}
}

func (e *Engine) publish(tick uint64, player bullet.Player, hits, grazes, targetHits int) {
	f := e.snapshots.AcquireWrite()
	f.Tick = tick
	f.Player = player
	f.Enemy = e.pools[EnemyPool].Snapshot(f.Enemy)
	f.Shots = e.pools[ShotPool].Snapshot(f.Shots)
	f.Targets = append(f.Targets, e.targets...)
	f.Hits, f.Grazes, f.TargetHits = hits, grazes, targetHits
	e.snapshots.PublishWrite()
}

// updateMetrics pushes counter deltas since the previous tick.
func (e *Engine) updateMetrics(hits, grazes, targetHits int, elapsed time.Duration) {
	metrics.RecordTick(elapsed)
	for i, p := range e.pools {
		name := PoolID(i).String()
		s, prev := p.Stats(), e.reported[i]
		metrics.SetLive(name, s.Live)
		metrics.AddSpawns(name, "ok", s.Spawned-prev.Spawned)
		metrics.AddSpawns(name, "dropped", s.Dropped-prev.Dropped)
		metrics.AddSpawns(name, "rejected", s.Rejected-prev.Rejected)
		metrics.AddDeaths(name, bullet.CauseCulled.String(), s.Culled-prev.Culled)
		metrics.AddDeaths(name, bullet.CauseExpired.String(), s.Expired-prev.Expired)
		metrics.AddDeaths(name, bullet.CauseHit.String(), s.Hit-prev.Hit)
		metrics.AddDeaths(name, bullet.CauseCleared.String(), s.Cleared-prev.Cleared)
		metrics.AddDeaths(name, bullet.CauseKilled.String(), s.Killed-prev.Killed)
		e.reported[i] = s
	}
	metrics.AddContacts(EnemyPool.String(), "hit", hits)
	metrics.AddContacts(EnemyPool.String(), "graze", grazes)
	metrics.AddContacts(ShotPool.String(), "target_hit", targetHits)
}

// Snapshot returns a deep copy of the latest published frame.
func (e *Engine) Snapshot() *Frame {
	return e.snapshots.Latest()
}

// ViewSnapshot calls fn with the latest frame without copying it.
// fn must not retain the frame.
func (e *Engine) ViewSnapshot(fn func(*Frame)) {
	e.snapshots.View(fn)
}

// Stats returns engine and pool counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStats{
		Tick:            e.tickCount.Load(),
		Running:         e.running,
		TickRate:        e.tickRate,
		LastTickNs:      e.lastTickNs.Load(),
		QueueLen:        e.queue.Len(),
		CommandsDropped: e.commandsDropped.Load(),
		TargetHits:      e.targetHits,
		Enemy:           e.pools[EnemyPool].Stats(),
		Shots:           e.pools[ShotPool].Stats(),
		ShotGrid:        e.pools[ShotPool].GridStats(),
		EventLog:        e.eventLog.Stats(),
	}
}

// StartEventLog begins writing events to filePath (JSONL).
func (e *Engine) StartEventLog(filePath string) error {
	if err := e.eventLog.Start(filePath); err != nil {
		return err
	}
	metrics.RegisterEventLog(e.eventLog.TotalCount, e.eventLog.DroppedCount)
	return nil
}

// StopEventLog flushes and closes the event log.
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// RunID identifies this engine's event log records.
func (e *Engine) RunID() string {
	return e.eventLog.RunID()
}
