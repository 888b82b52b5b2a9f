package game

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/config"
	"vessel-racer/internal/ecs"
	"vessel-racer/internal/editor"
	"vessel-racer/internal/input"
	"vessel-racer/internal/metrics"
	"vessel-racer/internal/physics"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/replication"
	"vessel-racer/internal/transport"
	"vessel-racer/internal/vessel"
)

// Mode selects which side of the protocol an engine runs.
type Mode int

const (
	ModeOffline Mode = iota
	ModeServer
	ModeClient
)

func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	default:
		return "offline"
	}
}

// State is the play-state machine: the editor or driving.
type State int

const (
	StateEdit State = iota
	StatePlay
)

func (s State) String() string {
	if s == StatePlay {
		return "play"
	}
	return "edit"
}

var (
	// ErrWrongMode is returned when attaching a transport the mode does not use.
	ErrWrongMode = errors.New("game: operation not valid in this mode")
	// ErrStopped is returned by Step after a fatal error ended the session.
	ErrStopped = errors.New("game: session stopped")
)

// ServerNet is what a server engine needs from its transport.
type ServerNet interface {
	Drain() []transport.Inbound
	Encode(msg protocol.Message) ([]byte, error)
	Send(client protocol.ClientID, data []byte, droppable bool) error
}

// ClientNet is what a client engine needs from its connection.
type ClientNet interface {
	Welcome() *protocol.Welcome
	Drain() []protocol.Message
	Send(msg protocol.Message) error
	Done() <-chan struct{}
	Err() error
}

// KeySource yields the local key state once per tick.
type KeySource interface {
	Next() input.KeyState
}

// Archiver stores accepted vessel definitions.
type Archiver interface {
	Save(client protocol.ClientID, tick uint64, id vessel.ID, def vessel.Definition)
}

// Config tunes an engine.
type Config struct {
	Mode              Mode
	TickRate          int
	Physics           physics.Config
	SpawnTimeoutTicks uint64
	// LocalVessel lets a server drive a vessel of its own (listen server).
	LocalVessel          bool
	EventLogMaxPerSecond int
}

// DefaultConfig returns an offline engine at 60 ticks per second.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeOffline,
		TickRate:             60,
		Physics:              physics.DefaultConfig(),
		SpawnTimeoutTicks:    600,
		EventLogMaxPerSecond: 100,
	}
}

// ConfigFrom derives the engine settings from the application config.
func ConfigFrom(mode Mode, app config.AppConfig) Config {
	pc := physics.DefaultConfig()
	pc.Gravity = mgl32.Vec3{0, app.Physics.Gravity, 0}
	pc.GroundHeight = app.Physics.GroundHeight
	pc.Ground = app.Physics.Ground
	return Config{
		Mode:                 mode,
		TickRate:             app.Server.TickRate,
		Physics:              pc,
		SpawnTimeoutTicks:    app.Spawn.PendingTimeoutTicks,
		LocalVessel:          app.Server.LocalVessel,
		EventLogMaxPerSecond: app.EventLog.MaxPerSecond,
	}
}

// Engine runs the fixed-step simulation: receive, spawn, control, physics,
// replicate. One goroutine calls Step; everyone else reads Snapshot.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	mode       Mode
	world      *ecs.World
	assets     *vessel.AssetTable
	catalogue  *vessel.Catalogue
	spawner    *vessel.Spawner
	integrator *physics.Integrator
	dt         float32

	server  *replication.Server
	client  *replication.Client
	hub     ServerNet
	conn    ClientNet
	netRoot ecs.Entity // parent of everything received or announced over the network

	state      State
	root       ecs.Entity // gameplay root, alive only in play
	creation   *editor.Creation
	userVessel vessel.ID
	keys       KeySource

	eventLog *EventLog
	archive  Archiver

	snapshot atomic.Pointer[Snapshot]
	snapSeq  atomic.Uint64

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error

	// OnFatal is called once, on its own goroutine, when a fatal error stops
	// the session.
	OnFatal func(error)
}

// NewEngine creates an engine in the edit state.
func NewEngine(cfg Config, cat *vessel.Catalogue) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if cat == nil {
		cat = vessel.DefaultCatalogue()
	}
	w := ecs.NewWorld()
	assets := vessel.NewAssetTable()

	e := &Engine{
		cfg:        cfg,
		mode:       cfg.Mode,
		world:      w,
		assets:     assets,
		catalogue:  cat,
		spawner:    vessel.NewSpawner(w, assets, cat, cfg.SpawnTimeoutTicks),
		integrator: physics.NewIntegrator(cfg.Physics),
		dt:         1 / float32(cfg.TickRate),
		eventLog:   NewEventLog(cfg.EventLogMaxPerSecond),
		stopChan:   make(chan struct{}),
	}
	e.spawner.SetHooks(vessel.Hooks{
		OnSpawn: func(ent ecs.Entity, id vessel.ID, respawn bool) {
			metrics.RecordSpawn(respawn)
			kind := EventTypeSpawn
			if respawn {
				kind = EventTypeRespawn
			}
			e.eventLog.EmitSimple(kind, e.world.Tick(), 0, SpawnPayload{Entity: uint64(ent), VesselID: id.String()})
		},
		OnRetry: func(ecs.Entity, vessel.ID) {
			metrics.RecordSpawnRetry()
		},
		OnAbandon: func(ent ecs.Entity, id vessel.ID) {
			metrics.RecordSpawnAbandoned()
			e.eventLog.EmitSimple(EventTypeSpawnAbandoned, e.world.Tick(), 0, SpawnPayload{Entity: uint64(ent), VesselID: id.String()})
		},
	})

	switch cfg.Mode {
	case ModeServer:
		e.netRoot = w.Spawn()
		e.server = replication.NewServer(w, assets)
		e.server.SetRoot(e.netRoot)
		e.server.SetHooks(e.serverHooks())
	case ModeClient:
		e.netRoot = w.Spawn()
		e.client = replication.NewClient(w, assets)
		e.client.SetRoot(e.netRoot)
	}

	e.produceSnapshot()
	return e
}

func (e *Engine) serverHooks() replication.ServerHooks {
	return replication.ServerHooks{
		OnConnect: func(client protocol.ClientID) {
			e.eventLog.EmitSimple(EventTypeConnect, e.world.Tick(), uint64(client), nil)
		},
		OnDisconnect: func(client protocol.ClientID, ent ecs.Entity, owned bool) {
			e.eventLog.EmitSimple(EventTypeDisconnect, e.world.Tick(), uint64(client),
				DisconnectPayload{Entity: uint64(ent), Owned: owned})
		},
		OnAnnounce: func(client protocol.ClientID, ent ecs.Entity, id vessel.ID, def vessel.Definition) {
			e.eventLog.EmitSimple(EventTypeAnnounce, e.world.Tick(), uint64(client),
				AnnouncePayload{Entity: uint64(ent), VesselID: id.String(), Parts: len(def.Parts)})
			if e.archive != nil {
				e.archive.Save(client, e.world.Tick(), id, def)
			}
		},
		OnCatchUp: func(client protocol.ClientID, sent, skipped int) {
			e.eventLog.EmitSimple(EventTypeCatchUp, e.world.Tick(), uint64(client),
				CatchUpPayload{Sent: sent, Skipped: skipped})
		},
		OnDrop: func(client protocol.ClientID, reason string) {
			metrics.RecordControlDropped(reason)
			e.eventLog.EmitSimple(EventTypeControlDropped, e.world.Tick(), uint64(client),
				ControlDropPayload{Reason: reason})
		},
	}
}

// World returns the entity store. Only safe to touch from the tick goroutine
// or while the engine is stopped.
func (e *Engine) World() *ecs.World { return e.world }

// Assets returns the vessel asset table.
func (e *Engine) Assets() *vessel.AssetTable { return e.assets }

// Catalogue returns the element catalogue.
func (e *Engine) Catalogue() *vessel.Catalogue { return e.catalogue }

// Mode returns the engine mode.
func (e *Engine) Mode() Mode { return e.mode }

// Server returns the replication server, nil unless in server mode.
func (e *Engine) Server() *replication.Server { return e.server }

// Client returns the replication client, nil unless in client mode.
func (e *Engine) Client() *replication.Client { return e.client }

// TickInterval returns the wall-clock duration of one tick.
func (e *Engine) TickInterval() time.Duration {
	return time.Second / time.Duration(e.cfg.TickRate)
}

// State returns the current play state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// UserVessel returns the id of the vessel last built from the creation.
func (e *Engine) UserVessel() (vessel.ID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userVessel, !e.userVessel.IsZero()
}

// AttachHub connects a server engine to its transport.
func (e *Engine) AttachHub(h ServerNet) error {
	if e.mode != ModeServer {
		return fmt.Errorf("%w: attach hub in %s mode", ErrWrongMode, e.mode)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hub = h
	return nil
}

// AttachConn hands a completed connection to a client engine.
func (e *Engine) AttachConn(c ClientNet) error {
	if e.mode != ModeClient {
		return fmt.Errorf("%w: attach connection in %s mode", ErrWrongMode, e.mode)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn = c
	e.client.Welcome(c.Welcome())
	return nil
}

// SetCreation sets what the player built. It is turned into a vessel the
// next time play starts.
func (e *Engine) SetCreation(c editor.Creation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creation = &c
}

// SetKeys sets the local driver.
func (e *Engine) SetKeys(k KeySource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = k
}

// SetArchive stores every accepted announcement in a.
func (e *Engine) SetArchive(a Archiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.archive = a
}

// StartEventLog starts the event log writer. An empty path keeps events in
// memory only.
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the event log.
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// EventLogStats returns event log counters.
func (e *Engine) EventLogStats() EventLogStats {
	return e.eventLog.Stats()
}

// Err returns the fatal error that stopped the session, if any.
func (e *Engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *Engine) fail(err error) {
	e.errMu.Lock()
	first := e.err == nil
	if first {
		e.err = err
	}
	e.errMu.Unlock()
	if !first {
		return
	}
	log.Error().Err(err).Uint64("tick", e.world.Tick()).Msg("🛑 fatal error, stopping session")
	e.eventLog.EmitSimple(EventTypeFatal, e.world.Tick(), 0, FatalPayload{Error: err.Error()})
	if e.OnFatal != nil {
		go e.OnFatal(err)
	}
}

// Start runs Step on a ticker until Stop or a fatal error.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.done = make(chan struct{})
	go e.loop()
	log.Info().Int("tps", e.cfg.TickRate).Stringer("mode", e.mode).Msg("🎮 engine started")
}

func (e *Engine) loop() {
	defer close(e.done)
	defer e.running.Store(false)

	ticker := time.NewTicker(e.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.Step(); err != nil {
				return
			}
		case <-e.stopChan:
			return
		}
	}
}

// Stop ends the loop and waits for the current tick to finish. It is safe
// to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if e.done != nil {
			<-e.done
		}
		log.Info().Msg("🛑 engine stopped")
	})
}

// Done is closed when the loop has exited. Nil before Start.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Step runs one tick in the fixed phase order. A non-nil error is fatal and
// every later Step returns it.
func (e *Engine) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}

	start := time.Now()
	tick := e.world.Advance()

	e.receive()

	if err := e.spawner.Run(); err != nil {
		e.fail(err)
		return err
	}

	if e.server != nil {
		e.server.ApplyControls()
	}
	if e.state == StatePlay && e.keys != nil {
		input.Apply(e.world, e.keys.Next())
	}

	vessel.Move(e.world)
	e.integrator.Step(e.world, e.dt)

	e.send(tick)

	e.produceSnapshot()
	e.recordMetrics(time.Since(start))
	return nil
}

func (e *Engine) recordMetrics(d time.Duration) {
	metrics.RecordTick(d)
	if e.server == nil {
		return
	}
	live := len(ecs.Query[vessel.Spawned](e.world))
	metrics.UpdateVessels(live, e.server.Ownership().Len())
}
