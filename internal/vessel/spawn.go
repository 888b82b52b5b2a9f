package vessel

import (
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/physics"
)

// Spawned marks an entity whose ID has been turned into a live vessel.
type Spawned struct{}

// Abandoned marks an entity whose definition never arrived in time. It is
// cleared when the definition is finally inserted.
type Abandoned struct{}

// Visual is the component of a vessel's child entities, one per part.
type Visual struct {
	Part RenderPart
}

// SpawnRequest asks for a vessel to be spawned right away. A zero Entity
// spawns a fresh entity; otherwise the given entity is reused.
type SpawnRequest struct {
	ID         ID
	Definition Definition
	Entity     ecs.Entity
}

// Hooks observe the pipeline for metrics and the event log. Nil hooks are
// skipped.
type Hooks struct {
	OnSpawn   func(e ecs.Entity, id ID, respawn bool)
	OnRetry   func(e ecs.Entity, id ID)
	OnAbandon func(e ecs.Entity, id ID)
}

// Spawner turns vessel ids into physics bodies, properties, control and
// visual children. Spawning is idempotent per entity: the Spawned marker
// gates the declarative path.
type Spawner struct {
	world     *ecs.World
	assets    *AssetTable
	catalogue *Catalogue
	timeout   uint64
	root      ecs.Entity
	requests  []SpawnRequest
	pending   map[ecs.Entity]uint64
	hooks     Hooks
}

// NewSpawner creates a pipeline. timeoutTicks bounds how long an entity may
// wait for its definition; zero waits forever.
func NewSpawner(w *ecs.World, assets *AssetTable, cat *Catalogue, timeoutTicks uint64) *Spawner {
	s := &Spawner{
		world:     w,
		assets:    assets,
		catalogue: cat,
		timeout:   timeoutTicks,
		pending:   make(map[ecs.Entity]uint64),
	}
	assets.OnInsert(s.Rearm)
	return s
}

// SetRoot parents every spawned vessel under root.
func (s *Spawner) SetRoot(root ecs.Entity) {
	s.root = root
}

// SetHooks replaces the observer hooks.
func (s *Spawner) SetHooks(h Hooks) {
	s.hooks = h
}

// Request queues an imperative spawn for the next Run.
func (s *Spawner) Request(req SpawnRequest) {
	s.requests = append(s.requests, req)
}

// Pending returns how many entities are waiting on a definition.
func (s *Spawner) Pending() int {
	return len(s.pending)
}

// Rearm clears the abandoned state of every entity waiting on id.
func (s *Spawner) Rearm(id ID) {
	ecs.Each(s.world, func(e ecs.Entity, got *ID) {
		if *got != id {
			return
		}
		if ecs.Has[Abandoned](s.world, e) {
			ecs.Remove[Abandoned](s.world, e)
			log.Info().Stringer("vessel", id).Uint64("entity", uint64(e)).Msg("🔁 vessel definition arrived, retrying spawn")
		}
		delete(s.pending, e)
	})
}

// Run drains the imperative requests, then spawns every entity that carries
// an ID but no Spawned marker. The only error it returns is a content error
// (unknown element), which is fatal for the session.
func (s *Spawner) Run() error {
	requests := s.requests
	s.requests = nil
	for _, req := range requests {
		if err := s.spawnRequested(req); err != nil {
			return err
		}
	}
	return s.spawnPending()
}

func (s *Spawner) spawnRequested(req SpawnRequest) error {
	e := req.Entity
	if e == ecs.Invalid {
		e = s.world.Spawn()
	} else if !s.world.Alive(e) {
		log.Warn().Uint64("entity", uint64(e)).Stringer("vessel", req.ID).Msg("⚠️ spawn target no longer exists")
		return nil
	}
	resolved, err := Resolve(req.Definition, s.catalogue)
	if err != nil {
		return err
	}
	ecs.Insert(s.world, e, req.ID)
	s.attach(e, req.ID, resolved)
	return nil
}

func (s *Spawner) spawnPending() error {
	for e := range s.pending {
		if !s.world.Alive(e) || ecs.Has[Spawned](s.world, e) {
			delete(s.pending, e)
		}
	}

	now := s.world.Tick()
	for _, e := range ecs.Query[ID](s.world) {
		if ecs.Has[Spawned](s.world, e) || ecs.Has[Abandoned](s.world, e) {
			continue
		}
		idp, _ := ecs.Get[ID](s.world, e)
		id := *idp

		def, ok := s.assets.Get(id)
		if !ok {
			s.waitFor(e, id, now)
			continue
		}
		delete(s.pending, e)

		resolved, err := Resolve(def, s.catalogue)
		if err != nil {
			return err
		}
		s.attach(e, id, resolved)
	}
	return nil
}

func (s *Spawner) waitFor(e ecs.Entity, id ID, now uint64) {
	first, seen := s.pending[e]
	if !seen {
		s.pending[e] = now
		log.Warn().Stringer("vessel", id).Uint64("entity", uint64(e)).Msg("⏳ no vessel with asked for id yet")
		first = now
	}
	if s.hooks.OnRetry != nil {
		s.hooks.OnRetry(e, id)
	}
	if s.timeout > 0 && now-first >= s.timeout {
		delete(s.pending, e)
		ecs.Insert(s.world, e, Abandoned{})
		log.Error().Stringer("vessel", id).Uint64("entity", uint64(e)).Uint64("ticks", now-first).
			Msg("🛑 gave up waiting for vessel definition")
		if s.hooks.OnAbandon != nil {
			s.hooks.OnAbandon(e, id)
		}
	}
}

// attach does the shared body of work for both paths. On an entity that was
// already spawned it replaces the vessel instead of stacking a second one.
func (s *Spawner) attach(e ecs.Entity, id ID, r Resolved) {
	respawn := ecs.Has[Spawned](s.world, e)
	if respawn {
		for _, c := range s.world.Children(e) {
			if ecs.Has[Visual](s.world, c) {
				s.world.DespawnRecursive(c)
			}
		}
	}

	ecs.Insert(s.world, e, Spawned{})
	ecs.Insert(s.world, e, r.Properties)
	// friction comes from Properties, never from the contact model
	physics.AttachDynamic(s.world, e, r.Collider, 0)
	ecs.Insert(s.world, e, Control{})

	if s.root != ecs.Invalid && s.world.Alive(s.root) && s.world.Parent(e) == ecs.Invalid && e != s.root {
		s.world.SetParent(e, s.root)
	}

	for _, part := range r.Parts {
		child := s.world.Spawn()
		ecs.Insert(s.world, child, Visual{Part: part})
		ecs.Insert(s.world, child, part.Transform)
		s.world.SetParent(child, e)
	}

	log.Debug().Stringer("vessel", id).Uint64("entity", uint64(e)).Int("parts", len(r.Parts)).Bool("respawn", respawn).Msg("spawned vessel")
	if s.hooks.OnSpawn != nil {
		s.hooks.OnSpawn(e, id, respawn)
	}
}
