package game

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/editor"
	"vessel-racer/internal/input"
	"vessel-racer/internal/replication"
	"vessel-racer/internal/vessel"
)

// EnterPlay switches from the editor to driving. A gameplay root is created
// and, when there is a creation, it is built into the user's vessel and
// spawned as the locally controlled entity. A connected client announces it
// during the next tick. A dedicated server only creates the root.
func (e *Engine) EnterPlay() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StatePlay {
		return nil
	}
	e.root = e.world.Spawn()
	e.spawner.SetRoot(e.root)
	e.state = StatePlay

	drives := e.mode != ModeServer || e.cfg.LocalVessel
	if drives && e.creation != nil {
		if err := e.spawnUserVessel(*e.creation); err != nil {
			e.world.DespawnRecursive(e.root)
			e.root = ecs.Invalid
			e.spawner.SetRoot(ecs.Invalid)
			e.state = StateEdit
			return err
		}
	}

	e.eventLog.EmitSimple(EventTypePlay, e.world.Tick(), 0, nil)
	log.Info().Stringer("mode", e.mode).Uint64("root", uint64(e.root)).Msg("🏁 entered play")
	return nil
}

func (e *Engine) spawnUserVessel(c editor.Creation) error {
	id, def, err := editor.BuildInto(c, e.catalogue, e.assets)
	if err != nil {
		return fmt.Errorf("build vessel: %w", err)
	}
	e.userVessel = id

	ent := e.world.Spawn()
	ecs.Insert(e.world, ent, input.LocallyControlled{})
	e.world.SetParent(ent, e.root)
	if e.server != nil {
		// listen server: replicated to everyone, owned by nobody
		ecs.Insert(e.world, ent, replication.Replicated{})
		e.server.Share(id)
	}
	e.spawner.Request(vessel.SpawnRequest{ID: id, Definition: def, Entity: ent})

	log.Info().Stringer("vessel", id).Uint64("entity", uint64(ent)).Int("parts", len(def.Parts)).Msg("🛠️ built user vessel")
	return nil
}

// EnterEdit leaves play. The gameplay root and everything under it is
// despawned. Entities received from the network are not under the root and
// stay.
func (e *Engine) EnterEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateEdit {
		return
	}
	n := e.world.DespawnRecursive(e.root)
	e.root = ecs.Invalid
	e.spawner.SetRoot(ecs.Invalid)
	e.state = StateEdit

	e.eventLog.EmitSimple(EventTypeEdit, e.world.Tick(), 0, nil)
	log.Info().Int("removed", n).Msg("🧰 back to the editor")
}
