package game

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/editor"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/vessel"
)

// =============================================================================
// BENCHMARK SUITE: CRITICAL PATH PERFORMANCE TESTS
// Run with: go test -bench=. -benchmem ./internal/game/...
// =============================================================================

// populatedServer returns a server with one announced, spawned and steered
// vessel per client.
func populatedServer(b *testing.B, clients int) (*Engine, *fakeHub) {
	b.Helper()
	cfg := DefaultConfig()
	cfg.Mode = ModeServer
	engine := NewEngine(cfg, nil)
	hub := newFakeHub(b)
	hub.discard = true
	require.NoError(b, engine.AttachHub(hub))
	require.NoError(b, engine.EnterPlay())

	def, err := editor.Build(editor.Demo(), vessel.DefaultCatalogue())
	require.NoError(b, err)

	for i := 1; i <= clients; i++ {
		c := protocol.ClientID(i)
		hub.connect(c)
		hub.message(c, &protocol.AnnounceVessel{VesselID: vessel.NewID(), Definition: def, ClientEntity: ecs.Entity(i)})
		hub.message(c, &protocol.Control{Axis: mgl32.Vec2{1, float32(i%3) - 1}})
	}
	require.NoError(b, engine.Step())
	require.Len(b, engine.Snapshot().Vessels, clients)
	return engine, hub
}

// -----------------------------------------------------------------------------
// ENGINE TICK BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkServerTick_1Client(b *testing.B)   { benchmarkServerTick(b, 1) }
func BenchmarkServerTick_4Clients(b *testing.B)  { benchmarkServerTick(b, 4) }
func BenchmarkServerTick_10Clients(b *testing.B) { benchmarkServerTick(b, 10) }
func BenchmarkServerTick_32Clients(b *testing.B) { benchmarkServerTick(b, 32) }

func benchmarkServerTick(b *testing.B, clients int) {
	engine, _ := populatedServer(b, clients)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := engine.Step(); err != nil {
			b.Fatal(err)
		}
	}
}

// -----------------------------------------------------------------------------
// SNAPSHOT GENERATION BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkProduceSnapshot_10Clients(b *testing.B) { benchmarkSnapshot(b, 10) }
func BenchmarkProduceSnapshot_32Clients(b *testing.B) { benchmarkSnapshot(b, 32) }

func benchmarkSnapshot(b *testing.B, clients int) {
	engine, _ := populatedServer(b, clients)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.produceSnapshot()
	}
}

// -----------------------------------------------------------------------------
// JOIN / LEAVE CHURN
// -----------------------------------------------------------------------------

func BenchmarkStress_RapidJoinLeave(b *testing.B) {
	engine, hub := populatedServer(b, 8)
	def, err := editor.Build(editor.Demo(), vessel.DefaultCatalogue())
	require.NoError(b, err)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		c := protocol.ClientID(1000 + i)
		hub.connect(c)
		hub.message(c, &protocol.AnnounceVessel{VesselID: vessel.NewID(), Definition: def, ClientEntity: 1})
		if err := engine.Step(); err != nil {
			b.Fatal(err)
		}
		hub.disconnect(c)
		if err := engine.Step(); err != nil {
			b.Fatal(err)
		}
	}
}
