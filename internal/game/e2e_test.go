package game

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/editor"
	"vessel-racer/internal/transport"
)

func TestClientDrivesVesselOverWebSocket(t *testing.T) {
	srvCfg := DefaultConfig()
	srvCfg.Mode = ModeServer
	server := NewEngine(srvCfg, nil)
	hub := transport.NewHub(transport.DefaultConfig())
	require.NoError(t, server.AttachHub(hub))
	require.NoError(t, server.EnterPlay())

	ts := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), transport.DefaultClientConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cliCfg := DefaultConfig()
	cliCfg.Mode = ModeClient
	client := NewEngine(cliCfg, nil)
	client.SetCreation(editor.Demo())
	client.SetKeys(holdKeys{Forward: true})
	require.NoError(t, client.EnterPlay())
	require.NoError(t, client.AttachConn(conn))

	tick := func() {
		require.NoError(t, server.Step())
		require.NoError(t, client.Step())
	}

	// the server owns the client's vessel and follows its control
	require.Eventually(t, func() bool {
		tick()
		snap := server.Snapshot()
		if len(snap.Clients) != 1 || !snap.Clients[0].Owns || len(snap.Vessels) != 1 {
			return false
		}
		return snap.Vessels[0].Control == [2]float32{1, 0}
	}, 3*time.Second, 2*time.Millisecond)

	srvSnap := server.Snapshot()
	assert.Equal(t, uint64(conn.ID()), srvSnap.Clients[0].ID)
	id, _ := client.UserVessel()
	assert.Equal(t, id.String(), srvSnap.Vessels[0].VesselID)

	// the client's own vessel became the replica of the server entity
	require.Eventually(t, func() bool {
		tick()
		snap := client.Snapshot()
		return len(snap.Vessels) == 1 && snap.Vessels[0].Local && snap.Vessels[0].Replicated
	}, 3*time.Second, 2*time.Millisecond)

	// and it moves
	require.Eventually(t, func() bool {
		tick()
		return server.Snapshot().Vessels[0].Position[0] > 0.05
	}, 3*time.Second, 2*time.Millisecond)

	// leaving removes the vessel server-side
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		tick()
		snap := server.Snapshot()
		return len(snap.Clients) == 0 && len(snap.Vessels) == 0
	}, 3*time.Second, 2*time.Millisecond)
	assert.False(t, client.Snapshot().Connected)
}
