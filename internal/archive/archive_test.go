package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/physics"
	"vessel-racer/internal/vessel"
)

func sampleDefinition() vessel.Definition {
	return vessel.Definition{
		Parts: []vessel.Part{
			{ElementID: "block", Transform: physics.Identity()},
			{ElementID: "block", Transform: physics.FromTranslation(mgl32.Vec3{1, 0, 0})},
		},
		Properties: vessel.DefaultProperties(),
	}
}

func TestSaveThenReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vessels.db")
	a, err := Open(path)
	require.NoError(t, err)

	id := vessel.NewID()
	def := sampleDefinition()
	a.Save(7, 120, id, def)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close is a no-op")

	a, err = Open(path)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	r, err := a.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, r.ID)
	assert.EqualValues(t, 7, r.Client)
	assert.EqualValues(t, 120, r.Tick)
	assert.Equal(t, 2, r.Parts)
	assert.Equal(t, def, r.Definition)
	assert.False(t, r.CreatedAt.IsZero())

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFirstDefinitionWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessels.db")
	a, err := Open(path)
	require.NoError(t, err)

	id := vessel.NewID()
	first := sampleDefinition()
	second := sampleDefinition()
	second.Parts = second.Parts[:1]
	a.Save(1, 10, id, first)
	a.Save(2, 20, id, second)
	require.NoError(t, a.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var client, parts int
	require.NoError(t, db.QueryRow(`SELECT client, parts FROM vessels WHERE id = ?`, id.String()).Scan(&client, &parts))
	assert.Equal(t, 1, client)
	assert.Equal(t, 2, parts)
}

func TestListNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessels.db")
	a, err := Open(path)
	require.NoError(t, err)
	for tick := uint64(1); tick <= 3; tick++ {
		a.Save(1, tick, vessel.NewID(), sampleDefinition())
	}
	require.NoError(t, a.Close())

	a, err = Open(path)
	require.NoError(t, err)
	defer a.Close()

	records, err := a.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, 3, records[0].Tick)
	assert.EqualValues(t, 2, records[1].Tick)
}

func TestGetUnknown(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "vessels.db"))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Get(context.Background(), vessel.NewID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAfterCloseIsIgnored(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "vessels.db"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NotPanics(t, func() { a.Save(1, 1, vessel.NewID(), sampleDefinition()) })

	var nilArchive *Archive
	assert.NotPanics(t, func() { nilArchive.Save(1, 1, vessel.NewID(), sampleDefinition()) })
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
