package input

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/vessel"
)

func TestKeyStateAxis(t *testing.T) {
	tests := []struct {
		name string
		keys KeyState
		want mgl32.Vec2
	}{
		{"none", KeyState{}, mgl32.Vec2{0, 0}},
		{"forward", KeyState{Forward: true}, mgl32.Vec2{1, 0}},
		{"back", KeyState{Back: true}, mgl32.Vec2{-1, 0}},
		{"opposing cancel", KeyState{Forward: true, Back: true}, mgl32.Vec2{0, 0}},
		{"forward right", KeyState{Forward: true, Right: true}, mgl32.Vec2{1, 1}},
		{"left", KeyState{Left: true}, mgl32.Vec2{0, -1}},
		{"all", KeyState{true, true, true, true}, mgl32.Vec2{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.keys.Axis()))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, mgl32.Vec2{1, -1}, Clamp(mgl32.Vec2{3, -7}))
}

func localVessel(t *testing.T) (*ecs.World, ecs.Entity) {
	t.Helper()
	w := ecs.NewWorld()
	e := w.Spawn()
	ecs.Insert(w, e, LocallyControlled{})
	ecs.Insert(w, e, vessel.Control{})
	return w, e
}

func TestApplyWritesOnlyOnChange(t *testing.T) {
	w, e := localVessel(t)
	held := KeyState{Forward: true}

	writes := 0
	for i := 0; i < 10; i++ {
		w.Advance()
		if Apply(w, held) {
			writes++
		}
		assert.Equal(t, i == 0, ecs.Changed[vessel.Control](w, e), "tick %d", i)
	}
	assert.Equal(t, 1, writes)

	w.Advance()
	assert.True(t, Apply(w, KeyState{}))
	c, _ := ecs.Get[vessel.Control](w, e)
	assert.Equal(t, mgl32.Vec2{0, 0}, c.Axis)
}

func TestApplyWithoutLocalEntity(t *testing.T) {
	w := ecs.NewWorld()
	e := w.Spawn()
	ecs.Insert(w, e, vessel.Control{})
	assert.False(t, Apply(w, KeyState{Forward: true}))

	// locally controlled but not spawned yet
	other := w.Spawn()
	ecs.Insert(w, other, LocallyControlled{})
	assert.False(t, Apply(w, KeyState{Forward: true}))
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript("W:2, wd:1, :1", false)
	require.NoError(t, err)

	var got []KeyState
	for !s.Done() {
		got = append(got, s.Next())
	}
	assert.Equal(t, []KeyState{
		{Forward: true},
		{Forward: true},
		{Forward: true, Right: true},
		{},
	}, got)
	assert.Equal(t, KeyState{}, s.Next())
}

func TestScriptLoops(t *testing.T) {
	s, err := ParseScript("W:1,S:1", true)
	require.NoError(t, err)
	seq := []KeyState{s.Next(), s.Next(), s.Next()}
	assert.Equal(t, []KeyState{{Forward: true}, {Back: true}, {Forward: true}}, seq)
	assert.False(t, s.Done())
}

func TestParseScriptErrors(t *testing.T) {
	for _, src := range []string{"W", "W:x", "Q:3", "W:-1"} {
		_, err := ParseScript(src, false)
		assert.True(t, errors.Is(err, ErrBadScript), src)
	}
	s, err := ParseScript("", false)
	require.NoError(t, err)
	assert.Equal(t, KeyState{}, s.Next())
}
