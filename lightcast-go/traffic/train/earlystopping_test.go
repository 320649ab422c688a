package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcast/lightcast/lightcast-golib/errors"
)

func TestEarlyStopping_SavesOnImprovementOnly(t *testing.T) {
	e := NewEarlyStopping(4)
	saves := 0
	save := func() error { saves++; return nil }

	require.NoError(t, e.Step(1.0, save))
	require.NoError(t, e.Step(0.8, save))
	require.NoError(t, e.Step(0.9, save)) // worse: no save
	require.NoError(t, e.Step(0.7, save))
	assert.Equal(t, 3, saves)
	assert.InDelta(t, 0.7, e.Best(), 1e-12)
}

func TestEarlyStopping_StopsAfterPatience(t *testing.T) {
	e := NewEarlyStopping(4)
	save := func() error { return nil }

	require.NoError(t, e.Step(1.0, save))
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Step(2.0, save))
		assert.False(t, e.Stopped())
	}
	require.NoError(t, e.Step(2.0, save))
	assert.True(t, e.Stopped())
}

func TestEarlyStopping_SaveErrorPropagates(t *testing.T) {
	e := NewEarlyStopping(4)
	wantErr := errors.New("disk full")
	err := e.Step(1.0, func() error { return wantErr })
	assert.Equal(t, wantErr, err)
}
