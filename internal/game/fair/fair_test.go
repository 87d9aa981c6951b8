package fair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/slot-math/internal/errors"
)

func TestUniform_KnownVectors(t *testing.T) {
	tests := []struct {
		name    string
		counter uint64
		want    float64
	}{
		{"计数器0", 0, 0.35143945273011923},
		{"计数器1", 1, 0.16684630303643644},
		{"计数器2", 2, 0.6693049049936235},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Uniform("test_server", "test_client", tt.counter))
		})
	}
}

func TestDeriveUniform_IncrementsCounter(t *testing.T) {
	s, err := NewState("test_server", "test_client")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Counter())
	assert.Equal(t, 0, s.FreeSpins())

	for i := uint64(0); i < 10; i++ {
		r, err := s.DeriveUniform()
		require.NoError(t, err)
		assert.Equal(t, Uniform("test_server", "test_client", i), r)
		assert.Equal(t, i+1, s.Counter())
		assert.GreaterOrEqual(t, r, 0.0)
		assert.Less(t, r, 1.0)
	}
}

func TestDeriveUniform_Pure(t *testing.T) {
	s, err := Restore("srv", "cli", 41, 0)
	require.NoError(t, err)
	first, err := s.DeriveUniform()
	require.NoError(t, err)

	again, err := Restore("srv", "cli", 41, 0)
	require.NoError(t, err)
	second, err := again.DeriveUniform()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeriveUniform_Unseeded(t *testing.T) {
	var s State
	assert.False(t, s.Seeded())

	_, err := s.DeriveUniform()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnseededState))
	assert.Equal(t, uint64(0), s.Counter())

	var nilState *State
	_, err = nilState.DeriveUniform()
	assert.True(t, apperrors.Is(err, apperrors.ErrUnseededState))

	_, err = NewState("", "client")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnseededState))
}

func TestReseedAndReset(t *testing.T) {
	s, err := NewState("a", "b")
	require.NoError(t, err)
	_, _ = s.DeriveUniform()
	s.SetFreeSpins(3)

	require.NoError(t, s.Reseed("c", "d"))
	assert.Equal(t, uint64(0), s.Counter())
	assert.Equal(t, 0, s.FreeSpins())
	assert.Equal(t, "c", s.ServerSeed())
	assert.Equal(t, "d", s.ClientSeed())

	s.Reset()
	assert.False(t, s.Seeded())
	_, err = s.DeriveUniform()
	assert.True(t, apperrors.Is(err, apperrors.ErrUnseededState))

	s.SetFreeSpins(-4)
	assert.Equal(t, 0, s.FreeSpins())
}

func TestRestore_InvalidFreeSpins(t *testing.T) {
	_, err := Restore("a", "b", 0, -1)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
}

func TestSeedCommitment(t *testing.T) {
	assert.Equal(t,
		"9b85dae99f29f821fe25f45fafe6a373fbb263c92d18b5a9086cf1e2de2cab89",
		HashSeed("test_server"))

	seed, err := GenerateServerSeed()
	require.NoError(t, err)
	assert.Len(t, seed, ServerSeedBytes*2)

	other, err := GenerateServerSeed()
	require.NoError(t, err)
	assert.NotEqual(t, seed, other)

	s, err := NewState(seed, "player")
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, HashSeed(seed), snap.ServerSeedHash)
	assert.NotContains(t, snap.ServerSeedHash, seed)
}

func TestVerifyRound(t *testing.T) {
	hash := HashSeed("test_server")

	r, err := VerifyRound("test_server", hash, "test_client", 1)
	require.NoError(t, err)
	assert.Equal(t, 0.16684630303643644, r)

	// 不提供承诺值时直接重算
	r, err = VerifyRound("test_server", "", "test_client", 2)
	require.NoError(t, err)
	assert.Equal(t, 0.6693049049936235, r)

	_, err = VerifyRound("other", hash, "test_client", 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))

	_, err = VerifyRound("", hash, "test_client", 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnseededState))
}
