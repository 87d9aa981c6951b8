package table

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/slot-math/internal/errors"
)

func TestBuildModes(t *testing.T) {
	small := Params{
		Rows:              100,
		TotalUnits:        1000,
		TargetRTP:         decimal.RequireFromString("0.9"),
		JackpotMultiplier: 50,
		JackpotWeight:     1,
	}

	tables, err := BuildModes(context.Background(), map[string]Params{
		"base":  baseParams(),
		"small": small,
	})
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assertInvariants(t, tables["base"])
	assertInvariants(t, tables["small"])
	assert.Equal(t, int64(900), tables["small"].WeightedSum())

	// 与串行构建结果一致
	serial, err := Build(baseParams())
	require.NoError(t, err)
	assert.Equal(t, serial.Checksum(), tables["base"].Checksum())
}

func TestBuildModes_OneInfeasible(t *testing.T) {
	_, err := BuildModes(context.Background(), map[string]Params{
		"base": baseParams(),
		"broken": {
			Rows:              10,
			TotalUnits:        100,
			TargetRTP:         decimal.RequireFromString("0.5"),
			JackpotMultiplier: 10,
			JackpotWeight:     1,
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInfeasibleAllocation))
	assert.Contains(t, err.Error(), "broken")
}

func TestBuildModes_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildModes(ctx, map[string]Params{"base": baseParams()})
	assert.ErrorIs(t, err, context.Canceled)
}
