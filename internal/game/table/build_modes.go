package table

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/logger"
)

// BuildModes 并行构建多个模式的概率表，任一模式失败则整体失败
func BuildModes(ctx context.Context, params map[string]Params) (map[string]*Table, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	tables := make(map[string]*Table, len(params))

	for mode, p := range params {
		mode, p := mode, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			t, err := Build(p)
			logger.LogTableBuild(mode, p.Rows, p.TotalUnits, p.TargetUnits(), time.Since(start), err)
			if err != nil {
				return apperrors.Wrapf(err, apperrors.ErrInfeasibleAllocation, "模式 %s", mode)
			}

			mu.Lock()
			tables[mode] = t
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
