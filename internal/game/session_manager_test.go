package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/models"
	"github.com/wfunc/slot-math/internal/repository"
	"go.uber.org/zap"
)

var one = decimal.NewFromInt(1)

func newTestManager(t *testing.T, store SessionStore) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(&SessionConfig{
		Logger:         zap.NewNop(),
		Store:          store,
		Round:          shot.DefaultConfig(),
		SessionTimeout: time.Hour,
		MaxSessions:    100,
	})
	require.NoError(t, err)
	return sm
}

func TestSessionManager_PlayAndReveal(t *testing.T) {
	sm := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	info, err := sm.OpenSession(ctx, "player-seed")
	require.NoError(t, err)
	assert.Len(t, info.ServerSeedHash, 64)
	assert.Equal(t, uint64(0), info.Counter)
	assert.Equal(t, models.SessionStatusActive, info.Status)

	var results []*shot.RoundResult
	for i := 0; i < 20; i++ {
		res, err := sm.Play(ctx, info.SessionID, one)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), res.Counter)
		results = append(results, res)
	}

	reveal, err := sm.CloseSession(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, info.ServerSeedHash, fair.HashSeed(reveal.ServerSeed))
	assert.Equal(t, models.SessionStatusClosed, reveal.Status)
	assert.Equal(t, int64(20), reveal.TotalRounds)

	// 公开种子后每个回合都可以独立复算
	for _, res := range results {
		draw, err := fair.VerifyRound(reveal.ServerSeed, info.ServerSeedHash, "player-seed", res.Counter-1)
		require.NoError(t, err)
		assert.Equal(t, draw, res.Draw)
	}

	_, err = sm.Play(ctx, info.SessionID, one)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionClosed))
	_, err = sm.CloseSession(ctx, info.SessionID)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionClosed))
}

func TestSessionManager_BuyBonus(t *testing.T) {
	sm := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	info, err := sm.OpenSession(ctx, "")
	require.NoError(t, err)

	bought, err := sm.BuyBonus(ctx, info.SessionID, one)
	require.NoError(t, err)
	assert.True(t, bought.BonusBought)
	assert.Equal(t, 5, bought.FreeSpinsRemaining)
	assert.Equal(t, uint64(0), bought.Counter)
	assert.True(t, decimal.NewFromInt(100).Equal(bought.Cost))

	// 奖励进行中不能再次购买，状态不变
	_, err = sm.BuyBonus(ctx, info.SessionID, one)
	assert.True(t, apperrors.Is(err, apperrors.ErrBonusAlreadyActive))

	res, err := sm.Play(ctx, info.SessionID, one)
	require.NoError(t, err)
	assert.True(t, res.FreeRound)
	assert.True(t, res.Cost.IsZero())
	assert.Equal(t, 4, res.FreeSpinsRemaining)

	got, err := sm.GetSessionInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Counter)
	assert.Equal(t, 4, got.FreeSpins)
	assert.Equal(t, int64(2), got.TotalRounds)
	assert.Equal(t, "100", got.TotalBet)
}

func TestSessionManager_InvalidRequests(t *testing.T) {
	sm := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	_, err := sm.Play(ctx, "missing", one)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	info, err := sm.OpenSession(ctx, "c")
	require.NoError(t, err)
	_, err = sm.Play(ctx, info.SessionID, decimal.RequireFromString("0.3"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidBet))

	got, err := sm.GetSessionInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Counter)
}

func TestSessionManager_RecoverFromDatabase(t *testing.T) {
	repos := repository.NewManager(repository.TestDB(t))
	store := NewDatabaseStore(repos)
	ctx := context.Background()

	first := newTestManager(t, store)
	info, err := first.OpenSession(ctx, "client")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := first.Play(ctx, info.SessionID, one)
		require.NoError(t, err)
	}

	// 新进程从数据库恢复，计数器继续递增
	second := newTestManager(t, store)
	res, err := second.Play(ctx, info.SessionID, one)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Counter)

	record, err := repos.Sessions().FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fair.Uniform(record.ServerSeed, "client", 3), res.Draw)
	assert.Equal(t, int64(4), record.TotalRounds)

	p := repository.NewPagination(1, 10)
	rounds, err := second.History(ctx, info.SessionID, p)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.Total)
	require.Len(t, rounds, 4)
	assert.Equal(t, uint64(4), rounds[0].Counter)
}

func TestSessionManager_ConcurrentRoundsNeverReuseCounter(t *testing.T) {
	sm := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	info, err := sm.OpenSession(ctx, "")
	require.NoError(t, err)

	const workers, perWorker = 8, 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		counters = make(map[uint64]bool)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				res, err := sm.Play(ctx, info.SessionID, one)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, counters[res.Counter], "计数器重复: %d", res.Counter)
				counters[res.Counter] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, counters, workers*perWorker)
	got, err := sm.GetSessionInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*perWorker), got.Counter)
}

// failingStore 回合持久化总是失败
type failingStore struct {
	*MemoryStore
}

func (s failingStore) SaveRound(ctx context.Context, session *models.GameSession, round *models.RoundRecord) error {
	return errors.New("disk full")
}

func TestSessionManager_SaveFailureRollsBack(t *testing.T) {
	sm := newTestManager(t, failingStore{NewMemoryStore()})
	ctx := context.Background()

	info, err := sm.OpenSession(ctx, "")
	require.NoError(t, err)
	_, err = sm.Play(ctx, info.SessionID, one)
	require.Error(t, err)

	got, err := sm.GetSessionInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Counter)
	assert.Equal(t, int64(0), got.TotalRounds)
	assert.Equal(t, "0", got.TotalBet)
}

func TestSessionManager_EncodeFailureRollsBack(t *testing.T) {
	store := NewMemoryStore()
	sm := newTestManager(t, store)
	ctx := context.Background()

	info, err := sm.OpenSession(ctx, "")
	require.NoError(t, err)
	_, err = sm.Play(ctx, info.SessionID, one)
	require.NoError(t, err)

	encodeRound = func(v interface{}) ([]byte, error) { return nil, errors.New("bad payload") }
	defer func() { encodeRound = json.Marshal }()

	_, err = sm.Play(ctx, info.SessionID, one)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDataIntegrity))

	got, err := sm.GetSessionInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Counter)
	assert.Equal(t, int64(1), got.TotalRounds)

	rounds, err := sm.History(ctx, info.SessionID, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Len(t, rounds, 1)

	// 恢复编码后从回退的计数器继续
	encodeRound = json.Marshal
	result, err := sm.Play(ctx, info.SessionID, one)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Counter)
}

func TestSessionManager_CleanupAndRecover(t *testing.T) {
	sm := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	info, err := sm.OpenSession(ctx, "")
	require.NoError(t, err)
	_, err = sm.Play(ctx, info.SessionID, one)
	require.NoError(t, err)

	sm.mu.Lock()
	sm.sessions[info.SessionID].lastActivity = time.Now().Add(-2 * time.Hour)
	sm.mu.Unlock()

	assert.Equal(t, 1, sm.CleanupInactiveSessions())
	assert.Equal(t, 0, sm.GetActiveSessions())

	res, err := sm.Play(ctx, info.SessionID, one)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Counter)
	assert.Equal(t, 1, sm.GetActiveSessions())
}

func TestSessionManager_MaxSessions(t *testing.T) {
	sm, err := NewSessionManager(&SessionConfig{
		Logger:      zap.NewNop(),
		Round:       shot.DefaultConfig(),
		MaxSessions: 1,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = sm.OpenSession(ctx, "")
	require.NoError(t, err)
	_, err = sm.OpenSession(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionBusy))
}

func TestSessionManager_BusyWhenContextDone(t *testing.T) {
	sm := newTestManager(t, NewMemoryStore())
	info, err := sm.OpenSession(context.Background(), "")
	require.NoError(t, err)

	// 占住会话锁
	s, err := sm.lockSession(context.Background(), info.SessionID)
	require.NoError(t, err)
	defer s.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sm.Play(ctx, info.SessionID, one)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionBusy))
}
