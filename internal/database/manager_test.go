package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func TestPoolManager_Initialize(t *testing.T) {
	fake := newFakeDriverPool(5)
	cfg := testConfig(t)

	m := newInitializedManager(t, fake, cfg)

	assert.Equal(t, StateHealthy, m.State())
	assert.Same(t, cfg, m.Config())

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.IdleConnections)
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.Equal(t, int64(0), stats.TotalAcquisitions)
	assert.False(t, stats.PoolCreatedAt.IsZero())

	// 预热时每个连接都执行过一次校验
	fake.mu.Lock()
	assert.Equal(t, 2, fake.queries)
	fake.mu.Unlock()
}

func TestPoolManager_InitializeValidationFailure(t *testing.T) {
	fake := newFakeDriverPool(5)
	fake.setQueryFn(func(context.Context, string) (int64, error) {
		return 0, errors.New("connection refused")
	})
	cfg := testConfig(t)

	m := NewPoolManager(zap.NewNop(), WithDriverOpener(openerFor(fake)))
	err := m.Initialize(context.Background(), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.Contains(t, err.Error(), "min_size=2")
	assert.Contains(t, err.Error(), "max_size=5")
	assert.Contains(t, err.Error(), "db.internal")
	assert.NotContains(t, err.Error(), "s3cret")
	assert.Equal(t, StateUnhealthy, m.State())
	assert.True(t, fake.isClosed())

	var poolErr *Error
	require.True(t, errors.As(err, &poolErr))
	var validation *Error
	require.True(t, errors.As(poolErr.Cause, &validation))
	assert.Equal(t, CodeValidation, validation.Code)
	assert.Equal(t, ReasonTransport, validation.Reason)
}

func TestPoolManager_InitializeOpenFailure(t *testing.T) {
	m := NewPoolManager(zap.NewNop(), WithDriverOpener(func(context.Context, *PoolConfig) (DriverPool, error) {
		return nil, errors.New("dial tcp: no route to host")
	}))

	err := m.Initialize(context.Background(), testConfig(t))

	assert.ErrorIs(t, err, ErrInitialization)
	assert.Contains(t, err.Error(), "no route to host")
	assert.Equal(t, StateUnhealthy, m.State())

	_, err = m.GetStatistics()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPoolManager_InitializeRetryAfterFailure(t *testing.T) {
	fake := newFakeDriverPool(5)
	var fail atomic.Bool
	fail.Store(true)
	fake.setQueryFn(func(context.Context, string) (int64, error) {
		if fail.Load() {
			return 0, errors.New("connection refused")
		}
		return 1, nil
	})

	m := NewPoolManager(zap.NewNop(), WithDriverOpener(func(context.Context, *PoolConfig) (DriverPool, error) {
		fake.mu.Lock()
		fake.closed = false
		fake.mu.Unlock()
		return fake, nil
	}))
	defer m.Shutdown(context.Background())

	cfg := testConfig(t)
	require.Error(t, m.Initialize(context.Background(), cfg))
	assert.Equal(t, StateUnhealthy, m.State())

	fail.Store(false)
	require.NoError(t, m.Initialize(context.Background(), cfg))
	assert.Equal(t, StateHealthy, m.State())
}

func TestPoolManager_InitializeInvalidCalls(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		m := NewPoolManager(nil)
		err := m.Initialize(context.Background(), nil)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Equal(t, StateInitializing, m.State())
	})

	t.Run("already initialized", func(t *testing.T) {
		m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))
		err := m.Initialize(context.Background(), testConfig(t))
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, StateHealthy, m.State())
	})

	t.Run("after shutdown", func(t *testing.T) {
		m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))
		require.NoError(t, m.Shutdown(context.Background()))
		err := m.Initialize(context.Background(), testConfig(t))
		assert.ErrorIs(t, err, ErrPoolClosed)
	})
}

func TestPoolManager_NotInitialized(t *testing.T) {
	m := NewPoolManager(zap.NewNop())

	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.GetStatistics()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.Nil(t, m.Config())
}

func TestPoolManager_AcquireRelease(t *testing.T) {
	fake := newFakeDriverPool(5)
	m := newInitializedManager(t, fake, testConfig(t))
	ctx := context.Background()

	leases := make([]*Lease, 0, 3)
	for i := 0; i < 3; i++ {
		l, err := m.Acquire(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, l.ID())
		leases = append(leases, l)
	}

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ActiveConnections)
	assert.Equal(t, int64(3), stats.TotalAcquisitions)
	assert.Equal(t, int64(0), stats.TotalReleases)

	for _, l := range leases {
		l.Release()
	}

	stats, err = m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.Equal(t, int64(3), stats.TotalReleases)
	assert.GreaterOrEqual(t, stats.PeakActiveConnections, 3)
	assert.GreaterOrEqual(t, stats.AvgAcquisitionTimeMs, 0.0)
}

func TestLease_ReleaseIsIdempotent(t *testing.T) {
	m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)

	l.Release()
	l.Release()

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalReleases)
	assert.Equal(t, 0, stats.ActiveConnections)
}

func TestPoolManager_WithConn(t *testing.T) {
	m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))

	err := m.WithConn(context.Background(), func(l *Lease) error {
		v, err := l.Conn().QueryScalar(context.Background(), "SELECT 1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		_, ok := l.SQLConn()
		assert.False(t, ok)
		_, err = l.Gorm(context.Background())
		assert.Error(t, err)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, stats.TotalAcquisitions, stats.TotalReleases)
}

func TestPoolManager_WithConnReleasesOnPanic(t *testing.T) {
	m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))

	assert.Panics(t, func() {
		_ = m.WithConn(context.Background(), func(*Lease) error {
			panic("boom")
		})
	})

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalReleases)
}

func TestPoolManager_AcquireTimeout(t *testing.T) {
	fake := newFakeDriverPool(2)
	cfg := testConfig(t, func(o *PoolOptions) {
		o.MinSize = 1
		o.MaxSize = 2
		o.AcquireTimeout = 100 * time.Millisecond
	})
	m := newInitializedManager(t, fake, cfg)
	ctx := context.Background()

	l1, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer l1.Release()
	l2, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer l2.Release()

	start := time.Now()
	_, err = m.Acquire(ctx)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Contains(t, err.Error(), "increase max_size")

	var poolErr *Error
	require.True(t, errors.As(err, &poolErr))
	require.NotNil(t, poolErr.Counts)
	assert.Equal(t, 2, poolErr.Counts.Total)
	assert.Equal(t, 2, poolErr.Counts.Active)
	assert.Equal(t, 0, poolErr.Counts.Idle)
	assert.GreaterOrEqual(t, poolErr.Counts.Waiting, 1)

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.NotEmpty(t, stats.LastError)
	assert.NotNil(t, stats.LastErrorTime)
}

func TestPoolManager_AcquireHonoursCallerContext(t *testing.T) {
	fake := newFakeDriverPool(1)
	cfg := testConfig(t, func(o *PoolOptions) {
		o.MinSize = 1
		o.MaxSize = 1
		o.AcquireTimeout = 5 * time.Second
	})
	m := newInitializedManager(t, fake, cfg)

	held, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolManager_ConcurrentAcquire(t *testing.T) {
	fake := newFakeDriverPool(5)
	cfg := testConfig(t, func(o *PoolOptions) {
		o.AcquireTimeout = 5 * time.Second
	})
	m := newInitializedManager(t, fake, cfg)

	// 并发期间持续采样，每个快照都必须满足计数不变量
	stop := make(chan struct{})
	sampled := make(chan []Snapshot, 1)
	go func() {
		var snaps []Snapshot
		defer func() { sampled <- snaps }()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if snap, err := m.GetStatistics(); err == nil {
				snaps = append(snaps, snap)
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.WithConn(context.Background(), func(*Lease) error {
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()
	close(stop)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snaps := <-sampled
	require.NotEmpty(t, snaps)
	for _, snap := range snaps {
		assert.GreaterOrEqual(t, snap.ActiveConnections, 0)
		assert.LessOrEqual(t, snap.ActiveConnections, snap.TotalConnections)
		assert.Equal(t, snap.TotalConnections, snap.IdleConnections+snap.ActiveConnections)
		assert.LessOrEqual(t, snap.TotalConnections, 5)
		assert.GreaterOrEqual(t, snap.WaitingRequests, 0)
	}

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(workers), stats.TotalAcquisitions)
	assert.Equal(t, int64(workers), stats.TotalReleases)
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.Equal(t, 0, stats.WaitingRequests)
	assert.LessOrEqual(t, stats.PeakActiveConnections, 5)
	assert.LessOrEqual(t, stats.TotalConnections, 5)
}

func TestPoolManager_RecyclesExhaustedConnection(t *testing.T) {
	fake := newFakeDriverPool(1)
	cfg := testConfig(t, func(o *PoolOptions) {
		o.MinSize = 1
		o.MaxSize = 1
		o.MaxQueriesPerConnection = minQueriesPerConnection
	})
	m := newInitializedManager(t, fake, cfg)
	ctx := context.Background()

	var first *fakeConn
	for i := 0; i < minQueriesPerConnection; i++ {
		l, err := m.Acquire(ctx)
		require.NoError(t, err)
		c := l.Conn().(*fakeConn)
		if first == nil {
			first = c
		}
		require.Same(t, first, c)
		l.Release()
	}
	assert.Equal(t, 0, fake.discardCount())

	l, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer l.Release()

	assert.Equal(t, 1, fake.discardCount())
	assert.NotSame(t, first, l.Conn().(*fakeConn))
}

func TestPoolManager_RecycleValidationFailure(t *testing.T) {
	fake := newFakeDriverPool(1)
	cfg := testConfig(t, func(o *PoolOptions) {
		o.MinSize = 1
		o.MaxSize = 1
		o.MaxQueriesPerConnection = minQueriesPerConnection
	})
	m := newInitializedManager(t, fake, cfg)
	ctx := context.Background()

	for i := 0; i < minQueriesPerConnection; i++ {
		l, err := m.Acquire(ctx)
		require.NoError(t, err)
		l.Release()
	}

	fake.setQueryFn(func(context.Context, string) (int64, error) {
		return 2, nil
	})
	_, err := m.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var poolErr *Error
	require.True(t, errors.As(err, &poolErr))
	assert.Equal(t, ReasonUnexpectedResult, poolErr.Reason)
	assert.Equal(t, 2, fake.discardCount())
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func TestPoolManager_HealthCheckTransitions(t *testing.T) {
	fake := newFakeDriverPool(5)
	clock := newFakeClock()
	m := newInitializedManager(t, fake, testConfig(t), WithClock(clock.Now))
	ctx := context.Background()

	report, err := m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, report.Status)
	assert.Equal(t, StateHealthy, report.State)
	assert.Equal(t, ConnectivityConnected, report.Database.Status)
	assert.Nil(t, report.Database.LatencyMs)

	// 2 个连接借出 1 个：空闲占比 0.5 → degraded
	l1, err := m.Acquire(ctx)
	require.NoError(t, err)
	report, err = m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, report.Status)
	assert.Equal(t, StateDegraded, m.State())
	assert.Equal(t, ConnectivityDegraded, report.Database.Status)
	require.NotNil(t, report.Database.LatencyMs)

	// 全部借出：空闲占比 0 → unhealthy
	l2, err := m.Acquire(ctx)
	require.NoError(t, err)
	report, err = m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthUnhealthy, report.Status)
	assert.Equal(t, StateUnhealthy, m.State())

	l1.Release()
	l2.Release()
	report, err = m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, report.Status)
	assert.Equal(t, StateHealthy, m.State())
	assert.Equal(t, 2, report.Database.Pool.Total)
	assert.Equal(t, 2, report.Database.Pool.Idle)
}

func TestPoolManager_HealthCheckRecentError(t *testing.T) {
	fake := newFakeDriverPool(2)
	clock := newFakeClock()
	cfg := testConfig(t, func(o *PoolOptions) {
		o.MinSize = 2
		o.MaxSize = 2
		o.AcquireTimeout = 50 * time.Millisecond
	})
	m := newInitializedManager(t, fake, cfg, WithClock(clock.Now))
	ctx := context.Background()

	l1, _ := m.Acquire(ctx)
	l2, _ := m.Acquire(ctx)
	_, err := m.Acquire(ctx)
	require.ErrorIs(t, err, ErrAcquireTimeout)
	l1.Release()
	l2.Release()

	clock.Advance(30 * time.Second)
	report, err := m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, report.Status)
	assert.NotEmpty(t, report.Database.LastError)

	clock.Advance(31 * time.Second)
	report, err = m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, report.Status)
	assert.InDelta(t, 61, report.UptimeSeconds, 0.001)
}

func TestPoolManager_LeakDetection(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fake := newFakeDriverPool(5)
	clock := newFakeClock()
	cfg := testConfig(t, func(o *PoolOptions) {
		o.LeakDetectionTimeout = 30 * time.Second
		o.EnableLeakDetection = true
	})

	m := NewPoolManager(zap.New(core), WithDriverOpener(openerFor(fake)), WithClock(clock.Now))
	require.NoError(t, m.Initialize(context.Background(), cfg))
	defer m.Shutdown(context.Background())

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(31 * time.Second)

	report, err := m.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Database.LeakCount)

	_, err = m.HealthCheck(context.Background())
	require.NoError(t, err)

	leakLogs := logs.FilterMessage("possible connection leak detected")
	require.Equal(t, 1, leakLogs.Len())
	fields := leakLogs.All()[0].ContextMap()
	assert.Equal(t, l.ID(), fields["lease_id"])
	assert.NotEmpty(t, fields["acquired_at_stack"])

	l.Release()
	assert.Equal(t, 1, logs.FilterMessage("possible connection leak detected").Len())

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.LeakCount)
}

func TestPoolManager_LeakReportedOnRelease(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clock := newFakeClock()
	cfg := testConfig(t, func(o *PoolOptions) {
		o.LeakDetectionTimeout = 10 * time.Second
	})

	m := NewPoolManager(zap.New(core), WithDriverOpener(openerFor(newFakeDriverPool(5))), WithClock(clock.Now))
	require.NoError(t, m.Initialize(context.Background(), cfg))
	defer m.Shutdown(context.Background())

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	clock.Advance(11 * time.Second)
	l.Release()

	assert.Equal(t, 1, logs.FilterMessage("possible connection leak detected").Len())
}

func TestPoolManager_LeakDetectionDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clock := newFakeClock()
	cfg := testConfig(t, func(o *PoolOptions) {
		o.LeakDetectionTimeout = 0
	})

	m := NewPoolManager(zap.New(core), WithDriverOpener(openerFor(newFakeDriverPool(5))), WithClock(clock.Now))
	require.NoError(t, m.Initialize(context.Background(), cfg))
	defer m.Shutdown(context.Background())

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Hour)

	report, err := m.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Database.LeakCount)
	l.Release()
	assert.Equal(t, 0, logs.FilterMessage("possible connection leak detected").Len())
}

// =============================================================================
// 🛑 关闭
// =============================================================================

func TestPoolManager_ShutdownWaitsForLeases(t *testing.T) {
	fake := newFakeDriverPool(5)
	m := newInitializedManager(t, fake, testConfig(t))

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, m.Shutdown(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, StateTerminated, m.State())
	assert.True(t, fake.isClosed())

	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = m.GetStatistics()
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = m.HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	// 重复关闭
	assert.NoError(t, m.Shutdown(context.Background()))
	fake.mu.Lock()
	assert.Equal(t, 1, fake.closeCalls)
	fake.mu.Unlock()
}

func TestPoolManager_ShutdownTimeout(t *testing.T) {
	fake := newFakeDriverPool(5)
	m := newInitializedManager(t, fake, testConfig(t))

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, m.Shutdown(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateTerminated, m.State())

	// 关闭后归还不应 panic
	assert.NotPanics(t, l.Release)
}

func TestPoolManager_AcquireDuringShutdown(t *testing.T) {
	m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))

	held, err := m.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- m.Shutdown(context.Background())
	}()

	require.Eventually(t, func() bool {
		return m.State() == StateShuttingDown
	}, time.Second, 5*time.Millisecond)

	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	// 关闭中仍可读取统计
	_, err = m.GetStatistics()
	assert.NoError(t, err)

	held.Release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not finish after the last lease was returned")
	}
	assert.Equal(t, StateTerminated, m.State())
}

func TestPoolManager_ShutdownBeforeInitialize(t *testing.T) {
	m := NewPoolManager(zap.NewNop())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, StateTerminated, m.State())
}

func TestPoolManager_ConcurrentShutdown(t *testing.T) {
	m := newInitializedManager(t, newFakeDriverPool(5), testConfig(t))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Shutdown(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, StateTerminated, m.State())
}

func TestPoolManager_StateObserver(t *testing.T) {
	type transition struct{ from, to PoolState }
	var seen []transition
	observe := func(from, to PoolState) {
		seen = append(seen, transition{from, to})
	}

	fake := newFakeDriverPool(5)
	m := NewPoolManager(zap.NewNop(), WithDriverOpener(openerFor(fake)), WithStateObserver(observe))
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx, testConfig(t)))

	l1, err := m.Acquire(ctx)
	require.NoError(t, err)
	l2, err := m.Acquire(ctx)
	require.NoError(t, err)
	_, err = m.HealthCheck(ctx)
	require.NoError(t, err)

	// 状态不变的巡检不产生回调
	_, err = m.HealthCheck(ctx)
	require.NoError(t, err)

	l1.Release()
	l2.Release()
	_, err = m.HealthCheck(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, []transition{
		{StateInitializing, StateHealthy},
		{StateHealthy, StateUnhealthy},
		{StateUnhealthy, StateHealthy},
		{StateHealthy, StateShuttingDown},
		{StateShuttingDown, StateTerminated},
	}, seen)
}
