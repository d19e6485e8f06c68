package sessioncache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Email string
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newWithClock(ttl time.Duration) (*Cache[profile], *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[profile](ttl)
	c.now = clk.Now
	return c, clk
}

func TestGet_MissNeverFabricates(t *testing.T) {
	c := New[profile](0)
	e, ok := c.Get("user_1")
	assert.False(t, ok)
	assert.Zero(t, e)
}

func TestSet_Upserts(t *testing.T) {
	c, clk := newWithClock(0)

	c.Set("user_1", profile{Email: "a@example.com"})
	clk.Advance(time.Second)
	c.Set("user_1", profile{Email: "b@example.com"})

	e, ok := c.Get("user_1")
	require.True(t, ok)
	assert.Equal(t, "b@example.com", e.Value.Email)
	assert.Equal(t, "user_1", e.Key)
	assert.Equal(t, clk.Now(), e.InsertedAt)
	assert.Equal(t, 1, c.Len())
}

func TestZeroTTL_NeverExpires(t *testing.T) {
	c, clk := newWithClock(0)
	c.Set("user_1", profile{})
	clk.Advance(24 * 365 * time.Hour)

	_, ok := c.Get("user_1")
	assert.True(t, ok)
	assert.Equal(t, 0, c.Prune())
}

func TestTTL_LazyExpiry(t *testing.T) {
	c, clk := newWithClock(time.Minute)
	c.Set("user_1", profile{})

	clk.Advance(59 * time.Second)
	_, ok := c.Get("user_1")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("user_1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPrune(t *testing.T) {
	c, clk := newWithClock(time.Minute)
	c.Set("old", profile{})
	clk.Advance(2 * time.Minute)
	c.Set("fresh", profile{})

	assert.Equal(t, 1, c.Prune())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestDelete(t *testing.T) {
	c := New[profile](0)
	c.Set("user_1", profile{})
	c.Delete("user_1")
	_, ok := c.Get("user_1")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[profile](time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("user_%d", i%10)
				c.Set(key, profile{Email: fmt.Sprintf("%d@example.com", w)})
				if e, ok := c.Get(key); ok {
					assert.Equal(t, key, e.Key)
				}
				if i%50 == 0 {
					c.Prune()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, c.Len())
}

type countingPruner struct{ n atomic.Int32 }

func (p *countingPruner) Prune() int {
	p.n.Add(1)
	return 1
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	p := &countingPruner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, p, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	require.Eventually(t, func() bool { return p.n.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	d := &dto.Metric{}
	require.NoError(t, g.Write(d))
	return d.GetGauge().GetValue()
}

func TestEntriesGauge_PerCache(t *testing.T) {
	a := New[profile](0, WithName("gauge_a"))
	b := New[profile](0, WithName("gauge_b"))

	a.Set("1", profile{})
	a.Set("2", profile{})
	b.Set("1", profile{})

	assert.Equal(t, 2.0, gaugeValue(t, entriesGauge.WithLabelValues("gauge_a")))
	assert.Equal(t, 1.0, gaugeValue(t, entriesGauge.WithLabelValues("gauge_b")))
}

func TestEntriesGauge_LazyExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[profile](time.Minute, WithName("gauge_lazy"))
	c.now = clk.Now

	c.Set("user_1", profile{})
	require.Equal(t, 1.0, gaugeValue(t, entriesGauge.WithLabelValues("gauge_lazy")))

	clk.Advance(2 * time.Minute)
	_, ok := c.Get("user_1")
	assert.False(t, ok)
	assert.Equal(t, 0.0, gaugeValue(t, entriesGauge.WithLabelValues("gauge_lazy")))
}
