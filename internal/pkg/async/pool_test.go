package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecute(t *testing.T) {
	t.Run("collects every result by name", func(t *testing.T) {
		tasks := []Task{
			{Name: "one", Execute: func() (interface{}, error) { return 1, nil }},
			{Name: "two", Execute: func() (interface{}, error) { return 2, nil }},
			{Name: "fail", Execute: func() (interface{}, error) { return nil, errors.New("boom") }},
		}

		results := NewPool(2).Execute(context.Background(), tasks)
		require.Len(t, results, 3)
		assert.Equal(t, 1, results["one"].Data)
		assert.Equal(t, 2, results["two"].Data)
		assert.EqualError(t, results["fail"].Err, "boom")
	})

	t.Run("a panicking task becomes an error", func(t *testing.T) {
		tasks := []Task{
			{Name: "panic", Execute: func() (interface{}, error) { panic("kaboom") }},
			{Name: "ok", Execute: func() (interface{}, error) { return "fine", nil }},
		}

		results := NewPool(1).Execute(context.Background(), tasks)
		require.Len(t, results, 2)
		assert.ErrorContains(t, results["panic"].Err, "kaboom")
		assert.Equal(t, "fine", results["ok"].Data)
	})

	t.Run("runs tasks concurrently", func(t *testing.T) {
		var running, peak int32
		task := func() (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		}

		tasks := []Task{{Name: "a", Execute: task}, {Name: "b", Execute: task}, {Name: "c", Execute: task}}
		results := NewPool(3).Execute(context.Background(), tasks)
		assert.Len(t, results, 3)
		assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
	})

	t.Run("cancelled context returns early", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		tasks := []Task{{Name: "slow", Execute: func() (interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, nil
		}}}
		results := NewPool(1).Execute(ctx, tasks)
		assert.LessOrEqual(t, len(results), 1)
	})
}
