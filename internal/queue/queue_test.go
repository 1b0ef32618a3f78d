package queue

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

func TestQueue_PutGet(t *testing.T) {
	q := New[int]()
	for i := 0; i < 3; i++ {
		q.Put(i)
	}
	assert.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		v, err := q.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v) // fifo
	}
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 3, q.Unfinished())
}

func TestQueue_Get(t *testing.T) {
	t.Run("when queue is empty and ctx is cancelled", func(t *testing.T) {
		q := New[string]()
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(time.Millisecond * 5)
			cancel()
		}()
		v, err := q.Get(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, v)
	})
	t.Run("when item arrives while waiting", func(t *testing.T) {
		q := New[string]()
		go func() {
			time.Sleep(time.Millisecond * 5)
			q.Put("hello")
		}()
		v, err := q.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "hello", v)
	})
}

func TestQueue_Join(t *testing.T) {
	t.Run("when nothing is pending", func(t *testing.T) {
		q := New[int]()
		assert.NoError(t, q.Join(context.Background()))
	})
	t.Run("when items are acknowledged", func(t *testing.T) {
		q := New[int]()
		q.Put(1)
		q.Put(2)
		joined := make(chan error)
		go func() { joined <- q.Join(context.Background()) }()

		for i := 0; i < 2; i++ {
			_, err := q.Get(context.Background())
			require.NoError(t, err)
			select {
			case <-joined:
				t.Fatal("join returned before all items were acknowledged")
			default:
			}
			q.Done()
		}
		assert.NoError(t, <-joined)
	})
	t.Run("when ctx is done", func(t *testing.T) {
		q := New[int]()
		q.Put(1)
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*5)
		defer cancel()
		assert.ErrorIs(t, q.Join(ctx), context.DeadlineExceeded)
	})
}

func TestQueue_Done(t *testing.T) {
	q := New[int]()
	assert.Panics(t, q.Done)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Put(i)
		}(i)
	}
	wg.Wait()
	seen := make(map[int]bool)
	for i := 0; i < 100; i++ {
		v, err := q.Get(context.Background())
		require.NoError(t, err)
		seen[v] = true
		q.Done()
	}
	assert.Len(t, seen, 100)
	assert.NoError(t, q.Join(context.Background()))
}
