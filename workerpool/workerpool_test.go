package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p, _ := New(context.Background(), 2)

	var inFlight, maxInFlight int32
	block := make(chan struct{})
	done := make(chan struct{})

	go func() {
		for i := 0; i < 5; i++ {
			p.Go(func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				<-block
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}
		close(done)
	}()
	close(block)
	<-done

	require.NoError(t, p.Wait())
	require.LessOrEqual(t, maxInFlight, int32(2))
}

func TestPoolWaitReturnsFirstError(t *testing.T) {
	p, _ := New(context.Background(), 3)
	want := errors.New("boom")

	p.Go(func() error { return nil })
	p.Go(func() error { return want })

	require.ErrorIs(t, p.Wait(), want)
}

func TestNewClampsSizeBelowOne(t *testing.T) {
	p, _ := New(context.Background(), 0)
	require.NoError(t, p.Wait())
}
