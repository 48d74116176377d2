package gateway_test

import (
	"context"
	"errors"
	"garagechat/backend/internal/gateway"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var fastPolicy = gateway.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func TestReadReconciler_RetriesUntilSuccess(t *testing.T) {
	gw := new(MockGateway)
	gw.On("MarkRead", mock.Anything, "u1_u2").Return(errors.New("503")).Twice()
	gw.On("MarkRead", mock.Anything, "u1_u2").Return(nil).Once()

	r := gateway.NewReadReconciler(gw, fastPolicy, zerolog.Nop())
	var gaveUp atomic.Bool
	r.OnGiveUp = func(string, error) { gaveUp.Store(true) }

	r.Enqueue(context.Background(), "u1_u2")
	r.Wait()

	gw.AssertNumberOfCalls(t, "MarkRead", 3)
	assert.False(t, gaveUp.Load())
}

func TestReadReconciler_GivesUpAfterAttempts(t *testing.T) {
	gw := new(MockGateway)
	gw.On("MarkRead", mock.Anything, "u1_u2").Return(errors.New("offline"))

	r := gateway.NewReadReconciler(gw, fastPolicy, zerolog.Nop())
	var got error
	r.OnGiveUp = func(room string, err error) {
		assert.Equal(t, "u1_u2", room)
		got = err
	}

	r.Enqueue(context.Background(), "u1_u2")
	r.Wait()

	gw.AssertNumberOfCalls(t, "MarkRead", 3)
	assert.ErrorIs(t, got, gateway.ErrReadSyncFailed)
}

func TestReadReconciler_CoalescesWhileInFlight(t *testing.T) {
	gw := new(MockGateway)
	release := make(chan time.Time)
	gw.On("MarkRead", mock.Anything, "u1_u2").WaitUntil(release).Return(nil).Once()
	gw.On("MarkRead", mock.Anything, "u1_u2").Return(nil)

	r := gateway.NewReadReconciler(gw, fastPolicy, zerolog.Nop())

	r.Enqueue(context.Background(), "u1_u2")
	r.Enqueue(context.Background(), "u1_u2")
	r.Enqueue(context.Background(), "u1_u2")
	close(release)
	r.Wait()

	// One in flight plus one coalesced re-run.
	gw.AssertNumberOfCalls(t, "MarkRead", 2)
}

func TestReadReconciler_RerunsAfterFailedChain(t *testing.T) {
	gw := new(MockGateway)
	release := make(chan time.Time)
	gw.On("MarkRead", mock.Anything, "u1_u2").WaitUntil(release).Return(errors.New("offline")).Once()
	gw.On("MarkRead", mock.Anything, "u1_u2").Return(nil)

	r := gateway.NewReadReconciler(gw, gateway.RetryPolicy{Attempts: 1}, zerolog.Nop())
	var gaveUp atomic.Int32
	r.OnGiveUp = func(string, error) { gaveUp.Add(1) }

	r.Enqueue(context.Background(), "u1_u2")
	r.Enqueue(context.Background(), "u1_u2")
	close(release)
	r.Wait()

	gw.AssertNumberOfCalls(t, "MarkRead", 2)
	assert.Equal(t, int32(1), gaveUp.Load())
}

func TestReadReconciler_StopsOnCancel(t *testing.T) {
	gw := new(MockGateway)
	var called atomic.Bool
	gw.On("MarkRead", mock.Anything, "u1_u2").
		Run(func(mock.Arguments) { called.Store(true) }).
		Return(errors.New("offline"))

	slow := gateway.RetryPolicy{Attempts: 5, BaseDelay: time.Hour}
	r := gateway.NewReadReconciler(gw, slow, zerolog.Nop())
	var got error
	r.OnGiveUp = func(_ string, err error) { got = err }

	ctx, cancel := context.WithCancel(context.Background())
	r.Enqueue(ctx, "u1_u2")
	assert.Eventually(t, called.Load, time.Second, time.Millisecond)
	cancel()
	r.Wait()

	assert.ErrorIs(t, got, context.Canceled)
	assert.ErrorIs(t, got, gateway.ErrReadSyncFailed)
}
