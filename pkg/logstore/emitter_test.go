package logstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/logstore"
)

type captureSink[T any] struct {
	mu    sync.Mutex
	bulks [][]T
	err   error
}

func (s *captureSink[T]) Store(ctx context.Context, bulk []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.bulks = append(s.bulks, bulk)
	return nil
}

func (s *captureSink[T]) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bulks {
		n += len(b)
	}
	return n
}

func (s *captureSink[T]) bulkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bulks)
}

func TestEmitterFlushesOnBulkSize(t *testing.T) {
	sink := &captureSink[int]{}
	e := logstore.NewEmitter[int](sink, logstore.EmitterConfig{
		MaxFrequency: time.Hour,
		MaxBulkSize:  3,
	}, nil)
	defer e.Close()

	e.Emit(1)
	e.Emit(2)
	e.Emit(3)

	require.Eventually(t, func() bool { return sink.total() == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, sink.bulkCount())
}

func TestEmitterFlushesOnInterval(t *testing.T) {
	sink := &captureSink[int]{}
	e := logstore.NewEmitter[int](sink, logstore.EmitterConfig{
		MaxFrequency: 20 * time.Millisecond,
		MaxBulkSize:  100,
	}, nil)
	defer e.Close()

	e.Emit(1)
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEmitterCloseFlushesRemainder(t *testing.T) {
	sink := &captureSink[int]{}
	e := logstore.NewEmitter[int](sink, logstore.EmitterConfig{
		MaxFrequency: time.Hour,
		MaxBulkSize:  100,
	}, nil)

	e.Emit(1)
	e.Emit(2)
	e.Close()

	require.Equal(t, 2, sink.total())
}

func TestEmitterDropsBulkOnSinkError(t *testing.T) {
	sink := &captureSink[int]{err: errors.New("sink down")}
	e := logstore.NewEmitter[int](sink, logstore.EmitterConfig{
		MaxFrequency: time.Hour,
		MaxBulkSize:  1,
	}, nil)

	e.Emit(1)
	e.Close()
	require.Equal(t, 0, sink.total())

	// The emitter keeps running after a failed flush.
	sink2 := &captureSink[int]{}
	e2 := logstore.NewEmitter[int](sink2, logstore.EmitterConfig{
		MaxFrequency: time.Hour,
		MaxBulkSize:  1,
	}, nil)
	e2.Emit(1)
	require.Eventually(t, func() bool { return sink2.total() == 1 }, time.Second, 5*time.Millisecond)
	e2.Close()
}
