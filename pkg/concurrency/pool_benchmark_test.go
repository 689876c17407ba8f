package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"

	"portfolio_exporter/internal/core"
)

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, fields ...interface{})               {}
func (l *noopLogger) Info(msg string, fields ...interface{})                {}
func (l *noopLogger) Warn(msg string, fields ...interface{})                {}
func (l *noopLogger) Error(msg string, fields ...interface{})               {}
func (l *noopLogger) Fatal(msg string, fields ...interface{})               {}
func (l *noopLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *noopLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "BenchmarkPool",
		MaxWorkers:  10,
		MaxCapacity: 1000,
		NonBlocking: false,
	}, &noopLogger{})
	defer pool.Stop()

	b.ResetTimer()
	var counter int64
	for i := 0; i < b.N; i++ {
		_ = pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
}

func BenchmarkWorkerPool_Group(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "BenchmarkPoolGroup",
		MaxWorkers:  10,
		MaxCapacity: 1000,
	}, &noopLogger{})
	defer pool.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		group := pool.Group()
		for j := 0; j < 8; j++ {
			group.Submit(func() {})
		}
		group.Wait()
	}
}

func BenchmarkGoroutine_Spawn(b *testing.B) {
	var wg sync.WaitGroup
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		go func() {
			wg.Done()
		}()
	}
	wg.Wait()
}
