package threadpool

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordsJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)

	pool := New(2, WithMetrics(metrics))
	for i := 0; i < 3; i++ {
		_ = pool.Execute(func() { time.Sleep(time.Millisecond) })
	}
	_ = pool.Execute(func() { panic("失敗") })

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := testutil.ToFloat64(metrics.JobsSubmitted); got != 4 {
		t.Errorf("Expected 4 submitted jobs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.JobsCompleted); got != 3 {
		t.Errorf("Expected 3 completed jobs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.JobsFailed); got != 1 {
		t.Errorf("Expected 1 failed job, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.BusyWorkers); got != 0 {
		t.Errorf("Expected 0 busy workers, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 0 {
		t.Errorf("Expected empty queue, got %v", got)
	}

	count, err := testutil.GatherAndCount(reg, "test_threadpool_job_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 duration series, got %d", count)
	}
}

func TestMetrics_QueueDepthTracksPendingJobs(t *testing.T) {
	metrics := NewMetrics("test", prometheus.NewRegistry())
	pool := New(1, WithMetrics(metrics))

	started := make(chan struct{})
	release := make(chan struct{})
	_ = pool.Execute(func() {
		close(started)
		<-release
	})
	<-started

	for i := 0; i < 5; i++ {
		_ = pool.Execute(func() {})
	}
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 5 {
		t.Errorf("Expected queue depth 5, got %v", got)
	}

	// 終了シグナルはキューの深さに数えない
	done := make(chan error, 1)
	go func() { done <- pool.Close() }()
	for pool.Pending() != 6 {
		time.Sleep(time.Millisecond)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 5 {
		t.Errorf("Expected queue depth 5 after shutdown started, got %v", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 0 {
		t.Errorf("Expected empty queue, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *Metrics

	// nil のメトリクスでも panic しない
	metrics.submitted()
	metrics.setQueueDepth(3)
	metrics.jobStarted()
	metrics.jobFinished(time.Millisecond, true)
}
