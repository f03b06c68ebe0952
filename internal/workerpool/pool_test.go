package workerpool

import (
	"sync/atomic"
	"testing"
)

func TestExecuteAllRunsEveryTask(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var ran atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { ran.Add(1) }
	}
	p.ExecuteAll(work)

	if got := ran.Load(); got != 100 {
		t.Fatalf("ran = %d tasks, want 100", got)
	}
}

func TestExecuteAllSmallBatchRunsInline(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	order := make([]int, 0, 2)
	p.ExecuteAll([]func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	})

	// Two tasks stay on the calling goroutine, so appending without a
	// lock above is safe and ordering is preserved.
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestExecuteAllEmptyBatch(t *testing.T) {
	p := NewWorkerPool(2)
	defer p.Close()
	p.ExecuteAll(nil)
}

func TestDefaultSizeIsGOMAXPROCS(t *testing.T) {
	p := NewWorkerPool(0)
	defer p.Close()
	if p.Workers() < 1 {
		t.Fatalf("Workers = %d, want >= 1", p.Workers())
	}
}

func TestExecuteAllAfterCloseStillCompletes(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()

	var ran atomic.Int64
	work := make([]func(), 10)
	for i := range work {
		work[i] = func() { ran.Add(1) }
	}
	p.ExecuteAll(work)

	if got := ran.Load(); got != 10 {
		t.Fatalf("ran = %d tasks after Close, want 10", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()
	p.Close()
}
