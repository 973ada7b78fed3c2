package executor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBusy is returned by Submit when the bounded queue is full. Callers
// surface it as explicit backpressure instead of queueing without bound.
var ErrBusy = errors.New("executor: run queue is full")

type execFunc func(ctx context.Context, req Request) ExecutionResult

type poolTask struct {
	ctx      context.Context
	req      Request
	resultCh chan<- ExecutionResult
}

// Pool bounds true parallelism for the whole process: a fixed number of
// worker goroutines sized to the host, fed by a bounded queue. It is the
// only component that runs sandboxed processes concurrently.
type Pool struct {
	exec        execFunc
	parallelism int

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	workCh    chan poolTask
	done      chan struct{}
	log       *zap.Logger
}

func NewPool(e *Executor, parallelism, queueDepth int, log *zap.Logger) *Pool {
	return newPool(e.Execute, parallelism, queueDepth, log)
}

func newPool(fn execFunc, parallelism, queueDepth int, log *zap.Logger) *Pool {
	if parallelism < 1 {
		parallelism = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Pool{
		exec:        fn,
		parallelism: parallelism,
		workCh:      make(chan poolTask, queueDepth),
		done:        make(chan struct{}),
		log:         log,
	}
}

func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(p.parallelism)
		for i := 0; i < p.parallelism; i++ {
			go p.loop()
		}
		p.log.Info("executor pool started",
			zap.Int("parallelism", p.parallelism),
			zap.Int("queue_depth", cap(p.workCh)))
	})
}

// Submit places one run on the queue and returns a channel that yields its
// result. A saturated queue rejects immediately with ErrBusy.
func (p *Pool) Submit(ctx context.Context, req Request) (<-chan ExecutionResult, error) {
	ch := make(chan ExecutionResult, 1)
	select {
	case p.workCh <- poolTask{ctx: ctx, req: req, resultCh: ch}:
		metricQueueDepth.Inc()
		return ch, nil
	default:
		metricBusyTotal.Inc()
		return nil, ErrBusy
	}
}

// Saturated reports whether a Submit right now would be rejected with
// ErrBusy. Callers use it to refuse work before creating durable state.
func (p *Pool) Saturated() bool {
	return len(p.workCh) == cap(p.workCh)
}

// Shutdown stops accepting queued work and waits for in-flight runs.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.workCh:
			metricQueueDepth.Dec()
			p.runTask(t)
		case <-p.done:
			return
		}
	}
}

func (p *Pool) runTask(t poolTask) {
	if err := t.ctx.Err(); err != nil {
		t.resultCh <- fault("cancelled before start: " + err.Error())
		return
	}
	metricRunning.Inc()
	res := p.exec(t.ctx, t.req)
	metricRunning.Dec()
	metricRunsTotal.WithLabelValues(string(res.Status)).Inc()
	t.resultCh <- res
}
