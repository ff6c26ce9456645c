package arbiter

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/leeineian/jill/sys"
	"golang.org/x/time/rate"
)

var (
	ErrQueueFull = errors.New("command queue full")
	ErrClosed    = errors.New("command queue closed")
)

// Op is one mutating operation run on a tenant's serial worker. The context
// is cancelled when the worker shuts down.
type Op func(ctx context.Context) error

type job struct {
	name string
	op   Op
	done chan error
}

// Serial is layer three: a bounded queue drained by exactly one worker
// goroutine. Priority jobs run before normal jobs but keep FIFO order among
// themselves.
type Serial struct {
	name string
	cfg  sys.QueueTimings

	slots chan struct{}
	wake  chan struct{}

	mu       sync.Mutex
	priority []*job
	normal   []*job
	closed   bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	nearFull  rate.Sometimes
}

// NewSerial starts the worker. name labels log lines.
func NewSerial(name string, cfg sys.QueueTimings) *Serial {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Serial{
		name:     name,
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.Size),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		nearFull: rate.Sometimes{Interval: 10 * time.Second},
	}
	go s.loop()
	return s
}

// Enqueue waits for a free slot up to the enqueue timeout, doubled (by
// PriorityTimeoutFactor) for priority jobs. The returned channel receives the
// op's result exactly once.
func (s *Serial) Enqueue(ctx context.Context, name string, op Op, priority bool) (<-chan error, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	timeout := s.cfg.EnqueueTimeout
	if priority && s.cfg.PriorityTimeoutFactor > 0 {
		timeout = time.Duration(float64(timeout) * s.cfg.PriorityTimeoutFactor)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.slots <- struct{}{}:
	case <-timer.C:
		sys.LogWarn("[%s] Command queue full, dropping %s", s.name, name)
		return nil, ErrQueueFull
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrClosed
	}

	if used := len(s.slots); s.cfg.WarnRatio > 0 && float64(used) >= s.cfg.WarnRatio*float64(cap(s.slots)) {
		s.nearFull.Do(func() {
			sys.LogWarn("[%s] Command queue nearly full (%d/%d)", s.name, used, cap(s.slots))
		})
	}

	j := &job{name: name, op: op, done: make(chan error, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.slots
		return nil, ErrClosed
	}
	if priority {
		s.priority = append(s.priority, j)
	} else {
		s.normal = append(s.normal, j)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return j.done, nil
}

// Len returns the number of queued jobs, excluding the one running.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.priority) + len(s.normal)
}

// Close stops the worker and fails every pending job with ErrClosed. It waits
// for a running job to return, so it must not be called from inside an Op.
func (s *Serial) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := append(s.priority, s.normal...)
		s.priority, s.normal = nil, nil
		s.mu.Unlock()

		s.cancel()
		for _, j := range pending {
			j.done <- ErrClosed
		}
		<-s.done
	})
}

func (s *Serial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for {
			j := s.pop()
			if j == nil {
				break
			}
			j.done <- s.run(j)
		}
	}
}

func (s *Serial) pop() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var j *job
	switch {
	case len(s.priority) > 0:
		j, s.priority = s.priority[0], s.priority[1:]
	case len(s.normal) > 0:
		j, s.normal = s.normal[0], s.normal[1:]
	default:
		return nil
	}
	<-s.slots
	return j
}

func (s *Serial) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogError("[%s] Panic in %s: %v\n%s", s.name, j.name, r, debug.Stack())
			err = fmt.Errorf("%s panicked: %v", j.name, r)
		}
	}()

	start := time.Now()
	err = j.op(s.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		sys.LogDebug("[%s] %s failed after %s: %v", s.name, j.name, time.Since(start), err)
	}
	return err
}
