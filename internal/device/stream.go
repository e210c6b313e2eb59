package device

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/parallel"
)

// task is one entry of a stream queue: a kernel, or a marker whose done
// channel is closed once everything before it has run.
type task struct {
	kernel Kernel
	done   chan struct{}
}

// CPUStream executes kernels on a dedicated goroutine, in submission order.
// Each kernel fans its grid out with the parallel package.
type CPUStream struct {
	cfg   parallel.Config
	queue chan task

	sendMu sync.Mutex // guards closed and sends on queue
	closed bool

	mu  sync.Mutex
	err error // sticky kernel failure

	wg sync.WaitGroup
}

// queueDepth bounds the number of kernels in flight before Submit blocks.
const queueDepth = 256

// NewCPUStream starts a stream worker using cfg for kernel grids.
func NewCPUStream(cfg parallel.Config) *CPUStream {
	s := &CPUStream{
		cfg:   cfg,
		queue: make(chan task, queueDepth),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Device implements Stream.
func (s *CPUStream) Device() Kind {
	return CPU
}

func (s *CPUStream) loop() {
	defer s.wg.Done()
	for t := range s.queue {
		if t.done != nil {
			close(t.done)
			continue
		}
		if s.stickyErr() != nil {
			continue
		}
		if err := t.kernel.Run(s.cfg); err != nil {
			klog.Errorf("stream kernel %q failed: %v", t.kernel.Name(), err)
			s.mu.Lock()
			if s.err == nil {
				s.err = errors.Wrapf(ErrLaunch, "kernel %q: %v", t.kernel.Name(), err)
			}
			s.mu.Unlock()
		}
	}
}

func (s *CPUStream) stickyErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Submit implements Stream.
func (s *CPUStream) Submit(k Kernel) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.stickyErr(); err != nil {
		return err
	}
	s.queue <- task{kernel: k}
	return nil
}

// Synchronize implements Stream.
func (s *CPUStream) Synchronize() error {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return s.stickyErr()
	}
	done := make(chan struct{})
	s.queue <- task{done: done}
	s.sendMu.Unlock()

	<-done
	return s.stickyErr()
}

// Close implements Stream. Pending work runs before Close returns.
func (s *CPUStream) Close() error {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.sendMu.Unlock()

	s.wg.Wait()
	return s.stickyErr()
}
