package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// StreamControl is the device side of a running stream.
type StreamControl interface {
	// Stop must not return while a device callback is still running.
	Stop() error
	Close() error
}

// BlockStatus carries the per-block condition flags reported by the device.
type BlockStatus struct {
	Overflow  bool
	Underflow bool
}

// StreamStats counts what a stream delivered.
type StreamStats struct {
	Blocks    uint64
	Samples   uint64
	Incidents uint64
}

// Stream is the handle returned by Capture.Start. Drivers feed it through
// Deliver and Fail; callers only Stop it and watch Done.
type Stream struct {
	ctl     StreamControl
	onBlock BlockFunc
	onError ErrorFunc

	// deliverMu is held for the whole of each delivery so that once Stop has
	// flipped stopped no callback is in flight.
	deliverMu sync.Mutex
	stopped   bool
	overflow  bool
	underflow bool

	lastBlock atomic.Int64
	blocks    atomic.Uint64
	samples   atomic.Uint64
	incidents atomic.Uint64

	stopOnce sync.Once
	quit     chan struct{}
	failOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewStream wraps ctl. onError may be nil. Neither handler may call Stop.
func NewStream(ctl StreamControl, onBlock BlockFunc, onError ErrorFunc) *Stream {
	if onError == nil {
		onError = func(error) {}
	}
	s := &Stream{
		ctl:     ctl,
		onBlock: onBlock,
		onError: onError,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.lastBlock.Store(time.Now().UnixNano())
	return s
}

// Deliver hands one block to the block handler. Overflow and underflow are
// reported once per incident: a run of flagged blocks yields a single error.
func (s *Stream) Deliver(block []float32, status BlockStatus) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.stopped {
		return
	}

	s.lastBlock.Store(time.Now().UnixNano())
	s.blocks.Add(1)
	s.samples.Add(uint64(len(block)))

	if status.Overflow && !s.overflow {
		s.report(ErrInputOverflow)
	}
	if status.Underflow && !s.underflow {
		s.report(ErrInputUnderflow)
	}
	s.overflow = status.Overflow
	s.underflow = status.Underflow

	s.onBlock(block)
}

func (s *Stream) report(err error) {
	s.incidents.Add(1)
	s.onError(&StreamError{Err: err})
}

// Fail marks the stream as closed by the device. Only the first call reports;
// calls after Stop are ignored.
func (s *Stream) Fail(err error) {
	s.deliverMu.Lock()
	stopped := s.stopped
	s.deliverMu.Unlock()
	if stopped {
		return
	}

	s.failOnce.Do(func() {
		s.incidents.Add(1)
		s.onError(&StreamError{Err: err, Fatal: true})
		close(s.done)
	})
}

// Watch fails the stream with ErrStreamClosed when no block arrives for timeout.
func (s *Stream) Watch(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.lastBlock.Store(time.Now().UnixNano())

	interval := max(timeout/4, 10*time.Millisecond)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, s.lastBlock.Load()))
				if idle > timeout {
					s.Fail(fmt.Errorf("%w: no input for %s", ErrStreamClosed, idle.Round(time.Millisecond)))
					return
				}
			}
		}
	}()
}

// Done is closed when the device has closed the stream.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stop ceases delivery and releases the device stream. No block handler call
// is running or will start once Stop returns. Only the first call does work;
// later calls return nil.
func (s *Stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)

		err = s.ctl.Stop()

		s.deliverMu.Lock()
		s.stopped = true
		s.deliverMu.Unlock()

		s.wg.Wait()

		if cerr := s.ctl.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// Stats returns delivery counters. Safe to call at any time.
func (s *Stream) Stats() StreamStats {
	return StreamStats{
		Blocks:    s.blocks.Load(),
		Samples:   s.samples.Load(),
		Incidents: s.incidents.Load(),
	}
}
