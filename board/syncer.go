package board

import (
	"context"
	"net/http"
	"time"

	"github.com/123123eeqweq/omocrm/client"
	"github.com/123123eeqweq/omocrm/domain"
)

// saveJob is one queued save. A job without a board is a flush marker that
// completes once every job queued before it has run.
type saveJob struct {
	board *domain.Board
	done  chan error
}

func (vm *ViewModel) enqueueLocked(job saveJob) {
	vm.queue = append(vm.queue, job)
}

func (vm *ViewModel) signal() {
	select {
	case vm.wake <- struct{}{}:
	default:
	}
}

func (vm *ViewModel) signalFlush() {
	select {
	case vm.flushed <- struct{}{}:
	default:
	}
}

func (vm *ViewModel) run() {
	defer vm.wg.Done()
	for {
		flush := false
		select {
		case <-vm.wake:
		case <-vm.flushed:
			flush = true
		case <-vm.quit:
			vm.drain()
			return
		}
		if vm.opts.Debounce > 0 && !flush {
			vm.settle()
		}
		vm.drain()
	}
}

// settle waits until no mutation arrived for the debounce window, a flush
// is requested or the view-model closes.
func (vm *ViewModel) settle() {
	timer := time.NewTimer(vm.opts.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-vm.wake:
			timer.Reset(vm.opts.Debounce)
		case <-timer.C:
			return
		case <-vm.flushed:
			return
		case <-vm.quit:
			return
		}
	}
}

// drain runs queued jobs in order until the queue is empty.
func (vm *ViewModel) drain() {
	for {
		batch := vm.take()
		if len(batch) == 0 {
			return
		}
		var snapshot *domain.Board
		for _, j := range batch {
			if j.board != nil {
				snapshot = j.board
			}
		}
		var err error
		if snapshot != nil {
			err = vm.save(*snapshot)
		} else {
			vm.mu.Lock()
			err = vm.lastErr
			vm.mu.Unlock()
		}
		for _, j := range batch {
			if j.done != nil {
				j.done <- err
			}
		}
	}
}

// take pops the next batch. Without debounce a batch is one save plus the
// markers queued right after it; with debounce everything queued is
// coalesced into the latest snapshot.
func (vm *ViewModel) take() []saveJob {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.queue) == 0 {
		return nil
	}
	if vm.opts.Debounce > 0 {
		batch := vm.queue
		vm.queue = nil
		return batch
	}
	n := 1
	if vm.queue[0].board != nil {
		for n < len(vm.queue) && vm.queue[n].board == nil {
			n++
		}
	}
	batch := append([]saveJob(nil), vm.queue[:n]...)
	vm.queue = vm.queue[n:]
	return batch
}

func (vm *ViewModel) save(b domain.Board) error {
	vm.mu.Lock()
	if vm.unauthed {
		vm.mu.Unlock()
		return errUnauthorized
	}
	vm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), vm.opts.SaveTimeout)
	err := vm.api.SaveBoard(ctx, vm.projectID, b)
	cancel()

	vm.mu.Lock()
	vm.lastErr = err
	vm.mu.Unlock()

	switch {
	case err == nil:
		vm.mu.Lock()
		vm.saveErr = ""
		vm.mu.Unlock()
	case client.IsUnauthorized(err):
		vm.mu.Lock()
		vm.state = StateUnauthorized
		vm.mu.Unlock()
		vm.unauthorized()
	default:
		vm.logger.WithError(err).WithField("project", vm.projectID).Warn("save board")
		vm.mu.Lock()
		vm.saveErr = MsgSaveFailed
		vm.mu.Unlock()
	}
	return err
}

var errUnauthorized = &client.APIError{Status: http.StatusUnauthorized, Message: "Unauthorized"}

// unauthorized invalidates the session once and notifies the owner.
func (vm *ViewModel) unauthorized() {
	vm.mu.Lock()
	if vm.unauthed {
		vm.mu.Unlock()
		return
	}
	vm.unauthed = true
	vm.mu.Unlock()
	if vm.opts.Gate != nil {
		vm.opts.Gate.Invalidate()
	}
	if vm.opts.OnUnauthorized != nil {
		vm.opts.OnUnauthorized()
	}
}

// wait enqueues job and blocks until the syncer completes it.
func (vm *ViewModel) wait(ctx context.Context, job saveJob) error {
	job.done = make(chan error, 1)
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return ErrClosed
	}
	vm.enqueueLocked(job)
	vm.mu.Unlock()
	vm.signal()
	vm.signalFlush()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every mutation made so far has been saved or has
// failed. It returns the error of the most recent save attempt.
func (vm *ViewModel) Flush(ctx context.Context) error {
	return vm.wait(ctx, saveJob{})
}

// RetrySave clears the save error and re-issues the current board as one
// full replacement.
func (vm *ViewModel) RetrySave(ctx context.Context) error {
	vm.mu.Lock()
	if vm.state != StateReady {
		vm.mu.Unlock()
		return ErrNotLoading
	}
	vm.saveErr = ""
	snapshot := vm.snapshotLocked()
	vm.mu.Unlock()
	return vm.wait(ctx, saveJob{board: snapshot})
}

// Close flushes pending saves and stops the syncer. Later mutations are
// ignored.
func (vm *ViewModel) Close(ctx context.Context) error {
	err := vm.Flush(ctx)
	if err == ErrClosed {
		err = nil
	}
	vm.once.Do(func() {
		vm.mu.Lock()
		vm.closed = true
		vm.mu.Unlock()
		close(vm.quit)
	})
	vm.wg.Wait()
	return err
}
