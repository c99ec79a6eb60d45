package tinode

import (
	"sync"
)

// SuccessHandler consumes the result of a completed request. It may return a
// new promise to splice into the chain, nil to pass the result through, or an
// error to fail the rest of the chain.
type SuccessHandler func(msg *ServerMessage) (*PromisedReply, error)

// FailureHandler consumes a failed request. Returning a nil promise and a nil
// error marks the failure as handled: the chain continues resolved with a nil
// message. Returning an error (the same one included) keeps the chain failed.
type FailureHandler func(err error) (*PromisedReply, error)

// PromisedReply is a single-assignment future of a server response. Handlers
// attached with ThenApply/ThenCatch fire exactly once, on whichever goroutine
// completes the promise (or immediately, if it is already completed).
type PromisedReply struct {
	mu   sync.Mutex
	done chan struct{}

	resolved bool
	rejected bool
	result   *ServerMessage
	err      error

	onSuccess SuccessHandler
	onFailure FailureHandler
	next      *PromisedReply
}

// NewPromisedReply creates an incomplete promise.
func NewPromisedReply() *PromisedReply {
	return &PromisedReply{done: make(chan struct{})}
}

// NewResolvedPromise creates a promise already resolved with the given value.
func NewResolvedPromise(msg *ServerMessage) *PromisedReply {
	p := NewPromisedReply()
	p.resolved = true
	p.result = msg
	close(p.done)
	return p
}

// NewRejectedPromise creates a promise already failed with the given error.
func NewRejectedPromise(err error) *PromisedReply {
	p := NewPromisedReply()
	p.rejected = true
	p.err = err
	close(p.done)
	return p
}

func (p *PromisedReply) isDone() bool {
	return p.resolved || p.rejected
}

// Resolve completes the promise with a value. Completing a promise twice is
// a programming error reported as ErrInvalidState.
func (p *PromisedReply) Resolve(msg *ServerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isDone() {
		return ErrInvalidState
	}
	p.resolved = true
	p.result = msg
	close(p.done)
	return p.callOnceDone()
}

// Reject completes the promise with an error.
func (p *PromisedReply) Reject(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isDone() {
		return ErrInvalidState
	}
	p.rejected = true
	p.err = err
	close(p.done)
	return p.callOnceDone()
}

// callOnceDone fires the attached handler and propagates the outcome down the
// chain. Called with p.mu held, after completion.
func (p *PromisedReply) callOnceDone() error {
	if p.resolved {
		return p.handleSuccess()
	}
	return p.handleFailure()
}

func (p *PromisedReply) handleSuccess() error {
	if p.onSuccess == nil {
		if p.next != nil {
			return p.next.Resolve(p.result)
		}
		return nil
	}

	ret, err := p.onSuccess(p.result)
	if p.next == nil {
		return err
	}
	if err != nil {
		return p.next.Reject(err)
	}
	if ret != nil {
		ret.insertNextPromise(p.next)
		return nil
	}
	return p.next.Resolve(p.result)
}

func (p *PromisedReply) handleFailure() error {
	if p.onFailure == nil {
		if p.next != nil {
			return p.next.Reject(p.err)
		}
		return nil
	}

	ret, err := p.onFailure(p.err)
	if p.next == nil {
		return err
	}
	if err != nil {
		return p.next.Reject(err)
	}
	if ret != nil {
		ret.insertNextPromise(p.next)
		return nil
	}
	// Failure was swallowed by the handler, continue the chain resolved.
	return p.next.Resolve(nil)
}

// insertNextPromise splices promise into the chain right after p, pushing
// p's current continuation behind it.
func (p *PromisedReply) insertNextPromise(promise *PromisedReply) {
	p.mu.Lock()
	if p.next != nil {
		promise.insertNextPromise(p.next)
	}
	p.next = promise
	if p.isDone() {
		// Completed before the splice, deliver now.
		p.callOnceDone()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
}

// ThenApply attaches a success handler. Returns the continuation promise
// which completes after the handler (and any promise it returns) does.
func (p *PromisedReply) ThenApply(onSuccess SuccessHandler) *PromisedReply {
	return p.thenAttach(onSuccess, nil)
}

// ThenCatch attaches a failure handler.
func (p *PromisedReply) ThenCatch(onFailure FailureHandler) *PromisedReply {
	return p.thenAttach(nil, onFailure)
}

// Then attaches both a success and a failure handler at once.
func (p *PromisedReply) Then(onSuccess SuccessHandler, onFailure FailureHandler) *PromisedReply {
	return p.thenAttach(onSuccess, onFailure)
}

// ThenFinally attaches a handler called on either outcome. Terminates the
// chain.
func (p *PromisedReply) ThenFinally(onFinally func()) {
	p.thenAttach(
		func(msg *ServerMessage) (*PromisedReply, error) {
			onFinally()
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			onFinally()
			return nil, err
		})
}

func (p *PromisedReply) thenAttach(onSuccess SuccessHandler, onFailure FailureHandler) *PromisedReply {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next != nil {
		// Each promise holds a single continuation.
		panic("tinode: promise chain already has a continuation")
	}

	next := NewPromisedReply()
	p.onSuccess = onSuccess
	p.onFailure = onFailure
	p.next = next
	if p.isDone() {
		p.callOnceDone()
	}
	return next
}

// WaitResult blocks until the promise is completed and returns its outcome.
func (p *PromisedReply) WaitResult() (*ServerMessage, error) {
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejected {
		return nil, p.err
	}
	return p.result, nil
}
