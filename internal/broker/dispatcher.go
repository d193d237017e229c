package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// pendingRequest is one outstanding correlated request's completion slot
// (§4.7 bridging pattern: "every outbound request allocates a correlation
// id and a completion slot; the inbound dispatcher routes responses by
// correlation id and resolves the slot").
type pendingRequest struct {
	done chan struct{}
	resp any
	err  error
}

// Dispatcher routes asynchronous completions from the vendor SDK's
// event-loop thread back to the waiting caller's goroutine, by correlation
// id. It is the seam between the callback-style transport and this
// package's plain request/response methods.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{pending: make(map[string]*pendingRequest)}
}

// Register allocates a correlation id and completion slot for a new
// outbound request.
func (d *Dispatcher) Register() (string, *pendingRequest) {
	id := uuid.NewString()
	req := &pendingRequest{done: make(chan struct{})}
	d.mu.Lock()
	d.pending[id] = req
	d.mu.Unlock()
	return id, req
}

// Resolve completes the pending request identified by id with resp, as
// called from the SDK's event-loop thread when the matching response
// arrives.
func (d *Dispatcher) Resolve(id string, resp any, err error) {
	d.mu.Lock()
	req, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	req.resp, req.err = resp, err
	close(req.done)
}

// FailAll resolves every pending request with err — used on transport loss
// (§4.7 reconnection: "pending requests fail with ConnectionLost").
func (d *Dispatcher) FailAll(err error) {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]*pendingRequest)
	d.mu.Unlock()
	for _, req := range pending {
		req.err = err
		close(req.done)
	}
}

// Wait blocks until id's completion slot resolves or ctx is cancelled. It
// applies no timeout of its own: a deadline on ctx is the only time bound.
func Wait(ctx context.Context, req *pendingRequest) (any, error) {
	select {
	case <-req.done:
		return req.resp, req.err
	case <-ctx.Done():
		return nil, fmt.Errorf("request cancelled: %w: %w", ctx.Err(), types.ErrRequestTimeout)
	}
}
