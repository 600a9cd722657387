package chanpool

import (
	"sync"

	"github.com/google/uuid"
)

// callContext tracks one call's affinity state from channel selection
// through its terminal status. Exactly one exists per call; it is never
// shared across calls.
type callContext struct {
	id       string
	method   string
	policy   *MethodPolicy
	boundKey string
	channel  *Channel

	mu      sync.Mutex
	respKey string

	released sync.Once
}

func (c *callContext) setResponseKey(key string) {
	c.mu.Lock()
	c.respKey = key
	c.mu.Unlock()
}

func (c *callContext) responseKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.respKey
}

// preProcess runs before a call is dispatched: it resolves the method's
// affinity policy, computes the bound key for bound/unbind methods from
// the request, selects a channel, and reserves capacity on it. A key
// resolution failure downgrades to "no bound key"; the call proceeds on
// whatever channel default selection picks.
func (p *Pool) preProcess(method string, req any) (*callContext, error) {
	cctx := &callContext{
		id:     uuid.NewString(),
		method: method,
		policy: p.PolicyFor(method),
	}

	if cctx.policy != nil && req != nil {
		switch cctx.policy.Command {
		case CommandBound, CommandUnbind:
			key, err := cctx.policy.KeyPath.Resolve(req)
			if err != nil {
				p.reportResolveFailure(cctx.id, method, "request", err)
			} else {
				cctx.boundKey = key
			}
		}
	}

	ch, err := p.GetChannel(cctx.boundKey)
	if err != nil {
		return nil, err
	}
	cctx.channel = ch
	p.incrementActive(ch)
	return cctx, nil
}

// captureFirstResponse extracts the affinity key from the first response
// message of a bind method. The key is extracted immediately rather than
// retaining the message: the receive buffer belongs to the caller and may
// be reused.
func (p *Pool) captureFirstResponse(cctx *callContext, msg any) {
	if cctx.policy == nil || cctx.policy.Command != CommandBind || msg == nil {
		return
	}
	key, err := cctx.policy.KeyPath.Resolve(msg)
	if err != nil {
		p.reportResolveFailure(cctx.id, cctx.method, "response", err)
		return
	}
	cctx.setResponseKey(key)
}

// postProcess runs when the call's terminal status is observed. Binding
// table updates happen only on success; the channel reservation taken in
// preProcess is released on every outcome, exactly once.
func (p *Pool) postProcess(cctx *callContext, callErr error) {
	cctx.released.Do(func() {
		if callErr == nil && cctx.policy != nil {
			switch cctx.policy.Command {
			case CommandBind:
				if key := cctx.responseKey(); key != "" {
					p.Bind(cctx.channel, key)
				}
			case CommandUnbind:
				if cctx.boundKey != "" {
					p.Unbind(cctx.boundKey)
				}
			}
		}
		p.decrementActive(cctx.channel)

		outcome := "ok"
		if callErr != nil {
			outcome = "error"
		}
		p.met.CallsTotal.WithLabelValues(p.id, outcome).Inc()
	})
}

func (p *Pool) reportResolveFailure(callID, method, side string, err error) {
	p.met.KeyResolutionFailures.WithLabelValues(p.id, side).Inc()
	if p.resolveDiag.Allow() {
		p.log.WithCallID(callID).Warnf("affinity key resolution failed", map[string]any{
			"method": method,
			"side":   side,
			"error":  err.Error(),
		})
	}
}
