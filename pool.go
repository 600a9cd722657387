package chanpool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/chanpool-io/chanpool/internal/config"
	"github.com/chanpool-io/chanpool/internal/logging"
	"github.com/chanpool-io/chanpool/internal/metrics"
)

// Common errors.
var (
	ErrPoolClosed = errors.New("chanpool: pool is closed")
	ErrNoTarget   = errors.New("chanpool: target is required")
	ErrBadMaxSize = errors.New("chanpool: maxSize must be positive")
)

// DialFunc opens one transport channel to the target.
type DialFunc func(target string) (grpc.ClientConnInterface, error)

// Options configures a Pool.
type Options struct {
	// Target is the gRPC target all pooled channels dial.
	Target string

	// MaxSize caps the number of channels the pool opens.
	MaxSize int

	// DialTimeout bounds connection establishment on pooled channels.
	DialTimeout time.Duration

	// DialOptions are passed to grpc.NewClient for every pooled channel.
	DialOptions []grpc.DialOption

	// DialFunc overrides how channels are opened. Mostly for tests.
	DialFunc DialFunc

	// Policies are the per-method affinity policies.
	Policies []MethodPolicy

	// Logger overrides the global logger.
	Logger *logging.Logger

	// Metrics overrides the default registry's instruments. Mostly for
	// tests.
	Metrics *metrics.PoolMetrics
}

// Pool is a set of channels to one logical server plus the affinity
// binding table that pins keys to channels. It implements
// grpc.ClientConnInterface, so generated stubs dispatch through it
// directly.
type Pool struct {
	id       string
	target   string
	maxSize  int
	dial     DialFunc
	policies map[string]*MethodPolicy
	log      *logging.Logger
	met      *metrics.PoolMetrics

	// resolveDiag throttles key-resolution failure logs; a misconfigured
	// path would otherwise report at call rate.
	resolveDiag *logging.Throttle

	mu       sync.Mutex
	channels []*Channel
	bindings map[string]*Channel
	closed   bool
}

// New creates a Pool. No channels are opened until the first call needs
// one.
func New(opts Options) (*Pool, error) {
	if opts.Target == "" {
		return nil, ErrNoTarget
	}
	if opts.MaxSize <= 0 {
		return nil, ErrBadMaxSize
	}

	log := opts.Logger
	if log == nil {
		log = logging.Global()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.Default()
	}
	dial := opts.DialFunc
	if dial == nil {
		dial = grpcDialFunc(opts)
	}

	p := &Pool{
		id:          uuid.NewString(),
		target:      opts.Target,
		maxSize:     opts.MaxSize,
		dial:        dial,
		policies:    make(map[string]*MethodPolicy, len(opts.Policies)),
		met:         met,
		resolveDiag: logging.NewThrottle(10*time.Second, 5),
		bindings:    make(map[string]*Channel),
	}
	p.log = log.With(map[string]any{"pool": p.id, "target": p.target})

	for i := range opts.Policies {
		pol := opts.Policies[i]
		pol.Method = config.NormalizeMethod(pol.Method)
		p.policies[pol.Method] = &pol
	}
	return p, nil
}

func grpcDialFunc(opts Options) DialFunc {
	return func(target string) (grpc.ClientConnInterface, error) {
		dialOpts := append([]grpc.DialOption{}, opts.DialOptions...)
		if opts.DialTimeout > 0 {
			dialOpts = append(dialOpts, grpc.WithConnectParams(grpc.ConnectParams{
				Backoff:           backoff.DefaultConfig,
				MinConnectTimeout: opts.DialTimeout,
			}))
		}
		return grpc.NewClient(target, dialOpts...)
	}
}

// ID returns the pool's unique id, used as the metrics label.
func (p *Pool) ID() string { return p.id }

// Target returns the gRPC target the pool dials.
func (p *Pool) Target() string { return p.target }

// PolicyFor returns the affinity policy for a method, or nil when the
// method does not participate in affinity. The policy map is immutable
// after New.
func (p *Pool) PolicyFor(method string) *MethodPolicy {
	return p.policies[config.NormalizeMethod(method)]
}

// GetChannel returns the channel bound to key when a binding exists.
// Otherwise it returns the least-loaded channel, opening a new one when
// every existing channel has calls in flight and the pool has room to
// grow.
func (p *Pool) GetChannel(key string) (*Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if key != "" {
		if ch, ok := p.bindings[key]; ok {
			return ch, nil
		}
	}

	var best *Channel
	for _, ch := range p.channels {
		if best == nil || ch.active.Load() < best.active.Load() {
			best = ch
		}
	}
	if best != nil && (best.active.Load() == 0 || len(p.channels) >= p.maxSize) {
		return best, nil
	}

	conn, err := p.dial(p.target)
	if err != nil {
		if best != nil {
			// Carry the call on an existing channel rather than failing it.
			p.log.Warnf("dial failed, reusing least-loaded channel", map[string]any{
				"channel": best.id,
				"error":   err.Error(),
			})
			return best, nil
		}
		return nil, fmt.Errorf("chanpool: dial %s: %w", p.target, err)
	}
	ch := &Channel{id: len(p.channels), conn: conn}
	p.channels = append(p.channels, ch)
	p.met.OpenChannels.WithLabelValues(p.id).Set(float64(len(p.channels)))
	p.log.Debugf("channel opened", map[string]any{"channel": ch.id})
	return ch, nil
}

// Bind records key -> ch in the binding table, overwriting any previous
// binding for the key (last writer wins).
func (p *Pool) Bind(ch *Channel, key string) {
	if ch == nil || key == "" {
		return
	}
	p.mu.Lock()
	prev, had := p.bindings[key]
	p.bindings[key] = ch
	n := len(p.bindings)
	p.mu.Unlock()

	p.met.BindsTotal.WithLabelValues(p.id).Inc()
	p.met.Bindings.WithLabelValues(p.id).Set(float64(n))
	if had && prev != ch {
		p.log.Debugf("binding overwritten", map[string]any{
			"key": key, "from": prev.id, "to": ch.id,
		})
	}
}

// Unbind removes the binding for key, if any.
func (p *Pool) Unbind(key string) {
	if key == "" {
		return
	}
	p.mu.Lock()
	_, had := p.bindings[key]
	delete(p.bindings, key)
	n := len(p.bindings)
	p.mu.Unlock()

	if had {
		p.met.UnbindsTotal.WithLabelValues(p.id).Inc()
		p.met.Bindings.WithLabelValues(p.id).Set(float64(n))
	}
}

// BoundChannel returns the channel bound to key, if any.
func (p *Pool) BoundChannel(key string) (*Channel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.bindings[key]
	return ch, ok
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Channels      int
	Bindings      int
	InFlightCalls int64
}

// Stats returns a snapshot of the pool's channels, bindings, and calls in
// flight.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Channels: len(p.channels), Bindings: len(p.bindings)}
	for _, ch := range p.channels {
		s.InFlightCalls += ch.active.Load()
	}
	return s
}

// Close tears down every channel. In-flight calls fail the way their
// transport fails them; subsequent calls fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	channels := p.channels
	p.channels = nil
	p.bindings = make(map[string]*Channel)
	p.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		if err := ch.close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.met.OpenChannels.WithLabelValues(p.id).Set(0)
	p.met.Bindings.WithLabelValues(p.id).Set(0)
	return errors.Join(errs...)
}

func (p *Pool) incrementActive(ch *Channel) {
	ch.active.Add(1)
	p.met.InFlightCalls.WithLabelValues(p.id).Inc()
}

func (p *Pool) decrementActive(ch *Channel) {
	ch.active.Add(-1)
	p.met.InFlightCalls.WithLabelValues(p.id).Dec()
}
