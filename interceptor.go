package chanpool

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/chanpool-io/chanpool/internal/logging"
)

var _ grpc.ClientConnInterface = (*Pool)(nil)

// Invoke dispatches a unary call on a pooled channel, applying the
// affinity protocol around it. The call's result is returned unchanged.
func (p *Pool) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	cctx, err := p.preProcess(method, args)
	if err != nil {
		return err
	}
	ctx = logging.WithCallIDCtx(ctx, cctx.id)

	err = cctx.channel.Conn().Invoke(ctx, method, args, reply, opts...)
	if err == nil {
		p.captureFirstResponse(cctx, reply)
	}
	p.postProcess(cctx, err)
	return err
}

// NewStream creates a streaming call on a pooled channel. Channel
// selection is deferred to the first SendMsg so bound/unbind methods can
// compute their key from the request message. A context cancellation
// observed before the stream's own terminal status releases the channel
// reservation, so abandoned streams do not leak capacity.
func (p *Pool) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	s := &affinityStream{
		pool:   p,
		ctx:    ctx,
		desc:   desc,
		method: method,
		opts:   opts,
	}
	s.stopCancelWatch = context.AfterFunc(ctx, func() {
		s.finish(status.FromContextError(context.Cause(ctx)).Err())
	})
	return s, nil
}

// UnaryInterceptor returns a client interceptor that routes calls through
// the pool when the conn they were issued on targets it. Calls on any
// other conn are dispatched unmodified.
func (p *Pool) UnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if !p.recognizes(cc) {
			p.met.BypassedCalls.WithLabelValues(p.id).Inc()
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		return p.Invoke(ctx, method, req, reply, opts...)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
func (p *Pool) StreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if !p.recognizes(cc) {
			p.met.BypassedCalls.WithLabelValues(p.id).Inc()
			return streamer(ctx, desc, cc, method, opts...)
		}
		return p.NewStream(ctx, desc, method, opts...)
	}
}

// recognizes reports whether calls on cc are meant for this pool.
func (p *Pool) recognizes(cc *grpc.ClientConn) bool {
	return p != nil && cc != nil && cc.Target() == p.target
}
