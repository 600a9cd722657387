package chanpool

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// streamState is the lifecycle of an affinityStream. Transitions are
// one-way: created -> started -> firstCaptured -> done, with done
// reachable from any state.
type streamState int

const (
	streamCreated streamState = iota
	streamStarted
	streamFirstCaptured
	streamDone
)

// affinityStream observes one streaming call without altering what the
// caller sees. The underlying stream is not created until the first
// SendMsg so the affinity key can be computed from the request and drive
// channel selection. The first received response is inspected for a bind
// key; the terminal status releases the channel reservation exactly once.
type affinityStream struct {
	pool   *Pool
	ctx    context.Context
	desc   *grpc.StreamDesc
	method string
	opts   []grpc.CallOption

	mu       sync.Mutex
	state    streamState
	cctx     *callContext
	stream   grpc.ClientStream
	startErr error

	stopCancelWatch func() bool
}

var _ grpc.ClientStream = (*affinityStream)(nil)

// ensureStarted selects a channel and creates the underlying stream if
// that has not happened yet. first is the request message when the
// transition is driven by SendMsg, nil otherwise.
func (s *affinityStream) ensureStarted(first any) (grpc.ClientStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != streamCreated {
		if s.stream == nil && s.startErr == nil {
			// Finished (cancelled) before the first message was sent.
			if err := status.FromContextError(context.Cause(s.ctx)).Err(); err != nil {
				return nil, err
			}
			return nil, status.Error(codes.Canceled, "chanpool: stream finished before start")
		}
		return s.stream, s.startErr
	}

	cctx, err := s.pool.preProcess(s.method, first)
	if err != nil {
		s.state = streamDone
		s.startErr = err
		if s.stopCancelWatch != nil {
			s.stopCancelWatch()
		}
		return nil, err
	}

	transport, err := cctx.channel.Conn().NewStream(s.ctx, s.desc, s.method, s.opts...)
	if err != nil {
		s.state = streamDone
		s.startErr = err
		s.pool.postProcess(cctx, err)
		if s.stopCancelWatch != nil {
			s.stopCancelWatch()
		}
		return nil, err
	}

	s.cctx = cctx
	s.stream = transport
	s.state = streamStarted
	return transport, nil
}

// finish records the terminal status and runs post-processing. Idempotent;
// the first caller wins.
func (s *affinityStream) finish(err error) {
	s.mu.Lock()
	if s.state == streamDone {
		s.mu.Unlock()
		return
	}
	s.state = streamDone
	cctx := s.cctx
	stop := s.stopCancelWatch
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if cctx != nil {
		s.pool.postProcess(cctx, err)
	}
}

func (s *affinityStream) SendMsg(m any) error {
	stream, err := s.ensureStarted(m)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(m); err != nil {
		// io.EOF tells the caller to read the transport status via RecvMsg;
		// anything else is the terminal status itself.
		if !errors.Is(err, io.EOF) {
			s.finish(err)
		}
		return err
	}
	return nil
}

func (s *affinityStream) RecvMsg(m any) error {
	stream, err := s.ensureStarted(nil)
	if err != nil {
		return err
	}

	err = stream.RecvMsg(m)
	if err == nil {
		first := false
		s.mu.Lock()
		if s.state == streamStarted {
			s.state = streamFirstCaptured
			first = true
		}
		cctx := s.cctx
		s.mu.Unlock()
		if first {
			s.pool.captureFirstResponse(cctx, m)
		}
		if !s.desc.ServerStreams {
			// Single-response call: this receive is the terminal event.
			s.finish(nil)
		}
		return nil
	}

	if errors.Is(err, io.EOF) {
		s.finish(nil)
	} else {
		s.finish(err)
	}
	return err
}

func (s *affinityStream) Header() (metadata.MD, error) {
	stream, err := s.ensureStarted(nil)
	if err != nil {
		return nil, err
	}
	return stream.Header()
}

func (s *affinityStream) Trailer() metadata.MD {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Trailer()
}

func (s *affinityStream) CloseSend() error {
	stream, err := s.ensureStarted(nil)
	if err != nil {
		return err
	}
	return stream.CloseSend()
}

func (s *affinityStream) Context() context.Context {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		return stream.Context()
	}
	return s.ctx
}
