package chanpool

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"github.com/chanpool-io/chanpool/internal/logging"
	"github.com/chanpool-io/chanpool/internal/metrics"
)

// fakeConn is a scriptable grpc.ClientConnInterface.
type fakeConn struct {
	name string

	mu        sync.Mutex
	invoked   []string
	streamed  []string
	closed    bool
	invoke    func(ctx context.Context, method string, args, reply any) error
	newStream func(ctx context.Context, desc *grpc.StreamDesc, method string) (grpc.ClientStream, error)
}

func (f *fakeConn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.mu.Lock()
	f.invoked = append(f.invoked, method)
	fn := f.invoke
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, method, args, reply)
	}
	return nil
}

func (f *fakeConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	f.mu.Lock()
	f.streamed = append(f.streamed, method)
	fn := f.newStream
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, desc, method)
	}
	return &fakeStream{ctx: ctx, finalErr: io.EOF}, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) invokeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invoked)
}

func (f *fakeConn) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streamed)
}

// fakeStream plays back a scripted response sequence and terminal error.
type fakeStream struct {
	ctx context.Context

	mu        sync.Mutex
	sent      []any
	responses []proto.Message
	finalErr  error
	closeSent bool
}

func (s *fakeStream) Header() (metadata.MD, error) { return nil, nil }
func (s *fakeStream) Trailer() metadata.MD         { return nil }
func (s *fakeStream) Context() context.Context     { return s.ctx }

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSent = true
	return nil
}

func (s *fakeStream) SendMsg(m any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeStream) RecvMsg(m any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		if s.finalErr != nil {
			return s.finalErr
		}
		return io.EOF
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	proto.Merge(m.(proto.Message), next)
	return nil
}

func newTestPoolMetrics() *metrics.PoolMetrics {
	return metrics.NewPoolMetricsWithRegistry(prometheus.NewRegistry())
}

func discardLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

// newTestPool builds a pool whose channels are fakeConns, collected in
// dial order.
func newTestPool(t *testing.T, maxSize int, policies ...MethodPolicy) (*Pool, *[]*fakeConn) {
	t.Helper()
	conns := &[]*fakeConn{}
	p, err := New(Options{
		Target:   "test:///pool",
		MaxSize:  maxSize,
		Policies: policies,
		Metrics:  newTestPoolMetrics(),
		Logger:   discardLogger(),
		DialFunc: func(string) (grpc.ClientConnInterface, error) {
			fc := &fakeConn{name: fmt.Sprintf("conn-%d", len(*conns))}
			*conns = append(*conns, fc)
			return fc, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, conns
}

// twoChannels forces the pool to open a second channel and returns both.
func twoChannels(t *testing.T, p *Pool) (*Channel, *Channel) {
	t.Helper()
	ch0, err := p.GetChannel("")
	require.NoError(t, err)
	p.incrementActive(ch0)
	ch1, err := p.GetChannel("")
	require.NoError(t, err)
	p.decrementActive(ch0)
	require.NotSame(t, ch0, ch1)
	return ch0, ch1
}
