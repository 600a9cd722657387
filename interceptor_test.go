package chanpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/apipb"
)

func newForeignConn(t *testing.T, target string) *grpc.ClientConn {
	t.Helper()
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestUnaryInterceptorBypassesForeignTarget(t *testing.T) {
	p, conns := newTestPool(t, 2, sessionPolicies()...)
	cc := newForeignConn(t, "passthrough:///other-backend")

	invoked := false
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		invoked = true
		return nil
	}

	err := p.UnaryInterceptor()(context.Background(), methodGet,
		&apipb.Api{Name: "S1"}, &apipb.Api{}, cc, invoker)
	require.NoError(t, err)

	assert.True(t, invoked, "foreign target must be dispatched unmodified")
	assert.Len(t, *conns, 0, "pool must not be touched for a foreign target")
	assert.Equal(t, int64(0), p.Stats().InFlightCalls)
}

func TestUnaryInterceptorRoutesPoolTarget(t *testing.T) {
	p, conns := newTestPool(t, 2, sessionPolicies()...)
	cc := newForeignConn(t, p.Target())

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		t.Fatal("invoker must not be used for a pooled call")
		return nil
	}

	err := p.UnaryInterceptor()(context.Background(), methodList,
		&apipb.Api{}, &apipb.Api{}, cc, invoker)
	require.NoError(t, err)

	require.Len(t, *conns, 1)
	assert.Equal(t, 1, (*conns)[0].invokeCount())
}

func TestStreamInterceptorBypassesForeignTarget(t *testing.T) {
	p, conns := newTestPool(t, 2, sessionPolicies()...)
	cc := newForeignConn(t, "passthrough:///other-backend")

	streamed := false
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		streamed = true
		return &fakeStream{ctx: ctx}, nil
	}

	_, err := p.StreamInterceptor()(context.Background(), serverStreamDesc, cc, methodList, streamer)
	require.NoError(t, err)
	assert.True(t, streamed)
	assert.Len(t, *conns, 0)
}

func TestStreamInterceptorRoutesPoolTarget(t *testing.T) {
	p, conns := newTestPool(t, 2, sessionPolicies()...)
	cc := newForeignConn(t, p.Target())

	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		t.Fatal("streamer must not be used for a pooled call")
		return nil, nil
	}

	s, err := p.StreamInterceptor()(context.Background(), serverStreamDesc, cc, methodList, streamer)
	require.NoError(t, err)
	require.NoError(t, s.SendMsg(&apipb.Api{}))
	assert.Len(t, *conns, 1)
	require.Error(t, s.RecvMsg(&apipb.Api{})) // io.EOF from the scripted stream
}
