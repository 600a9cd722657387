// Package chanpool implements an affinity-aware pool of gRPC channels to
// one logical server.
//
// A Pool owns up to MaxSize transport channels to a single target. Every
// outgoing call is assigned a channel: calls carrying an affinity key
// (for example a session id) are pinned to the channel that created that
// key, everything else goes to the least-loaded channel. Per-method
// policies declare where the key lives in the request or response message
// and what to do with it:
//
//   - bind: after a successful call, map the key found in the first
//     response message to the channel that served the call
//   - bound: route the call to the channel already bound to the key found
//     in the request
//   - unbind: after a successful call, drop the binding for the key found
//     in the request
//
// Pool implements grpc.ClientConnInterface, so generated stubs can use it
// directly:
//
//	pool, err := chanpool.New(chanpool.Options{
//		Target:  "dns:///sessions.example.com:443",
//		MaxSize: 4,
//		Policies: []chanpool.MethodPolicy{
//			{Method: "/example.Sessions/CreateSession", Command: chanpool.CommandBind,
//				KeyPath: chanpool.MustCompileKeyPath("session.name")},
//			{Method: "/example.Sessions/GetSession", Command: chanpool.CommandBound,
//				KeyPath: chanpool.MustCompileKeyPath("name")},
//		},
//	})
//	client := examplepb.NewSessionsClient(pool)
//
// The protocol is transparent: it never alters messages, metadata, or the
// terminal status, and every failure mode inside it degrades to "no
// affinity participation" for the affected call.
package chanpool
