// Package rpcgate is the request-dispatch core of a gateway's RPC proxy
// path: given an inbound request already matched to a backend service
// description, it resolves a live client reference, invokes the remote
// method generically (no compile-time stub) and bridges the asynchronous
// result back into the gateway's non-blocking pipeline.
//
// The `ProxyService` orchestrates four steps per request:
//
//  1. Upstream selection: when the matched selector carries weighted
//     candidates, a `Picker` chooses one and the original candidate record
//     is re-identified by exact coordinates.
//  2. Reference resolution: a deterministic key is derived from the
//     selector/rule/service identity (plus namespace and, when candidates
//     exist, the chosen upstream's coordinates) and a `RefCache` is asked
//     for a ready client reference. A stale reference (empty declared
//     interface) is invalidated and rebuilt through the matching build path.
//  3. Generic invocation: the method-argument tuple is built from the
//     request body under the reference's active serialization mode, then
//     the call is issued through `GenericService`. Whether the backend
//     binding answers eagerly or later, the caller always receives the
//     same `Future`.
//  4. Normalization: an absent success value is substituted with
//     `EmptyRPCResult`, the outcome is recorded on the `Exchange`, and
//     every failure is translated into a `*GatewayError`.
//
// The expensive parts live behind collaborator interfaces: `pkg/refcache`
// provides the keyed reference cache (at most one in-flight build per key),
// `pkg/balance` the weighted picker, `pkg/param` the parameter resolver and
// `pkg/natsref` a concrete backend binding over NATS request/reply.
package rpcgate
