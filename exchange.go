package rpcgate

import "sync"

// Attribute keys written by the proxy and read by downstream
// response-assembly stages.
const (
	AttrRPCResult          = "rpc_result"
	AttrResponseResultType = "client_response_result_type"
)

// ResultTypeSuccess marks a completed call under `AttrResponseResultType`.
// Failures leave the attribute unset; downstream stages read the error from
// the result value itself.
const ResultTypeSuccess = "success"

// EmptyRPCResult is substituted for an absent success value so downstream
// consumers never observe a nil result ambiguously.
const EmptyRPCResult = "rpc call has no return value"

// Exchange is the per-request mutable state the proxy participates in.
// ClientAddr partitions upstream selection (typically the source IP) and
// Namespace scopes reference keys; both are set by upstream routing stages
// and are read-only here. The attribute map is the only shared state this
// package mutates.
type Exchange struct {
	ClientAddr string
	Namespace  string

	lk    sync.RWMutex
	attrs map[string]any
}

func NewExchange() *Exchange {
	return &Exchange{attrs: make(map[string]any)}
}

func (ex *Exchange) Put(key string, val any) {
	ex.lk.Lock()
	defer ex.lk.Unlock()
	if ex.attrs == nil {
		ex.attrs = make(map[string]any)
	}
	ex.attrs[key] = val
}

func (ex *Exchange) Attr(key string) (any, bool) {
	ex.lk.RLock()
	defer ex.lk.RUnlock()
	val, has := ex.attrs[key]
	return val, has
}
