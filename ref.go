package rpcgate

import "context"

// Serialization modes a client reference may negotiate with its backend.
const (
	// SerializationJSON is the plain generic mode: arguments are built by
	// the parameter resolver.
	SerializationJSON = "json"
	// SerializationProtobufJSON is the structured-protocol mode: the whole
	// body travels as a single canonically re-encoded document argument.
	SerializationProtobufJSON = "protobuf-json"
)

// ClientRef is an opaque, expensive-to-build reference enabling generic
// calls to one remote service configuration. It is owned by the RefCache;
// this package only requests construction and invalidation by key.
type ClientRef interface {
	// Interface returns the declared remote interface. An empty value
	// means the reference is a stale placeholder, not that it is absent.
	Interface() string
	// Serialization returns the active serialization mode.
	Serialization() string
	// Service returns the ready-to-invoke generic client.
	Service() GenericService
}

// GenericService invokes a remote method by name and parameter-type strings
// rather than through a compiled stub. The returned Future may already be
// resolved when the binding had the answer at hand; implementations MUST
// NOT block the caller. A nil Future with a nil error is tolerated for
// bindings without async support and is treated as an empty completion.
type GenericService interface {
	Invoke(ctx context.Context, method string, parameterTypes []string, args []any) (*Future, error)
}

// RefCache is the external keyed store owning every ClientRef. Get on an
// unknown key returns a stale placeholder rather than an explicit
// not-found. Implementations MUST serialize construction per key: at most
// one expensive build may be in flight for a given key at a time.
type RefCache interface {
	Get(key string) ClientRef
	Invalidate(key string)
	BuildDefault(ctx context.Context, meta MetaData, namespace string) (ClientRef, error)
	BuildWithUpstream(ctx context.Context, selectorID string, rule RuleData, meta MetaData, namespace string, upstream Upstream) (ClientRef, error)
}

// Picker is the black-box weighted selector: given candidates, a balancing
// strategy and a partition key it returns the coordinates of one candidate.
type Picker interface {
	Pick(candidates []Upstream, strategy string, key string) (Upstream, error)
}

// ParamResolver builds the parallel (parameterTypes, arguments) pair from a
// request body and the declared comma-separated signature.
type ParamResolver interface {
	Resolve(body []byte, parameterTypes string) ([]string, []any, error)
}

// refState is the observable lifecycle of a cached reference.
type refState uint8

const (
	refAbsent refState = iota
	refStale
	refValid
)

func stateOfRef(ref ClientRef) refState {
	if ref == nil {
		return refAbsent
	}
	if ref.Interface() == "" {
		return refStale
	}
	return refValid
}
