package rpcgate

import (
	"fmt"
	"time"
)

// MetaData is the immutable identity of a remote method target. It is
// supplied by the routing layer per request and never mutated here.
type MetaData struct {
	// ID namespaces reference keys when dynamic upstreams are configured.
	ID string
	// Path is the unique routing key of the service.
	Path string
	// ServiceName is the declared remote interface.
	ServiceName string
	MethodName  string
	// ParameterTypes is the comma-separated declared parameter signature.
	ParameterTypes string
}

// SelectorData identifies the matched selector and carries its configured
// upstream candidates. An empty candidate list means "use the statically
// configured default target".
type SelectorData struct {
	ID        string
	Upstreams []Upstream
}

// RuleData identifies the matched rule. Opaque to this package beyond key
// derivation.
type RuleData struct {
	ID string
}

// Upstream is one configured physical backend target.
type Upstream struct {
	// Registry is the backend registry/connection address.
	Registry string
	Protocol string
	Version  string
	Group    string
	Weight   int
	// Enabled candidates with a non-blank Registry are the only ones
	// eligible for selection.
	Enabled bool
	// Timestamp is a freshness marker in unix milliseconds; zero means
	// "now" and is filled in before the weighted pick.
	Timestamp int64
}

// Addr renders the coordinates of the upstream for telemetry.
func (u Upstream) Addr() string {
	return fmt.Sprintf("%s/%s@%s#%s", u.Registry, u.Version, u.Protocol, u.Group)
}

func (u Upstream) sameCoordinates(other Upstream) bool {
	return u.Registry == other.Registry &&
		u.Protocol == other.Protocol &&
		u.Version == other.Version &&
		u.Group == other.Group
}

// FilterUpstreams keeps only candidates eligible for selection: enabled and
// with a non-blank registry address.
func FilterUpstreams(upstreams []Upstream) []Upstream {
	var usable []Upstream
	for _, up := range upstreams {
		if up.Enabled && up.Registry != "" {
			usable = append(usable, up)
		}
	}
	return usable
}

func withFreshness(upstreams []Upstream) []Upstream {
	now := time.Now().UnixMilli()
	stamped := make([]Upstream, len(upstreams))
	for i, up := range upstreams {
		if up.Timestamp == 0 {
			up.Timestamp = now
		}
		stamped[i] = up
	}
	return stamped
}
