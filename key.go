package rpcgate

import "strings"

const keySeparator = ":"

// DefaultRefKey derives the reference key used when no dynamic upstream is
// configured: the service path, namespace-prefixed when the namespace is
// non-blank. Pure and deterministic; RefCache implementations MUST derive
// keys with the same functions so builds land under the key the proxy
// fetches.
func DefaultRefKey(path, namespace string) string {
	if namespace == "" {
		return path
	}
	return namespace + keySeparator + path
}

// UpstreamRefKey derives the reference key used when a dynamic upstream was
// selected. The join order is fixed: selector id, rule id, service id,
// namespace, then the upstream coordinates (registry, protocol, version,
// group). Changing any component changes the key.
func UpstreamRefKey(selectorID, ruleID, metaID, namespace string, up Upstream) string {
	return strings.Join([]string{
		selectorID,
		ruleID,
		metaID,
		namespace,
		up.Registry,
		up.Protocol,
		up.Version,
		up.Group,
	}, keySeparator)
}
