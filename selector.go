package rpcgate

// StrategyRandom is the default balancing policy handed to the Picker.
const StrategyRandom = "random"

// selectUpstream delegates the weighted pick to the Picker and then
// re-identifies the original candidate record by exact equality on
// registry, protocol, version and group, first match in list order.
//
// When nothing matches the picked coordinates the first candidate is
// returned. That fallback is kept for compatibility with existing
// configurations but it usually hides a normalization mismatch between the
// picker and the candidate list, so it is counted and logged rather than
// trusted silently.
func (ps *ProxyService) selectUpstream(candidates []Upstream, clientKey string) (Upstream, error) {
	if len(candidates) == 0 {
		return Upstream{}, ErrNoCandidates
	}

	picked, err := ps.picker.Pick(withFreshness(candidates), ps.strategy, clientKey)
	if err != nil {
		return Upstream{}, err
	}

	for _, candidate := range candidates {
		if candidate.sameCoordinates(picked) {
			return candidate, nil
		}
	}

	ps.msink.IncrCounterWithLabels(MetricProxySelectFallbackCount, 1, ps.metricLabels)
	ps.logger.Debug(
		"weighted pick matched no configured candidate, falling back to first",
		LabelStrategy.L(ps.strategy),
		LabelUpstream.L(picked.Addr()),
	)
	return candidates[0], nil
}
