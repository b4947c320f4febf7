package rpcgate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

// ProxyService performs generic RPC dispatch for the gateway proxy path.
// It is safe for use by any number of concurrent requests; the only shared
// mutable resource it touches is the RefCache, and only through fetch,
// invalidate and build requests.
type ProxyService struct {
	cache    RefCache
	picker   Picker
	resolver ParamResolver

	strategy     string
	logger       *slog.Logger
	msink        metrics.MetricSink
	metricLabels []metrics.Label
}

// New assembles a ProxyService around its three collaborators.
func New(cache RefCache, picker Picker, resolver ParamResolver, opts ...Option) (*ProxyService, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: a RefCache is required", ErrInvalidCfg)
	}
	if picker == nil {
		return nil, fmt.Errorf("%w: a Picker is required", ErrInvalidCfg)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: a ParamResolver is required", ErrInvalidCfg)
	}

	cfg := config{strategy: StrategyRandom}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	ps := &ProxyService{
		cache:        cache,
		picker:       picker,
		resolver:     resolver,
		strategy:     cfg.strategy,
		msink:        cfg.msink,
		metricLabels: cfg.metricLabels,
	}

	if cfg.logHandler != nil {
		ps.logger = slog.New(cfg.logHandler)
	} else {
		ps.logger = slog.Default()
	}
	if ps.msink == nil {
		ps.msink = metrics.Default()
	}

	return ps, nil
}

// Invoke proxies one request to the backend service described by meta.
// The returned Future resolves with the normalized outcome; resolution
// failures surface synchronously as a `*GatewayError`. Within one request,
// selection strictly precedes key derivation, which precedes the cache
// fetch, which precedes the invocation. Cancelling ctx abandons the wait
// but does not abort the in-flight remote call.
func (ps *ProxyService) Invoke(ctx context.Context, body []byte, meta MetaData, selector SelectorData, rule RuleData, exch *Exchange) (*Future, error) {
	if exch == nil {
		exch = NewExchange()
	}

	ref, err := ps.resolveRef(ctx, meta, selector, rule, exch)
	if err != nil {
		return nil, AsGatewayError(err)
	}

	svc := ref.Service()
	if svc == nil {
		return nil, AsGatewayError(ErrNilService)
	}

	parameterTypes, args, err := ps.buildArguments(body, meta.ParameterTypes, ref.Serialization())
	if err != nil {
		return nil, AsGatewayError(err)
	}

	ps.msink.IncrCounterWithLabels(MetricProxyInvokeCount, 1, ps.metricLabels)

	return ps.invokeAsync(ctx, svc, meta.MethodName, parameterTypes, args).then(func(val any, err error) (any, error) {
		if err != nil {
			ps.msink.IncrCounterWithLabels(MetricProxyInvokeErrorCount, 1, ps.metricLabels)
			ps.logger.Debug(
				"generic invocation failed",
				LabelServicePath.L(meta.Path),
				LabelMethod.L(meta.MethodName),
				LabelError.L(err),
			)
			return nil, AsGatewayError(err)
		}
		if val == nil {
			val = EmptyRPCResult
		}
		exch.Put(AttrRPCResult, val)
		exch.Put(AttrResponseResultType, ResultTypeSuccess)
		return val, nil
	}), nil
}

// resolveRef obtains a valid client reference for the target, rebuilding a
// stale one at most once. The build path depends on whether the selector
// carries usable upstream candidates.
func (ps *ProxyService) resolveRef(ctx context.Context, meta MetaData, selector SelectorData, rule RuleData, exch *Exchange) (ClientRef, error) {
	namespace := exch.Namespace

	candidates := FilterUpstreams(selector.Upstreams)
	if len(candidates) == 0 {
		key := DefaultRefKey(meta.Path, namespace)
		ref := ps.cache.Get(key)
		if stateOfRef(ref) != refValid {
			ref = nil
			ps.cache.Invalidate(key)
			ps.msink.IncrCounterWithLabels(MetricProxyRefRebuildCount, 1, ps.metricLabels)
			ps.logger.Debug("rebuilding default client reference", LabelRefKey.L(key))

			built, err := ps.cache.BuildDefault(ctx, meta, namespace)
			if err != nil {
				return nil, err
			}
			ref = built
		}
		if stateOfRef(ref) != refValid {
			return nil, ErrRefUnavailable
		}
		return ref, nil
	}

	upstream, err := ps.selectUpstream(candidates, exch.ClientAddr)
	if err != nil {
		return nil, err
	}

	key := UpstreamRefKey(selector.ID, rule.ID, meta.ID, namespace, upstream)
	ref := ps.cache.Get(key)
	if stateOfRef(ref) != refValid {
		ref = nil
		ps.cache.Invalidate(key)
		ps.msink.IncrCounterWithLabels(MetricProxyRefRebuildCount, 1, ps.metricLabels)
		ps.logger.Debug(
			"rebuilding client reference for upstream",
			LabelRefKey.L(key),
			LabelUpstream.L(upstream.Addr()),
		)

		built, err := ps.cache.BuildWithUpstream(ctx, selector.ID, rule, meta, namespace, upstream)
		if err != nil {
			return nil, err
		}
		ref = built
	}
	if stateOfRef(ref) != refValid {
		return nil, ErrRefUnavailable
	}
	return ref, nil
}
