package rpcgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCache struct {
	m mock.Mock
}

func (c *MockCache) Get(key string) ClientRef {
	args := c.m.Called(key)
	ref, _ := args.Get(0).(ClientRef)
	return ref
}

func (c *MockCache) Invalidate(key string) {
	c.m.Called(key)
}

func (c *MockCache) BuildDefault(ctx context.Context, meta MetaData, namespace string) (ClientRef, error) {
	args := c.m.Called(meta, namespace)
	ref, _ := args.Get(0).(ClientRef)
	return ref, args.Error(1)
}

func (c *MockCache) BuildWithUpstream(ctx context.Context, selectorID string, rule RuleData, meta MetaData, namespace string, upstream Upstream) (ClientRef, error) {
	args := c.m.Called(selectorID, rule, meta, namespace, upstream)
	ref, _ := args.Get(0).(ClientRef)
	return ref, args.Error(1)
}

type MockPicker struct {
	m mock.Mock
}

func (p *MockPicker) Pick(candidates []Upstream, strategy string, key string) (Upstream, error) {
	args := p.m.Called(candidates, strategy, key)
	return args.Get(0).(Upstream), args.Error(1)
}

type stubService struct {
	fut *Future
	err error

	gotMethod string
	gotTypes  []string
	gotArgs   []any
}

func (s *stubService) Invoke(ctx context.Context, method string, parameterTypes []string, args []any) (*Future, error) {
	s.gotMethod = method
	s.gotTypes = parameterTypes
	s.gotArgs = args
	return s.fut, s.err
}

type stubRef struct {
	iface string
	mode  string
	svc   GenericService
}

func (r stubRef) Interface() string       { return r.iface }
func (r stubRef) Serialization() string   { return r.mode }
func (r stubRef) Service() GenericService { return r.svc }

type stubResolver struct {
	types []string
	args  []any
	err   error
}

func (r stubResolver) Resolve(body []byte, parameterTypes string) ([]string, []any, error) {
	return r.types, r.args, r.err
}

func newTestProxy(t *testing.T, cache RefCache, picker Picker, resolver ParamResolver, opts ...Option) *ProxyService {
	t.Helper()
	if resolver == nil {
		resolver = stubResolver{}
	}
	ps, err := New(cache, picker, resolver, opts...)
	require.NoError(t, err)
	return ps
}

var testMeta = MetaData{
	ID:             "meta-1",
	Path:           "/order/find",
	ServiceName:    "org.example.OrderService",
	MethodName:     "find",
	ParameterTypes: "java.lang.String",
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, &MockPicker{}, stubResolver{})
	require.ErrorIs(t, err, ErrInvalidCfg)

	_, err = New(&MockCache{}, nil, stubResolver{})
	require.ErrorIs(t, err, ErrInvalidCfg)

	_, err = New(&MockCache{}, &MockPicker{}, nil)
	require.ErrorIs(t, err, ErrInvalidCfg)
}

func TestResolveRef_DefaultPath_ValidHit(t *testing.T) {
	cache := &MockCache{}
	ref := stubRef{iface: "org.example.OrderService", svc: &stubService{}}
	cache.m.On("Get", "/order/find").Return(ref).Once()

	ps := newTestProxy(t, cache, &MockPicker{}, nil)
	got, err := ps.resolveRef(context.Background(), testMeta, SelectorData{ID: "s1"}, RuleData{ID: "r1"}, NewExchange())
	require.NoError(t, err)
	require.Equal(t, ref, got)
	cache.m.AssertExpectations(t)
	cache.m.AssertNotCalled(t, "Invalidate", mock.Anything)
}

func TestResolveRef_DefaultPath_NamespacePrefixesKey(t *testing.T) {
	cache := &MockCache{}
	ref := stubRef{iface: "org.example.OrderService"}
	cache.m.On("Get", "staging:/order/find").Return(ref).Once()

	exch := NewExchange()
	exch.Namespace = "staging"

	ps := newTestProxy(t, cache, &MockPicker{}, nil)
	got, err := ps.resolveRef(context.Background(), testMeta, SelectorData{}, RuleData{}, exch)
	require.NoError(t, err)
	require.Equal(t, ref, got)
	cache.m.AssertExpectations(t)
}

func TestResolveRef_StaleRef_InvalidatesThenRebuildsOnce(t *testing.T) {
	cache := &MockCache{}
	stale := stubRef{iface: ""}
	rebuilt := stubRef{iface: "org.example.OrderService"}
	cache.m.On("Get", "/order/find").Return(stale).Once()
	cache.m.On("Invalidate", "/order/find").Once()
	cache.m.On("BuildDefault", testMeta, "").Return(rebuilt, nil).Once()

	ps := newTestProxy(t, cache, &MockPicker{}, nil)
	got, err := ps.resolveRef(context.Background(), testMeta, SelectorData{}, RuleData{}, NewExchange())
	require.NoError(t, err)
	require.Equal(t, rebuilt, got)
	cache.m.AssertExpectations(t)
}

func TestResolveRef_AbsentRef_Rebuilds(t *testing.T) {
	cache := &MockCache{}
	rebuilt := stubRef{iface: "org.example.OrderService"}
	cache.m.On("Get", "/order/find").Return(nil).Once()
	cache.m.On("Invalidate", "/order/find").Once()
	cache.m.On("BuildDefault", testMeta, "").Return(rebuilt, nil).Once()

	ps := newTestProxy(t, cache, &MockPicker{}, nil)
	got, err := ps.resolveRef(context.Background(), testMeta, SelectorData{}, RuleData{}, NewExchange())
	require.NoError(t, err)
	require.Equal(t, rebuilt, got)
	cache.m.AssertExpectations(t)
}

func TestResolveRef_BuildFailure_Propagates(t *testing.T) {
	cache := &MockCache{}
	boom := errors.New("registry unreachable")
	cache.m.On("Get", "/order/find").Return(nil).Once()
	cache.m.On("Invalidate", "/order/find").Once()
	cache.m.On("BuildDefault", testMeta, "").Return(nil, boom).Once()

	ps := newTestProxy(t, cache, &MockPicker{}, nil)
	_, err := ps.resolveRef(context.Background(), testMeta, SelectorData{}, RuleData{}, NewExchange())
	require.ErrorIs(t, err, boom)
	cache.m.AssertExpectations(t)
}

func TestResolveRef_RebuiltRefStillStale_IsConfigurationError(t *testing.T) {
	cache := &MockCache{}
	cache.m.On("Get", "/order/find").Return(nil).Once()
	cache.m.On("Invalidate", "/order/find").Once()
	cache.m.On("BuildDefault", testMeta, "").Return(stubRef{iface: ""}, nil).Once()

	ps := newTestProxy(t, cache, &MockPicker{}, nil)
	_, err := ps.resolveRef(context.Background(), testMeta, SelectorData{}, RuleData{}, NewExchange())
	require.ErrorIs(t, err, ErrRefUnavailable)
}

func TestResolveRef_UpstreamPath_ComposesKeyFromSelection(t *testing.T) {
	up := Upstream{Registry: "nats://10.0.0.1:4222", Protocol: "json", Version: "1.0", Group: "g1", Weight: 50, Enabled: true}
	disabled := Upstream{Registry: "nats://10.0.0.2:4222", Enabled: false}
	selector := SelectorData{ID: "sel-1", Upstreams: []Upstream{up, disabled}}
	rule := RuleData{ID: "rule-1"}

	picker := &MockPicker{}
	picker.m.On("Pick", mock.Anything, StrategyRandom, "10.1.2.3").Return(up, nil).Once()

	wantKey := "sel-1:rule-1:meta-1::nats://10.0.0.1:4222:json:1.0:g1"
	ref := stubRef{iface: "org.example.OrderService"}
	cache := &MockCache{}
	cache.m.On("Get", wantKey).Return(ref).Once()

	exch := NewExchange()
	exch.ClientAddr = "10.1.2.3"

	ps := newTestProxy(t, cache, picker, nil)
	got, err := ps.resolveRef(context.Background(), testMeta, selector, rule, exch)
	require.NoError(t, err)
	require.Equal(t, ref, got)
	picker.m.AssertExpectations(t)
	cache.m.AssertExpectations(t)
}

func TestResolveRef_UpstreamPath_StaleTriggersOverrideBuild(t *testing.T) {
	up := Upstream{Registry: "nats://10.0.0.1:4222", Protocol: "json", Version: "1.0", Group: "g1", Enabled: true}
	selector := SelectorData{ID: "sel-1", Upstreams: []Upstream{up}}
	rule := RuleData{ID: "rule-1"}

	picker := &MockPicker{}
	picker.m.On("Pick", mock.Anything, mock.Anything, mock.Anything).Return(up, nil).Once()

	key := UpstreamRefKey("sel-1", "rule-1", "meta-1", "", up)
	rebuilt := stubRef{iface: "org.example.OrderService"}
	cache := &MockCache{}
	cache.m.On("Get", key).Return(stubRef{}).Once()
	cache.m.On("Invalidate", key).Once()
	cache.m.On("BuildWithUpstream", "sel-1", rule, testMeta, "", up).Return(rebuilt, nil).Once()

	ps := newTestProxy(t, cache, picker, nil)
	got, err := ps.resolveRef(context.Background(), testMeta, selector, rule, NewExchange())
	require.NoError(t, err)
	require.Equal(t, rebuilt, got)
	cache.m.AssertExpectations(t)
}

func validCachedRef(t *testing.T, cache *MockCache, svc GenericService, mode string) {
	t.Helper()
	cache.m.On("Get", "/order/find").Return(stubRef{iface: "org.example.OrderService", mode: mode, svc: svc})
}

func TestInvoke_Success_RecordsOutcomeOnExchange(t *testing.T) {
	svc := &stubService{fut: CompletedFuture(map[string]any{"id": "42"})}
	cache := &MockCache{}
	validCachedRef(t, cache, svc, SerializationJSON)

	resolver := stubResolver{types: []string{"java.lang.String"}, args: []any{"42"}}
	ps := newTestProxy(t, cache, &MockPicker{}, resolver)

	exch := NewExchange()
	fut, err := ps.Invoke(context.Background(), []byte(`"42"`), testMeta, SelectorData{}, RuleData{}, exch)
	require.NoError(t, err)

	val, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "42"}, val)

	require.Equal(t, "find", svc.gotMethod)
	require.Equal(t, []string{"java.lang.String"}, svc.gotTypes)
	require.Equal(t, []any{"42"}, svc.gotArgs)

	attr, has := exch.Attr(AttrRPCResult)
	require.True(t, has)
	require.Equal(t, map[string]any{"id": "42"}, attr)
	marker, has := exch.Attr(AttrResponseResultType)
	require.True(t, has)
	require.Equal(t, ResultTypeSuccess, marker)
}

func TestInvoke_NilResult_SubstitutesSentinel(t *testing.T) {
	svc := &stubService{fut: CompletedFuture(nil)}
	cache := &MockCache{}
	validCachedRef(t, cache, svc, SerializationJSON)

	ps := newTestProxy(t, cache, &MockPicker{}, nil)

	exch := NewExchange()
	fut, err := ps.Invoke(context.Background(), nil, testMeta, SelectorData{}, RuleData{}, exch)
	require.NoError(t, err)

	val, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, EmptyRPCResult, val)

	attr, has := exch.Attr(AttrRPCResult)
	require.True(t, has)
	require.Equal(t, EmptyRPCResult, attr)
}

func TestInvoke_RemoteError_PreservesMessage(t *testing.T) {
	svc := &stubService{fut: FailedFuture(&RemoteError{Message: "no such order: 42"})}
	cache := &MockCache{}
	validCachedRef(t, cache, svc, SerializationJSON)

	ps := newTestProxy(t, cache, &MockPicker{}, nil)

	exch := NewExchange()
	fut, err := ps.Invoke(context.Background(), nil, testMeta, SelectorData{}, RuleData{}, exch)
	require.NoError(t, err)

	_, err = fut.Wait(context.Background())
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "no such order: 42", gwErr.Message)

	_, has := exch.Attr(AttrResponseResultType)
	require.False(t, has, "no outcome marker on failure")
}

func TestInvoke_GenericFailure_WrapsUniformly(t *testing.T) {
	svc := &stubService{fut: FailedFuture(errors.New("connection reset"))}
	cache := &MockCache{}
	validCachedRef(t, cache, svc, SerializationJSON)

	ps := newTestProxy(t, cache, &MockPicker{}, nil)

	fut, err := ps.Invoke(context.Background(), nil, testMeta, SelectorData{}, RuleData{}, NewExchange())
	require.NoError(t, err)

	_, err = fut.Wait(context.Background())
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "connection reset", gwErr.Message)
}

func TestInvoke_PendingFuture_DoesNotBlock(t *testing.T) {
	pending := NewFuture()
	svc := &stubService{fut: pending}
	cache := &MockCache{}
	validCachedRef(t, cache, svc, SerializationJSON)

	ps := newTestProxy(t, cache, &MockPicker{}, nil)

	fut, err := ps.Invoke(context.Background(), nil, testMeta, SelectorData{}, RuleData{}, NewExchange())
	require.NoError(t, err)
	require.False(t, fut.Resolved(), "outcome must stay pending until the backend answers")

	pending.Complete("late answer")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := fut.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "late answer", val)
}

func TestInvoke_ResolutionFailure_IsGatewayError(t *testing.T) {
	cache := &MockCache{}
	cache.m.On("Get", "/order/find").Return(nil)
	cache.m.On("Invalidate", "/order/find")
	cache.m.On("BuildDefault", testMeta, "").Return(nil, errors.New("registry unreachable"))

	ps := newTestProxy(t, cache, &MockPicker{}, nil)

	_, err := ps.Invoke(context.Background(), nil, testMeta, SelectorData{}, RuleData{}, NewExchange())
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "registry unreachable", gwErr.Message)
}
