// Package natsref binds the proxy core to backends reachable over NATS
// request/reply. It implements refcache.Builder and produces client
// references whose generic service publishes a JSON call envelope and
// completes a Future from the reply inbox, so the calling pipeline never
// blocks on the wire.
package natsref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quivery/rpcgate"
)

var (
	ErrConnect        = errors.New("natsref: could not connect to registry")
	ErrRequestTimeout = errors.New("natsref: request timed out")
	ErrBadReply       = errors.New("natsref: malformed reply envelope")
)

// subjectPrefix roots every call subject so backend responders can
// subscribe with a single wildcard.
const subjectPrefix = "rpc"

// noRespondersStatus is the header the server stamps on the synthetic
// reply it sends when nobody is subscribed to the request subject.
const noRespondersStatus = "503"

// Builder constructs NATS-backed client references. Connections are pooled
// per registry URL and shared by every reference built against it.
type Builder struct {
	cfg    Config
	logger *slog.Logger

	lk    sync.Mutex
	conns map[string]*nats.Conn
}

func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Builder{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*nats.Conn),
	}
}

// BuildDefault binds meta to the statically configured registry URL.
func (b *Builder) BuildDefault(ctx context.Context, meta rpcgate.MetaData, namespace string) (rpcgate.ClientRef, error) {
	return b.buildRef(ctx, b.cfg.RegistryURL, b.cfg.Serialization, meta, namespace)
}

// BuildWithUpstream binds meta to the selected upstream's registry. An
// upstream whose protocol names a serialization mode overrides the
// configured default.
func (b *Builder) BuildWithUpstream(ctx context.Context, selectorID string, rule rpcgate.RuleData, meta rpcgate.MetaData, namespace string, upstream rpcgate.Upstream) (rpcgate.ClientRef, error) {
	serialization := b.cfg.Serialization
	if upstream.Protocol == rpcgate.SerializationProtobufJSON {
		serialization = rpcgate.SerializationProtobufJSON
	}
	return b.buildRef(ctx, upstream.Registry, serialization, meta, namespace)
}

func (b *Builder) buildRef(ctx context.Context, url, serialization string, meta rpcgate.MetaData, namespace string) (rpcgate.ClientRef, error) {
	conn, err := b.conn(url)
	if err != nil {
		return nil, err
	}

	ref := &Ref{
		iface:         meta.ServiceName,
		serialization: serialization,
		svc: &service{
			conn:    conn,
			subject: SubjectFor(namespace, meta.Path),
			timeout: b.cfg.RequestTimeout,
			logger:  b.logger,
		},
	}
	b.logger.Debug(
		"built client reference",
		rpcgate.LabelServicePath.L(meta.Path),
		rpcgate.LabelNamespace.L(namespace),
		"registry", url,
	)
	return ref, nil
}

func (b *Builder) conn(url string) (*nats.Conn, error) {
	b.lk.Lock()
	defer b.lk.Unlock()
	if conn, has := b.conns[url]; has && !conn.IsClosed() {
		return conn, nil
	}

	conn, err := nats.Connect(url,
		nats.Name(b.cfg.ClientName),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	b.conns[url] = conn
	return conn, nil
}

// Close drains every pooled connection.
func (b *Builder) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	var errs []error
	for url, conn := range b.conns {
		if err := conn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain %s: %w", url, err))
		}
	}
	clear(b.conns)
	return errors.Join(errs...)
}

// SubjectFor maps a service path (and optional namespace) onto a NATS
// subject: "/order/find" becomes "rpc.order.find", namespaced as
// "rpc.<namespace>.order.find".
func SubjectFor(namespace, path string) string {
	tokens := []string{subjectPrefix}
	if namespace != "" {
		tokens = append(tokens, namespace)
	}
	for _, tok := range strings.Split(strings.Trim(path, "/"), "/") {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return strings.Join(tokens, ".")
}

// Ref is a ready-to-invoke NATS-backed client reference.
type Ref struct {
	iface         string
	serialization string
	svc           *service
}

var _ rpcgate.ClientRef = (*Ref)(nil)

func (r *Ref) Interface() string               { return r.iface }
func (r *Ref) Serialization() string           { return r.serialization }
func (r *Ref) Service() rpcgate.GenericService { return r.svc }

// callRequest is the envelope published to the backend responder.
type callRequest struct {
	Method         string   `json:"method"`
	ParameterTypes []string `json:"parameterTypes"`
	Arguments      []any    `json:"arguments"`
}

// callResponse is the envelope expected back. A non-OK reply carries the
// backend's failure message, surfaced verbatim as a RemoteError.
type callResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type service struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
	logger  *slog.Logger
}

var _ rpcgate.GenericService = (*service)(nil)

// Invoke publishes the call and returns a Future completed from the reply
// inbox. The deadline is the shorter of ctx and the configured request
// timeout; expiry fails the Future but cannot abort the backend's work.
func (s *service) Invoke(ctx context.Context, method string, parameterTypes []string, args []any) (*rpcgate.Future, error) {
	payload, err := json.Marshal(callRequest{
		Method:         method,
		ParameterTypes: parameterTypes,
		Arguments:      args,
	})
	if err != nil {
		return nil, err
	}

	fut := rpcgate.NewFuture()
	inbox := nats.NewInbox()

	timeout := s.timeout
	if deadline, has := ctx.Deadline(); has {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	// The handler only fires after PublishRequest below, so timer is
	// assigned by the time any reply can arrive.
	var timer *time.Timer
	sub, err := s.conn.Subscribe(inbox, func(msg *nats.Msg) {
		timer.Stop()
		s.complete(fut, msg)
	})
	if err != nil {
		return nil, err
	}
	if err := sub.AutoUnsubscribe(1); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	// A silent backend never consumes the auto-unsubscribe budget, so the
	// expiry path must tear the inbox subscription down itself or it would
	// linger on the pooled connection.
	timer = time.AfterFunc(timeout, func() {
		sub.Unsubscribe()
		fut.Fail(fmt.Errorf("%w: no reply on %s after %s", ErrRequestTimeout, s.subject, timeout))
	})

	if err := s.conn.PublishRequest(s.subject, inbox, payload); err != nil {
		timer.Stop()
		sub.Unsubscribe()
		return nil, err
	}
	return fut, nil
}

func (s *service) complete(fut *rpcgate.Future, msg *nats.Msg) {
	// A subject with no responders comes back as an empty-payload 503
	// status message from the server, not a backend reply.
	if len(msg.Data) == 0 && msg.Header.Get("Status") == noRespondersStatus {
		fut.Fail(fmt.Errorf("%w: no responders on %s", ErrRequestTimeout, s.subject))
		return
	}

	var resp callResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		fut.Fail(fmt.Errorf("%w: %w", ErrBadReply, err))
		return
	}
	if !resp.OK {
		fut.Fail(&rpcgate.RemoteError{Message: resp.Error})
		return
	}

	if len(resp.Result) == 0 {
		fut.Complete(nil)
		return
	}
	var val any
	if err := json.Unmarshal(resp.Result, &val); err != nil {
		fut.Fail(fmt.Errorf("%w: %w", ErrBadReply, err))
		return
	}
	fut.Complete(val)
}
