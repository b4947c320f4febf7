package rpcgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// argPlan is how the method-argument tuple is built for one call. It is
// resolved exactly once per invocation, first match wins.
type argPlan uint8

const (
	// planNoArg: blank parameter signature or empty body.
	planNoArg argPlan = iota
	// planStructured: the reference negotiated the structured-protocol
	// mode; the body travels as one canonically re-encoded document.
	planStructured
	// planTyped: full parameter-type-driven marshaling by the resolver.
	planTyped
)

func planFor(parameterTypes string, body []byte, serialization string) argPlan {
	if strings.TrimSpace(parameterTypes) == "" || len(bytes.TrimSpace(body)) == 0 {
		return planNoArg
	}
	if serialization == SerializationProtobufJSON {
		return planStructured
	}
	return planTyped
}

func (ps *ProxyService) buildArguments(body []byte, parameterTypes, serialization string) ([]string, []any, error) {
	switch planFor(parameterTypes, body, serialization) {
	case planNoArg:
		return []string{}, []any{}, nil
	case planStructured:
		doc, err := canonicalDocument(body)
		if err != nil {
			return nil, nil, err
		}
		return []string{parameterTypes}, []any{doc}, nil
	default:
		return ps.resolver.Resolve(body, parameterTypes)
	}
}

// canonicalDocument parses the body as a generic key-value document and
// re-serializes it, normalizing the encoding for the structured-protocol
// mode. This is not a no-op: key order, whitespace and escaping all come
// out canonical.
func canonicalDocument(body []byte) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBodyDecode, err)
	}

	st, err := structpb.NewStruct(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBodyDecode, err)
	}

	buf, err := protojson.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBodyDecode, err)
	}
	return string(buf), nil
}

// invokeAsync issues the generic call and bridges whatever comes back into
// one Future. Bindings may fail synchronously, answer with an
// already-resolved Future, hand back a pending one, or return nothing at
// all (one-way legacy behavior); all four surface uniformly.
func (ps *ProxyService) invokeAsync(ctx context.Context, svc GenericService, method string, parameterTypes []string, args []any) *Future {
	fut, err := svc.Invoke(ctx, method, parameterTypes, args)
	if err != nil {
		return FailedFuture(err)
	}
	if fut == nil {
		return CompletedFuture(nil)
	}
	return fut
}
