// Package param resolves the parallel (parameterTypes, arguments) pair for
// a generic invocation from the declared comma-separated type signature and
// a JSON request body.
package param

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quivery/rpcgate"
)

var (
	ErrBodyDecode    = errors.New("param: request body is not valid JSON")
	ErrArityMismatch = errors.New("param: argument count does not match declared parameter types")
)

// Resolver is the default binding strategy:
//
//   - a JSON array body binds positionally, one element per declared type;
//   - any other body (object, string, number, ...) binds as the single
//     argument of a one-parameter signature.
//
// An object body against a multi-parameter signature is an arity error
// rather than a guess about field order.
type Resolver struct{}

var _ rpcgate.ParamResolver = Resolver{}

func (Resolver) Resolve(body []byte, parameterTypes string) ([]string, []any, error) {
	types := splitTypes(parameterTypes)

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBodyDecode, err)
	}

	if values, isArray := doc.([]any); isArray {
		if len(values) != len(types) {
			return nil, nil, fmt.Errorf("%w: got %d arguments for %d types",
				ErrArityMismatch, len(values), len(types))
		}
		return types, values, nil
	}

	if len(types) != 1 {
		return nil, nil, fmt.Errorf("%w: a non-array body binds a single parameter, signature declares %d",
			ErrArityMismatch, len(types))
	}
	return types, []any{doc}, nil
}

func splitTypes(parameterTypes string) []string {
	var types []string
	for _, t := range strings.Split(parameterTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}
