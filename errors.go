package rpcgate

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCfg = errors.New("proxy: invalid options")

	ErrNoCandidates   = errors.New("selector: no usable upstream candidate")
	ErrRefUnavailable = errors.New("proxy: no usable client reference could be resolved or built")
	ErrNilService     = errors.New("proxy: client reference carries no generic service")

	ErrBodyDecode = errors.New("invoker: request body is not a valid document")
)

// GatewayError is the single uniform error type surfaced to the caller.
// Every failure of the proxy path, remote or local, is translated into it;
// the caller decides user-visible behavior.
type GatewayError struct {
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	return "gateway: " + e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// RemoteError is returned by backend bindings when the remote side
// explicitly reported a failure. Its message is preserved verbatim
// through normalization.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s", e.Message)
}

// AsGatewayError translates any failure into a `*GatewayError`.
// A `*RemoteError` keeps its message untouched; everything else is
// wrapped generically with its cause preserved for logging.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return &GatewayError{Message: remoteErr.Message, Cause: err}
	}

	return &GatewayError{Message: err.Error(), Cause: err}
}
