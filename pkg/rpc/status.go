package rpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Internal wraps a dependency failure (broker, cache, registry) as an
// Internal status for the caller.
func Internal(err error) error {
	return status.Error(codes.Internal, err.Error())
}

// InvalidArgument wraps a parse failure of caller-supplied input.
func InvalidArgument(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// NotFound reports that the addressed target is absent (for example, the
// recipient has no session on this ingress).
func NotFound(msg string) error {
	return status.Error(codes.NotFound, msg)
}

// IsNotFound reports whether err carries the NotFound status code.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
