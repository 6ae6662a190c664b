// Package rpc defines the service-to-service RPC surface: the shared wire
// message, the three service contracts (Comet, Receiver, Authorizer), and
// the gRPC plumbing they ride on.
//
// Services exchange plain Go structs serialized with CBOR through a
// registered gRPC codec instead of protobuf-generated types; the service
// descriptors are written by hand. Every call is wrapped in a 5 s deadline.
package rpc

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype all jinshu services use.
const CodecName = "cbor"

// DefaultTimeout bounds every service-to-service call.
const DefaultTimeout = 5 * time.Second

type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal %T: %w", v, err)
	}
	return data, nil
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor unmarshal %T: %w", v, err)
	}
	return nil
}

func (cborCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(cborCodec{})
}

// DialOptions returns the client options shared by every jinshu service:
// plaintext transport, CBOR payloads, round-robin across resolved
// endpoints.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithDefaultServiceConfig(`{"loadBalancingConfig":[{"round_robin":{}}]}`),
	}
}
