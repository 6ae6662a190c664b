package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Fully qualified method names.
const (
	CometPushMethod        = "/jinshu.Comet/Push"
	ReceiverEnqueueMethod  = "/jinshu.Receiver/Enqueue"
	AuthorizerSignInMethod = "/jinshu.Authorizer/SignIn"
)

// CometService is implemented by the ingress node: deliver a message to a
// locally connected user.
type CometService interface {
	Push(ctx context.Context, msg *Message) (*PushResult, error)
}

// ReceiverService durably enqueues a message on the broker.
type ReceiverService interface {
	Enqueue(ctx context.Context, msg *Message) (*EnqueueResult, error)
}

// AuthorizerService validates a sign-in token.
type AuthorizerService interface {
	SignIn(ctx context.Context, token *Token) (*SignInResult, error)
}

// CometClient invokes Comet.Push over a client connection.
type CometClient struct {
	cc grpc.ClientConnInterface
}

func NewCometClient(cc grpc.ClientConnInterface) *CometClient {
	return &CometClient{cc: cc}
}

func (c *CometClient) Push(ctx context.Context, msg *Message) (*PushResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	out := new(PushResult)
	if err := c.cc.Invoke(ctx, CometPushMethod, msg, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiverClient invokes Receiver.Enqueue over a client connection.
type ReceiverClient struct {
	cc grpc.ClientConnInterface
}

func NewReceiverClient(cc grpc.ClientConnInterface) *ReceiverClient {
	return &ReceiverClient{cc: cc}
}

func (c *ReceiverClient) Enqueue(ctx context.Context, msg *Message) (*EnqueueResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	out := new(EnqueueResult)
	if err := c.cc.Invoke(ctx, ReceiverEnqueueMethod, msg, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuthorizerClient invokes Authorizer.SignIn over a client connection.
type AuthorizerClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthorizerClient(cc grpc.ClientConnInterface) *AuthorizerClient {
	return &AuthorizerClient{cc: cc}
}

func (c *AuthorizerClient) SignIn(ctx context.Context, token *Token) (*SignInResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	out := new(SignInResult)
	if err := c.cc.Invoke(ctx, AuthorizerSignInMethod, token, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterCometServer binds a CometService implementation to a gRPC server.
func RegisterCometServer(s grpc.ServiceRegistrar, srv CometService) {
	s.RegisterService(&cometServiceDesc, srv)
}

func RegisterReceiverServer(s grpc.ServiceRegistrar, srv ReceiverService) {
	s.RegisterService(&receiverServiceDesc, srv)
}

func RegisterAuthorizerServer(s grpc.ServiceRegistrar, srv AuthorizerService) {
	s.RegisterService(&authorizerServiceDesc, srv)
}

func cometPushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CometService).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CometPushMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CometService).Push(ctx, req.(*Message))
	}
	return interceptor(ctx, in, info, handler)
}

func receiverEnqueueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReceiverService).Enqueue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReceiverEnqueueMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReceiverService).Enqueue(ctx, req.(*Message))
	}
	return interceptor(ctx, in, info, handler)
}

func authorizerSignInHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Token)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthorizerService).SignIn(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AuthorizerSignInMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AuthorizerService).SignIn(ctx, req.(*Token))
	}
	return interceptor(ctx, in, info, handler)
}

var cometServiceDesc = grpc.ServiceDesc{
	ServiceName: "jinshu.Comet",
	HandlerType: (*CometService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Push", Handler: cometPushHandler},
	},
	Streams: []grpc.StreamDesc{},
}

var receiverServiceDesc = grpc.ServiceDesc{
	ServiceName: "jinshu.Receiver",
	HandlerType: (*ReceiverService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Enqueue", Handler: receiverEnqueueHandler},
	},
	Streams: []grpc.StreamDesc{},
}

var authorizerServiceDesc = grpc.ServiceDesc{
	ServiceName: "jinshu.Authorizer",
	HandlerType: (*AuthorizerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignIn", Handler: authorizerSignInHandler},
	},
	Streams: []grpc.StreamDesc{},
}
