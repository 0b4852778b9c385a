package chatrpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "chat.v1.ChatService"

// Full method names, as seen by interceptors.
const (
	MethodAuthenticate = "/" + ServiceName + "/Authenticate"
	MethodSendMessage  = "/" + ServiceName + "/SendMessage"
	MethodGetChats     = "/" + ServiceName + "/GetChats"
	MethodGetMessages  = "/" + ServiceName + "/GetMessages"
	MethodGetUser      = "/" + ServiceName + "/GetUser"
)

// ChatServiceServer is the server API for chat.v1.ChatService.
type ChatServiceServer interface {
	Authenticate(context.Context, *AuthenticateRequest) (*AuthenticateResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	GetChats(context.Context, *GetChatsRequest) (*GetChatsResponse, error)
	GetMessages(context.Context, *GetMessagesRequest) (*GetMessagesResponse, error)
	GetUser(context.Context, *GetUserRequest) (*GetUserResponse, error)
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// unary builds a method handler that decodes Req and calls fn.
func unary[Req any, Resp any](fullMethod string, fn func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(ChatServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(ChatServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authenticate", Handler: unary(MethodAuthenticate, ChatServiceServer.Authenticate)},
		{MethodName: "SendMessage", Handler: unary(MethodSendMessage, ChatServiceServer.SendMessage)},
		{MethodName: "GetChats", Handler: unary(MethodGetChats, ChatServiceServer.GetChats)},
		{MethodName: "GetMessages", Handler: unary(MethodGetMessages, ChatServiceServer.GetMessages)},
		{MethodName: "GetUser", Handler: unary(MethodGetUser, ChatServiceServer.GetUser)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chat/v1/chat.json",
}

// ChatServiceClient is the client API for chat.v1.ChatService. Every call
// is sent with the json content-subtype.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatServiceClient) Authenticate(ctx context.Context, in *AuthenticateRequest, opts ...grpc.CallOption) (*AuthenticateResponse, error) {
	return invoke[AuthenticateResponse](ctx, c.cc, MethodAuthenticate, in, opts)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, MethodSendMessage, in, opts)
}

func (c *ChatServiceClient) GetChats(ctx context.Context, in *GetChatsRequest, opts ...grpc.CallOption) (*GetChatsResponse, error) {
	return invoke[GetChatsResponse](ctx, c.cc, MethodGetChats, in, opts)
}

func (c *ChatServiceClient) GetMessages(ctx context.Context, in *GetMessagesRequest, opts ...grpc.CallOption) (*GetMessagesResponse, error) {
	return invoke[GetMessagesResponse](ctx, c.cc, MethodGetMessages, in, opts)
}

func (c *ChatServiceClient) GetUser(ctx context.Context, in *GetUserRequest, opts ...grpc.CallOption) (*GetUserResponse, error) {
	return invoke[GetUserResponse](ctx, c.cc, MethodGetUser, in, opts)
}
