package creditmarketv1

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeClientConn struct {
	invoke func(context.Context, string, any, any, ...grpc.CallOption) error
}

func (f *fakeClientConn) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	if f.invoke == nil {
		return errors.New("unexpected Invoke call")
	}
	return f.invoke(ctx, method, args, reply, opts...)
}

func (f *fakeClientConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

func TestFileDescriptorRegistered(t *testing.T) {
	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	require.NoError(t, err)
	require.Equal(t, File.Services().Get(0).FullName(), desc.FullName())

	methods := File.Services().Get(0).Methods()
	require.Equal(t, len(Methods), methods.Len())
	require.Equal(t, len(Methods), len(ServiceDesc.Methods))
	for i, name := range Methods {
		require.Equal(t, name, string(methods.Get(i).Name()))
		require.Equal(t, "google.protobuf.Struct", string(methods.Get(i).Input().FullName()))
	}
}

func TestClientUsesFullMethodNames(t *testing.T) {
	var called []string
	conn := &fakeClientConn{
		invoke: func(_ context.Context, method string, _ any, reply any, _ ...grpc.CallOption) error {
			called = append(called, method)
			out := reply.(*structpb.Struct)
			out.Fields = map[string]*structpb.Value{"ok": structpb.NewBoolValue(true)}
			return nil
		},
	}
	client := NewCreditMarketServiceClient(conn)

	resp, err := client.Checkout(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	require.True(t, resp.Fields["ok"].GetBoolValue())

	_, err = client.GetCart(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	require.Equal(t, []string{MethodCheckout, MethodGetCart}, called)
}

func TestClientPropagatesErrors(t *testing.T) {
	conn := &fakeClientConn{
		invoke: func(context.Context, string, any, any, ...grpc.CallOption) error {
			return status.Error(codes.Unavailable, "down")
		},
	}
	_, err := NewCreditMarketServiceClient(conn).GetAccount(context.Background(), &structpb.Struct{})
	require.Equal(t, codes.Unavailable, status.Code(err))
}

type echoServer struct {
	UnimplementedCreditMarketServiceServer
}

func (echoServer) GetCart(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func TestServiceDesc_ServesOverBufconn(t *testing.T) {
	listener := bufconn.Listen(1024 * 1024)
	var intercepted []string
	server := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		intercepted = append(intercepted, info.FullMethod)
		return handler(ctx, req)
	}))
	RegisterCreditMarketServiceServer(server, echoServer{})
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := NewCreditMarketServiceClient(conn)
	in, err := structpb.NewStruct(map[string]any{"customer_id": "cust-1"})
	require.NoError(t, err)

	out, err := client.GetCart(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "cust-1", out.Fields["customer_id"].GetStringValue())

	_, err = client.Checkout(context.Background(), in)
	require.Equal(t, codes.Unimplemented, status.Code(err))
	require.Equal(t, []string{MethodGetCart, MethodCheckout}, intercepted)
}
