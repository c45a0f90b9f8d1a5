// Package creditmarketv1 объявляет gRPC-сервис creditmarket.v1.CreditMarketService.
// Сообщения — google.protobuf.Struct: JSON-подобные объекты с полями в snake_case.
package creditmarketv1

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName — полное имя сервиса.
	ServiceName = "creditmarket.v1.CreditMarketService"
	// FileName — имя файла дескриптора в реестре protobuf.
	FileName = "creditmarket/v1/credit_market_service.proto"
)

// Полные имена методов для политик доступа и идемпотентности.
const (
	MethodAddCartItem        = "/" + ServiceName + "/AddCartItem"
	MethodUpdateCartItem     = "/" + ServiceName + "/UpdateCartItem"
	MethodRemoveCartItem     = "/" + ServiceName + "/RemoveCartItem"
	MethodGetCart            = "/" + ServiceName + "/GetCart"
	MethodQuoteCart          = "/" + ServiceName + "/QuoteCart"
	MethodCheckout           = "/" + ServiceName + "/Checkout"
	MethodGetAccount         = "/" + ServiceName + "/GetAccount"
	MethodListTransactions   = "/" + ServiceName + "/ListTransactions"
	MethodGenerateStatement  = "/" + ServiceName + "/GenerateStatement"
	MethodRecordPayment      = "/" + ServiceName + "/RecordPayment"
	MethodListStatements     = "/" + ServiceName + "/ListStatements"
	MethodGenerateSettlement = "/" + ServiceName + "/GenerateSettlement"
	MethodMarkSettled        = "/" + ServiceName + "/MarkSettled"
	MethodListSettlements    = "/" + ServiceName + "/ListSettlements"
	MethodSubmitVerification = "/" + ServiceName + "/SubmitVerification"
	MethodDecideVerification = "/" + ServiceName + "/DecideVerification"
	MethodListVerifications  = "/" + ServiceName + "/ListVerifications"
	MethodSearchDirectory    = "/" + ServiceName + "/SearchDirectory"
	MethodGetDashboard       = "/" + ServiceName + "/GetDashboard"
	MethodSetCreditLimit     = "/" + ServiceName + "/SetCreditLimit"
)

// Methods перечисляет короткие имена методов в порядке объявления.
var Methods = []string{
	"AddCartItem",
	"UpdateCartItem",
	"RemoveCartItem",
	"GetCart",
	"QuoteCart",
	"Checkout",
	"GetAccount",
	"ListTransactions",
	"GenerateStatement",
	"RecordPayment",
	"ListStatements",
	"GenerateSettlement",
	"MarkSettled",
	"ListSettlements",
	"SubmitVerification",
	"DecideVerification",
	"ListVerifications",
	"SearchDirectory",
	"GetDashboard",
	"SetCreditLimit",
}

// CreditMarketServiceServer — серверная часть API.
type CreditMarketServiceServer interface {
	AddCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QuoteCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Checkout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateStatement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStatements(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateSettlement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkSettled(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSettlements(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitVerification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DecideVerification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListVerifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchDirectory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDashboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetCreditLimit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedCreditMarketServiceServer встраивается в реализации для прямой совместимости.
type UnimplementedCreditMarketServiceServer struct{}

func (UnimplementedCreditMarketServiceServer) AddCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AddCartItem not implemented")
}

func (UnimplementedCreditMarketServiceServer) UpdateCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateCartItem not implemented")
}

func (UnimplementedCreditMarketServiceServer) RemoveCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveCartItem not implemented")
}

func (UnimplementedCreditMarketServiceServer) GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCart not implemented")
}

func (UnimplementedCreditMarketServiceServer) QuoteCart(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method QuoteCart not implemented")
}

func (UnimplementedCreditMarketServiceServer) Checkout(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Checkout not implemented")
}

func (UnimplementedCreditMarketServiceServer) GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAccount not implemented")
}

func (UnimplementedCreditMarketServiceServer) ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListTransactions not implemented")
}

func (UnimplementedCreditMarketServiceServer) GenerateStatement(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GenerateStatement not implemented")
}

func (UnimplementedCreditMarketServiceServer) RecordPayment(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method RecordPayment not implemented")
}

func (UnimplementedCreditMarketServiceServer) ListStatements(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListStatements not implemented")
}

func (UnimplementedCreditMarketServiceServer) GenerateSettlement(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GenerateSettlement not implemented")
}

func (UnimplementedCreditMarketServiceServer) MarkSettled(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkSettled not implemented")
}

func (UnimplementedCreditMarketServiceServer) ListSettlements(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListSettlements not implemented")
}

func (UnimplementedCreditMarketServiceServer) SubmitVerification(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitVerification not implemented")
}

func (UnimplementedCreditMarketServiceServer) DecideVerification(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method DecideVerification not implemented")
}

func (UnimplementedCreditMarketServiceServer) ListVerifications(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListVerifications not implemented")
}

func (UnimplementedCreditMarketServiceServer) SearchDirectory(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SearchDirectory not implemented")
}

func (UnimplementedCreditMarketServiceServer) GetDashboard(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDashboard not implemented")
}

func (UnimplementedCreditMarketServiceServer) SetCreditLimit(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SetCreditLimit not implemented")
}

// CreditMarketServiceClient — клиентская часть API.
type CreditMarketServiceClient interface {
	AddCartItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateCartItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RemoveCartItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetCart(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	QuoteCart(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Checkout(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListTransactions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GenerateStatement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RecordPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListStatements(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GenerateSettlement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	MarkSettled(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListSettlements(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SubmitVerification(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DecideVerification(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListVerifications(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SearchDirectory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetDashboard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetCreditLimit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type creditMarketServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCreditMarketServiceClient создаёт клиента поверх соединения.
func NewCreditMarketServiceClient(cc grpc.ClientConnInterface) CreditMarketServiceClient {
	return &creditMarketServiceClient{cc: cc}
}

func (c *creditMarketServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *creditMarketServiceClient) AddCartItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAddCartItem, in, opts)
}

func (c *creditMarketServiceClient) UpdateCartItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodUpdateCartItem, in, opts)
}

func (c *creditMarketServiceClient) RemoveCartItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRemoveCartItem, in, opts)
}

func (c *creditMarketServiceClient) GetCart(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetCart, in, opts)
}

func (c *creditMarketServiceClient) QuoteCart(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodQuoteCart, in, opts)
}

func (c *creditMarketServiceClient) Checkout(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCheckout, in, opts)
}

func (c *creditMarketServiceClient) GetAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetAccount, in, opts)
}

func (c *creditMarketServiceClient) ListTransactions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListTransactions, in, opts)
}

func (c *creditMarketServiceClient) GenerateStatement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGenerateStatement, in, opts)
}

func (c *creditMarketServiceClient) RecordPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRecordPayment, in, opts)
}

func (c *creditMarketServiceClient) ListStatements(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListStatements, in, opts)
}

func (c *creditMarketServiceClient) GenerateSettlement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGenerateSettlement, in, opts)
}

func (c *creditMarketServiceClient) MarkSettled(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodMarkSettled, in, opts)
}

func (c *creditMarketServiceClient) ListSettlements(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListSettlements, in, opts)
}

func (c *creditMarketServiceClient) SubmitVerification(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSubmitVerification, in, opts)
}

func (c *creditMarketServiceClient) DecideVerification(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDecideVerification, in, opts)
}

func (c *creditMarketServiceClient) ListVerifications(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListVerifications, in, opts)
}

func (c *creditMarketServiceClient) SearchDirectory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSearchDirectory, in, opts)
}

func (c *creditMarketServiceClient) GetDashboard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetDashboard, in, opts)
}

func (c *creditMarketServiceClient) SetCreditLimit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSetCreditLimit, in, opts)
}

// RegisterCreditMarketServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterCreditMarketServiceServer(s grpc.ServiceRegistrar, srv CreditMarketServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryCall func(srv CreditMarketServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(CreditMarketServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc — дескриптор сервиса для grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CreditMarketServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("AddCartItem", CreditMarketServiceServer.AddCartItem),
		unaryMethod("UpdateCartItem", CreditMarketServiceServer.UpdateCartItem),
		unaryMethod("RemoveCartItem", CreditMarketServiceServer.RemoveCartItem),
		unaryMethod("GetCart", CreditMarketServiceServer.GetCart),
		unaryMethod("QuoteCart", CreditMarketServiceServer.QuoteCart),
		unaryMethod("Checkout", CreditMarketServiceServer.Checkout),
		unaryMethod("GetAccount", CreditMarketServiceServer.GetAccount),
		unaryMethod("ListTransactions", CreditMarketServiceServer.ListTransactions),
		unaryMethod("GenerateStatement", CreditMarketServiceServer.GenerateStatement),
		unaryMethod("RecordPayment", CreditMarketServiceServer.RecordPayment),
		unaryMethod("ListStatements", CreditMarketServiceServer.ListStatements),
		unaryMethod("GenerateSettlement", CreditMarketServiceServer.GenerateSettlement),
		unaryMethod("MarkSettled", CreditMarketServiceServer.MarkSettled),
		unaryMethod("ListSettlements", CreditMarketServiceServer.ListSettlements),
		unaryMethod("SubmitVerification", CreditMarketServiceServer.SubmitVerification),
		unaryMethod("DecideVerification", CreditMarketServiceServer.DecideVerification),
		unaryMethod("ListVerifications", CreditMarketServiceServer.ListVerifications),
		unaryMethod("SearchDirectory", CreditMarketServiceServer.SearchDirectory),
		unaryMethod("GetDashboard", CreditMarketServiceServer.GetDashboard),
		unaryMethod("SetCreditLimit", CreditMarketServiceServer.SetCreditLimit),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// File — дескриптор файла сервиса; регистрируется в protoregistry.GlobalFiles,
// чтобы server reflection отдавал схему клиентам вроде grpcurl.
var File protoreflect.FileDescriptor

func init() {
	fd, err := buildFile()
	if err != nil {
		panic(fmt.Sprintf("creditmarketv1: build descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("creditmarketv1: register descriptor: %v", err))
	}
	File = fd
}

func buildFile() (protoreflect.FileDescriptor, error) {
	structName := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())

	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(Methods))
	for _, name := range Methods {
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       stringPtr(name),
			InputType:  stringPtr(structName),
			OutputType: stringPtr(structName),
		})
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       stringPtr(FileName),
		Package:    stringPtr("creditmarket.v1"),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   stringPtr("CreditMarketService"),
			Method: methods,
		}},
		Options: &descriptorpb.FileOptions{
			GoPackage: stringPtr("github.com/vladislavdragonenkov/creditmarket/proto/creditmarket/v1;creditmarketv1"),
		},
		Syntax: stringPtr("proto3"),
	}
	return protodesc.NewFile(fdp, protoregistry.GlobalFiles)
}

func stringPtr(s string) *string { return &s }
