package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the fully qualified name the payment RPCs are served under.
const ServiceName = "beancounter.BeanCounter"

// codecName is the content-subtype clients select to call the payment
// service (content-type application/grpc+json).
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals the struct-typed wire messages. It is registered under
// its own content-subtype, so the default proto codec and the standard
// health service are untouched.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

// paymentService is the wire contract the Server implements.
type paymentService interface {
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	GetTransactions(context.Context, *GetTransactionsRequest) (*GetTransactionsResponse, error)
	AddCredits(context.Context, *AddCreditsRequest) (*AddCreditsResponse, error)
	AddPromo(context.Context, *AddPromoRequest) (*AddPromoResponse, error)
	AddPayment(context.Context, *AddPaymentRequest) (*AddPaymentResponse, error)
	SettlePayment(context.Context, *SettlePaymentRequest) (*SettlePaymentResponse, error)
	ConnectPayout(context.Context, *ConnectPayoutRequest) (*ConnectPayoutResponse, error)
	StripeCharge(context.Context, *StripeChargeRequest) (*StripeChargeResponse, error)
	GetConnectAccount(context.Context, *GetConnectAccountRequest) (*GetConnectAccountResponse, error)
	CompleteConnectOauth(context.Context, *CompleteConnectOauthRequest) (*CompleteConnectOauthResponse, error)
	UpdateConnectAccountPrefs(context.Context, *UpdateConnectAccountPrefsRequest) (*UpdateConnectAccountPrefsResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
}

var _ paymentService = (*Server)(nil)

// unary adapts one handler method into the grpc.MethodDesc shape: decode the
// request, then run the handler through the server's interceptor chain.
func unary[Req any](name string, invoke func(*Server, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return invoke(srv.(*Server), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, func(ctx context.Context, r interface{}) (interface{}, error) {
				return invoke(srv.(*Server), ctx, r.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*paymentService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetBalance", func(s *Server, ctx context.Context, req *GetBalanceRequest) (interface{}, error) {
			return s.GetBalance(ctx, req)
		}),
		unary("GetTransactions", func(s *Server, ctx context.Context, req *GetTransactionsRequest) (interface{}, error) {
			return s.GetTransactions(ctx, req)
		}),
		unary("AddCredits", func(s *Server, ctx context.Context, req *AddCreditsRequest) (interface{}, error) {
			return s.AddCredits(ctx, req)
		}),
		unary("AddPromo", func(s *Server, ctx context.Context, req *AddPromoRequest) (interface{}, error) {
			return s.AddPromo(ctx, req)
		}),
		unary("AddPayment", func(s *Server, ctx context.Context, req *AddPaymentRequest) (interface{}, error) {
			return s.AddPayment(ctx, req)
		}),
		unary("SettlePayment", func(s *Server, ctx context.Context, req *SettlePaymentRequest) (interface{}, error) {
			return s.SettlePayment(ctx, req)
		}),
		unary("ConnectPayout", func(s *Server, ctx context.Context, req *ConnectPayoutRequest) (interface{}, error) {
			return s.ConnectPayout(ctx, req)
		}),
		unary("StripeCharge", func(s *Server, ctx context.Context, req *StripeChargeRequest) (interface{}, error) {
			return s.StripeCharge(ctx, req)
		}),
		unary("GetConnectAccount", func(s *Server, ctx context.Context, req *GetConnectAccountRequest) (interface{}, error) {
			return s.GetConnectAccount(ctx, req)
		}),
		unary("CompleteConnectOauth", func(s *Server, ctx context.Context, req *CompleteConnectOauthRequest) (interface{}, error) {
			return s.CompleteConnectOauth(ctx, req)
		}),
		unary("UpdateConnectAccountPrefs", func(s *Server, ctx context.Context, req *UpdateConnectAccountPrefsRequest) (interface{}, error) {
			return s.UpdateConnectAccountPrefs(ctx, req)
		}),
		unary("GetStats", func(s *Server, ctx context.Context, req *GetStatsRequest) (interface{}, error) {
			return s.GetStats(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "beancounter",
}
