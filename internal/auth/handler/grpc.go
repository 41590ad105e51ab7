// Package handler exposes the OTP auth service over gRPC as haritsetu.otp.v1.OTPAuthService.
// Requests and responses are google.protobuf.Struct messages.
package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"haritsetu/backend/internal/account/domain"
	"haritsetu/backend/internal/auth/service"
	"haritsetu/backend/internal/otp"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "haritsetu.otp.v1.OTPAuthService"

// errorDomain is the ErrorInfo domain attached to gate rejections.
const errorDomain = "haritsetu.in"

// Service is the auth service surface used by the handler.
type Service interface {
	RequestOTP(ctx context.Context, identifier, purpose string) (*service.RequestResult, error)
	SubmitOTP(ctx context.Context, identifier, code, purpose string) (*service.SubmitResult, error)
	CompleteSignup(ctx context.Context, identifier string, profile service.Profile) (*service.SignupResult, error)
}

// OTPAuthServer is the server API for OTPAuthService.
type OTPAuthServer interface {
	RequestOTP(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitOTP(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteSignup(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements OTPAuthServer on top of Service.
type Server struct {
	svc Service
}

// NewServer returns a Server. If svc is nil every RPC returns Unimplemented.
func NewServer(svc Service) *Server {
	return &Server{svc: svc}
}

// RequestOTP sends a code. Request: {identifier, purpose}. Response: {status, channel, identifier, expires_in_seconds}.
func (s *Server) RequestOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method RequestOTP not implemented")
	}
	res, err := s.svc.RequestOTP(ctx, field(req, "identifier"), field(req, "purpose"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"status":             res.Status,
		"channel":            res.Channel.String(),
		"identifier":         res.Identifier.String(),
		"expires_in_seconds": res.ExpiresIn.Seconds(),
	})
}

// SubmitOTP verifies a code. Request: {identifier, code, purpose}.
// Response: {status, verified} plus {account, token, expires_at} for a verified login.
func (s *Server) SubmitOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method SubmitOTP not implemented")
	}
	res, err := s.svc.SubmitOTP(ctx, field(req, "identifier"), field(req, "code"), field(req, "purpose"))
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]interface{}{
		"status":   res.Status,
		"verified": res.Verdict == otp.VerdictValid,
	}
	if res.Account != nil {
		out["account"] = accountMap(res.Account)
		out["token"] = res.Token
		out["expires_at"] = res.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return newStruct(out)
}

// CompleteSignup creates the account. Request: {identifier, name, email?, phone?, district?,
// taluka?, village?, role?}. Response: {account, token, expires_at}.
func (s *Server) CompleteSignup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method CompleteSignup not implemented")
	}
	profile := service.Profile{
		Name:     field(req, "name"),
		Email:    field(req, "email"),
		Phone:    field(req, "phone"),
		District: field(req, "district"),
		Taluka:   field(req, "taluka"),
		Village:  field(req, "village"),
		Role:     field(req, "role"),
	}
	res, err := s.svc.CompleteSignup(ctx, field(req, "identifier"), profile)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"account":    accountMap(res.Account),
		"token":      res.Token,
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func field(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func accountMap(a *domain.Account) map[string]interface{} {
	return map[string]interface{}{
		"id":         a.ID,
		"identifier": a.Identifier,
		"phone":      a.Phone,
		"email":      a.Email,
		"name":       a.Name,
		"district":   a.District,
		"taluka":     a.Taluka,
		"village":    a.Village,
		"role":       string(a.Role),
		"verified":   a.Verified,
		"created_at": a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newStruct(m map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return st, nil
}

// toStatus maps service errors to gRPC status codes. Gate rejections carry an ErrorInfo
// whose metadata has account_exists so clients can redirect to login or signup.
func toStatus(err error) error {
	var ve *otp.ValidationError
	var ge *service.GateError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.As(err, &ge):
		code := codes.FailedPrecondition
		switch {
		case errors.Is(ge, service.ErrAccountNotFound):
			code = codes.NotFound
		case errors.Is(ge, service.ErrAccountExists):
			code = codes.AlreadyExists
		}
		st := status.New(code, ge.Error())
		if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{
			Reason: strings.ToUpper(string(ge.Reason)),
			Domain: errorDomain,
			Metadata: map[string]string{
				"purpose":        string(ge.Purpose),
				"account_exists": boolString(ge.AccountExists),
			},
		}); derr == nil {
			st = withInfo
		}
		return st.Err()
	case errors.Is(err, service.ErrSignupNotVerified):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, otp.ErrDelivery):
		return status.Error(codes.Unavailable, "could not deliver verification code, try again")
	case errors.Is(err, otp.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "verification temporarily unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
