package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodeInviteNotPending, "invite is not pending")
	target := New(CodeInviteNotPending, "different message")
	if !errors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}

	other := New(CodeNotFound, "missing")
	if errors.Is(err, other) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("connection refused")
	err := Wrap(CodeClassifierUnavailable, "classifier call failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if GetCode(err) != CodeClassifierUnavailable {
		t.Fatalf("GetCode = %q, want %q", GetCode(err), CodeClassifierUnavailable)
	}
}

func TestGetCodeUnknownForPlainError(t *testing.T) {
	t.Parallel()

	if got := GetCode(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("GetCode = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeInviteEmptyPropertyID, codes.InvalidArgument},
		{CodeInviteInvalidEmail, codes.InvalidArgument},
		{CodeInviteNotPending, codes.FailedPrecondition},
		{CodeTenantAlreadyLinked, codes.FailedPrecondition},
		{CodeNotFound, codes.NotFound},
		{CodeInviteWrongRecipient, codes.PermissionDenied},
		{CodeUnauthenticated, codes.Unauthenticated},
		{CodeInviteIncomplete, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Errorf("%s.GRPCCode() = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestHandleErrorProducesStatus(t *testing.T) {
	t.Parallel()

	err := HandleError(New(CodeInviteWrongRecipient, "invite belongs to another tenant"))
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected a gRPC status error, got %v", err)
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.PermissionDenied)
	}

	if HandleError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	unknown := HandleError(fmt.Errorf("boom"))
	st, ok = status.FromError(unknown)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("expected internal status for unknown error, got %v", unknown)
	}
}

func TestUnaryServerInterceptorConvertsErrors(t *testing.T) {
	t.Parallel()

	interceptor := UnaryServerInterceptor()

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return nil, New(CodeInviteNotPending, "invite is no longer pending")
	})
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected a gRPC status error, got %v", err)
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.FailedPrecondition)
	}

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
	if resp != "ok" {
		t.Fatalf("interceptor response = %v, want ok", resp)
	}
}
