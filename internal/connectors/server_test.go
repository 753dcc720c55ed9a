package connectors

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/atlas-chatops/internal/infra"
)

func testAuth() infra.AuthConfig {
	return infra.AuthConfig{
		ServiceSecret: "test-secret",
		TokenTTL:      time.Minute,
		Issuer:        "atlas-chatops",
	}
}

func signedContext(t *testing.T, secret, issuer string) context.Context {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "chatops-gateway",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(TokenMetadataKey, token))
}

func executeReq(t *testing.T, op string, payload map[string]interface{}) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]interface{}{
		FieldOp:      op,
		FieldPayload: payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestServerExecuteSuccess(t *testing.T) {
	srv := NewServer(NewMockAtlasConnector(), testAuth(), zap.NewNop())
	ctx := signedContext(t, "test-secret", "atlas-chatops")

	resp, err := srv.Execute(ctx, executeReq(t, "atlas.clusters.list", nil))
	if err != nil {
		t.Fatal(err)
	}
	fields := resp.AsMap()
	if code, _ := fields[FieldStatus].(float64); code != 0 {
		t.Fatalf("status = %v, want 0", fields[FieldStatus])
	}
	result, _ := fields[FieldResult].(map[string]interface{})
	if _, ok := result["clusters"]; !ok {
		t.Errorf("result = %v, want clusters field", result)
	}
}

func TestServerExecuteRejectsBadToken(t *testing.T) {
	srv := NewServer(NewMockAtlasConnector(), testAuth(), zap.NewNop())

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no metadata", context.Background()},
		{"wrong secret", signedContext(t, "other-secret", "atlas-chatops")},
		{"wrong issuer", signedContext(t, "test-secret", "someone-else")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.Execute(tt.ctx, executeReq(t, "atlas.clusters.list", nil))
			if status.Code(err) != codes.Unauthenticated {
				t.Errorf("err = %v, want Unauthenticated", err)
			}
		})
	}
}

func TestServerExecuteErrorEnvelope(t *testing.T) {
	srv := NewServer(NewMockAtlasConnector(), testAuth(), zap.NewNop())
	ctx := signedContext(t, "test-secret", "atlas-chatops")

	resp, err := srv.Execute(ctx, executeReq(t, "atlas.clusters.inspect",
		map[string]interface{}{"cluster": "nope"}))
	// Прикладная ошибка едет в конверте, транспортный статус OK
	if err != nil {
		t.Fatal(err)
	}
	fields := resp.AsMap()
	if code, _ := fields[FieldStatus].(float64); code != 404 {
		t.Errorf("status = %v, want 404", fields[FieldStatus])
	}
	if kind, _ := fields[FieldErrKind].(string); kind != string(KindNotFound) {
		t.Errorf("error kind = %v, want not-found", fields[FieldErrKind])
	}
}

func TestServerExecuteRequiresOp(t *testing.T) {
	srv := NewServer(NewMockAtlasConnector(), testAuth(), zap.NewNop())
	ctx := signedContext(t, "test-secret", "atlas-chatops")

	req, _ := structpb.NewStruct(map[string]interface{}{})
	_, err := srv.Execute(ctx, req)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}
