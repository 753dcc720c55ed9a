package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/atlas-chatops/internal/infra"
)

// GRPCAdapter транслирует вызовы исполнения в gRPC к Atlas-коннектору.
// Каждый вызов подписывается короткоживущим сервисным токеном: шлюз
// аутентифицирует себя перед слоем исполнения, а не наоборот.
type GRPCAdapter struct {
	conn *grpc.ClientConn
	auth infra.AuthConfig
}

func NewGRPCAdapter(conn *grpc.ClientConn, auth infra.AuthConfig) *GRPCAdapter {
	return &GRPCAdapter{conn: conn, auth: auth}
}

// Call реализует интерфейс ExecutionProvider.
func (a *GRPCAdapter) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	var m map[string]interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, &ExecError{Kind: KindMalformed, Op: op, Msg: "payload is not valid json", Cause: err}
		}
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		FieldOp:      op,
		FieldPayload: m,
	})
	if err != nil {
		return nil, &ExecError{Kind: KindMalformed, Op: op, Msg: "failed to build request struct", Cause: err}
	}

	token, err := a.serviceToken()
	if err != nil {
		return nil, fmt.Errorf("failed to sign service token: %w", err)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, TokenMetadataKey, token)

	// Защитный таймаут уровня адаптера: даже если слой надежности свой
	// не выставил, один вызов не может висеть бесконечно
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, ExecuteMethod, req, resp); err != nil {
		return nil, classifyGRPCError(op, err)
	}

	fields := resp.AsMap()
	if code, _ := fields[FieldStatus].(float64); code != 0 {
		kind, _ := fields[FieldErrKind].(string)
		msg, _ := fields[FieldErrMsg].(string)
		return nil, &ExecError{Kind: normalizeKind(kind), Op: op, Msg: msg}
	}

	result, _ := fields[FieldResult].(map[string]interface{})
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connector result: %w", err)
	}
	return out, nil
}

// serviceToken выпускает HS256 JWT с TTL из конфига.
func (a *GRPCAdapter) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.auth.Issuer,
		Subject:   "chatops-gateway",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.auth.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.auth.ServiceSecret))
}

// classifyGRPCError мапит gRPC статусы в нашу таксономию.
func classifyGRPCError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &ExecError{Kind: KindTransient, Op: op, Msg: "transport failure", Cause: err}
	}
	switch st.Code() {
	case codes.NotFound:
		return &ExecError{Kind: KindNotFound, Op: op, Msg: st.Message(), Cause: err}
	case codes.PermissionDenied, codes.Unauthenticated:
		return &ExecError{Kind: KindPermissionDenied, Op: op, Msg: st.Message(), Cause: err}
	case codes.InvalidArgument:
		return &ExecError{Kind: KindMalformed, Op: op, Msg: st.Message(), Cause: err}
	case codes.ResourceExhausted:
		return &ThrottleError{RetryAfter: 2 * time.Second, Cause: err}
	default:
		// Unavailable, DeadlineExceeded и прочее — кандидаты на один повтор
		return &ExecError{Kind: KindTransient, Op: op, Msg: st.Message(), Cause: err}
	}
}

func normalizeKind(kind string) ErrorKind {
	switch ErrorKind(kind) {
	case KindNotFound, KindPermissionDenied, KindMalformed, KindTransient:
		return ErrorKind(kind)
	default:
		return KindTransient
	}
}
