package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/atlas-chatops/internal/infra"

	"go.uber.org/zap"
)

// Server — серверная сторона транспорта исполнения. Принимает конверт
// structpb, проверяет сервисный токен шлюза и делегирует операцию
// провайдеру (в дев-контуре — моку). ServiceDesc регистрируется вручную,
// метод один и payload динамический, кодоген здесь избыточен.
type Server struct {
	provider ExecutionProvider
	auth     infra.AuthConfig
	logger   *zap.Logger
}

func NewServer(provider ExecutionProvider, auth infra.AuthConfig, logger *zap.Logger) *Server {
	return &Server{
		provider: provider,
		auth:     auth,
		logger:   logger.Named("connector-srv"),
	}
}

type executeService interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*executeService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(executeService).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExecuteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(executeService).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register подключает сервис к gRPC серверу.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

func (s *Server) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.verifyToken(ctx); err != nil {
		s.logger.Warn("rejected unauthenticated execute call", zap.Error(err))
		return nil, status.Error(codes.Unauthenticated, "invalid service token")
	}

	fields := req.AsMap()
	op, _ := fields[FieldOp].(string)
	if op == "" {
		return nil, status.Error(codes.InvalidArgument, "op field is required")
	}

	var payload []byte
	if m, ok := fields[FieldPayload].(map[string]interface{}); ok {
		payload, _ = json.Marshal(m)
	}

	data, err := s.provider.Call(ctx, op, payload)
	if err != nil {
		return errorEnvelope(op, err)
	}

	var resultMap map[string]interface{}
	if err := json.Unmarshal(data, &resultMap); err != nil {
		return nil, status.Error(codes.Internal, "provider returned non-object result")
	}

	return structpb.NewStruct(map[string]interface{}{
		FieldStatus: 0,
		FieldResult: resultMap,
	})
}

// errorEnvelope кодирует классифицированную ошибку провайдера в конверт
// ответа. Транспортный статус остается OK: для шлюза это прикладной
// результат, а не сбой канала.
func errorEnvelope(op string, err error) (*structpb.Struct, error) {
	kind := KindOf(err)

	code := 500
	switch kind {
	case KindNotFound:
		code = 404
	case KindPermissionDenied:
		code = 403
	case KindMalformed:
		code = 400
	case KindTransient:
		code = 503
	}

	var execErr *ExecError
	msg := err.Error()
	if errors.As(err, &execErr) {
		msg = execErr.Msg
	}

	return structpb.NewStruct(map[string]interface{}{
		FieldStatus:  code,
		FieldErrKind: string(kind),
		FieldErrMsg:  msg,
	})
}

// verifyToken валидирует HS256 JWT шлюза из метаданных вызова.
func (s *Server) verifyToken(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return fmt.Errorf("no metadata in call")
	}
	values := md.Get(TokenMetadataKey)
	if len(values) == 0 {
		return fmt.Errorf("service token is missing")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(values[0], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.auth.ServiceSecret), nil
	})
	if err != nil {
		return fmt.Errorf("token parse failed: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("token is not valid")
	}
	if s.auth.Issuer != "" && claims.Issuer != s.auth.Issuer {
		return fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}
	return nil
}
