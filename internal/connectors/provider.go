package connectors

import "context"

// ExecutionProvider — единый контракт исполнителя операций платформы. Оба
// бэкенда (gRPC-коннектор и мок) соблюдают одну дисциплину ошибок: любая
// неуспешная операция возвращает *ExecError с классифицированным Kind.
type ExecutionProvider interface {
	Call(ctx context.Context, op string, payload []byte) ([]byte, error)
}
