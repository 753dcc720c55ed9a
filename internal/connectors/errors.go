package connectors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind — классификация отказа исполнения. От нее зависит поведение
// диспетчера: transient получает один повтор, остальные отдаются сразу.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not-found"
	KindPermissionDenied ErrorKind = "permission-denied"
	KindMalformed        ErrorKind = "malformed-request"
	KindTransient        ErrorKind = "transient"
)

// ExecError — типизированная ошибка вызова коннектора.
type ExecError struct {
	Kind  ErrorKind
	Op    string
	Msg   string
	Cause error
}

func (e *ExecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connector %s [%s]: %s: %v", e.Op, e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("connector %s [%s]: %s", e.Op, e.Kind, e.Msg)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// NewExecError — конструктор с обязательной классификацией.
func NewExecError(kind ErrorKind, op, msg string) *ExecError {
	return &ExecError{Kind: kind, Op: op, Msg: msg}
}

// KindOf возвращает классификацию ошибки. Неклассифицированные ошибки
// (сырые сетевые, таймауты контекста) считаем transient — им положен повтор,
// а наружу они в любом случае уйдут как «временно недоступно».
func KindOf(err error) ErrorKind {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return KindTransient
	}
	return KindTransient
}

// IsRetryable сообщает, имеет ли смысл единственный повтор.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// ThrottleError — коннектор попросил подождать (например, вычитал Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
