package connectors

// Контракт gRPC-транспорта исполнения. Метод один, payload динамический
// (structpb.Struct), поэтому сгенерированные стабы не нужны: адаптер ходит
// через conn.Invoke, сервер коннектора регистрирует ServiceDesc вручную.
const (
	// ExecuteMethod — полное имя метода исполнения.
	ExecuteMethod = "/atlas.connector.v1.ConnectorService/Execute"

	// ServiceName используется при ручной регистрации ServiceDesc.
	ServiceName = "atlas.connector.v1.ConnectorService"

	// TokenMetadataKey — заголовок метаданных с сервисным JWT шлюза.
	TokenMetadataKey = "x-chatops-token"
)

// Поля конверта запроса/ответа внутри structpb.Struct.
const (
	FieldOp      = "op"
	FieldPayload = "payload"

	FieldStatus   = "status_code" // 0 — успех
	FieldErrKind  = "error_kind"
	FieldErrMsg   = "error_message"
	FieldResult   = "result"
)
