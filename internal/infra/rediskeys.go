package infra

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "chatops"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRosterReload — широковещательный сигнал «перечитай ростер».
	// Публикуется админ-инструментами после правки конфига; каждый инстанс
	// шлюза перечитывает секцию rbac и атомарно подменяет снапшот.
	RedisChanRosterReload = RedisNamespace + ":roster:reload"

	// RedisChanAdminAlerts — нотификации админам об отказах в привилегированных
	// операциях. Читает слой доставки чат-платформы.
	RedisChanAdminAlerts = RedisNamespace + ":alerts:denied"
)
