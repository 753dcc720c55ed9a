package domain

import "strings"

// Role — уровень доступа, который получает отправитель после резолва по ростеру.
type Role string

const (
	RoleAdmin       Role = "admin"        // Полный доступ ко всем операциям
	RoleUser        Role = "user"         // Только чтение и аналитика
	RoleSelfService Role = "self-service" // Только операции над собственными ресурсами
	RoleUnknown     Role = "unknown"      // Не найден в ростере — нулевые привилегии
)

// rank задает порядок ролей для сравнения "минимально требуемая роль".
// unknown(0) < self-service(1) < user(2) < admin(3)
var rank = map[Role]int{
	RoleUnknown:     0,
	RoleSelfService: 1,
	RoleUser:        2,
	RoleAdmin:       3,
}

// AtLeast сравнивает роли по рангу. Неизвестное значение роли трактуем как unknown.
func (r Role) AtLeast(min Role) bool {
	return rank[r] >= rank[min]
}

// Actor — резолвнутая личность отправителя на момент обработки одного сообщения.
// Собирается заново на каждый запрос из текущего снапшота ростера и не переживает его.
type Actor struct {
	ID       string   `json:"id"`      // Стабильный ID чат-платформы (например, "U1234567890")
	Aliases  []string `json:"aliases"` // Известные алиасы: handle, email (нормализованные)
	Role     Role     `json:"role"`
	SourceIP string   `json:"source_ip,omitempty"` // Наблюдаемый адрес источника (для self-only сценариев)
}

// HasAlias проверяет, принадлежит ли имя ресурса самому актору.
// Сравнение без учета регистра и ведущего '@' — так же, как матчится ростер.
// Email-алиас дополнительно матчится по локальной части: в ростере обычно
// лежит "john.doe@company.com", а db-пользователь называется "john.doe".
func (a Actor) HasAlias(name string) bool {
	want := NormalizeAlias(name)
	if want == "" {
		return false
	}
	if aliasMatches(NormalizeAlias(a.ID), want) {
		return true
	}
	for _, al := range a.Aliases {
		if aliasMatches(NormalizeAlias(al), want) {
			return true
		}
	}
	return false
}

func aliasMatches(alias, want string) bool {
	if alias == want {
		return true
	}
	if local, _, ok := strings.Cut(alias, "@"); ok && local != "" && local == want {
		return true
	}
	return false
}
