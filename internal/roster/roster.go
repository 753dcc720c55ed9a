package roster

import (
	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/infra"
)

// Snapshot — неизменяемый слепок ростера. Все матч-строки нормализованы один
// раз при сборке, резолв — чистый lookup по мапе без каскада сравнений.
// Снапшот никогда не мутируется после сборки: обработка одного сообщения
// видит строго одну консистентную версию ростера.
type Snapshot struct {
	entries map[string]domain.Role
	enabled bool // rbac.enabled=false — аварийный режим «все админы»

	// Сырые admin-записи нужны нотификатору (кому слать алерты)
	adminMatches []string
}

// Порядок определяет «first-defined-wins» при коллизии одной матч-строки
// в двух списках: admin объявлен раньше user, user раньше self-service.
var buildOrder = []domain.Role{domain.RoleAdmin, domain.RoleUser, domain.RoleSelfService}

// BuildSnapshot собирает снапшот из секции rbac конфига.
// Коллизии не мержатся и не усредняются: побеждает первая запись, а факт
// коллизии логируется как дефект конфигурации для операторов.
func BuildSnapshot(cfg infra.RBACConfig, logger *zap.Logger) *Snapshot {
	lists := map[domain.Role][]string{
		domain.RoleAdmin:       cfg.AdminUsers,
		domain.RoleUser:        cfg.Users,
		domain.RoleSelfService: cfg.SelfService,
	}

	s := &Snapshot{
		entries:      make(map[string]domain.Role),
		enabled:      cfg.Enabled,
		adminMatches: append([]string(nil), cfg.AdminUsers...),
	}

	for _, role := range buildOrder {
		for _, match := range lists[role] {
			key := domain.NormalizeAlias(match)
			if key == "" {
				continue
			}
			if prev, ok := s.entries[key]; ok {
				// Дефект конфига: один алиас в двух записях. Первая победила.
				logger.Warn("roster match string collision, first definition wins",
					zap.String("match", key),
					zap.String("kept_role", string(prev)),
					zap.String("ignored_role", string(role)),
				)
				continue
			}
			s.entries[key] = role
		}
	}

	return s
}

// Resolve превращает сырой идентификатор отправителя и его алиасы в Actor.
// Порядок матчинга: сначала сырой ID, затем алиасы по порядку. Отсутствие
// совпадения — не ошибка, а роль unknown (сигнал для движка политик).
func (s *Snapshot) Resolve(rawID string, rawAliases []string) domain.Actor {
	actor := domain.Actor{
		ID:      rawID,
		Aliases: rawAliases,
		Role:    domain.RoleUnknown,
	}

	if !s.enabled {
		// RBAC выключен оператором — осознанный аварийный режим
		actor.Role = domain.RoleAdmin
		return actor
	}

	if role, ok := s.entries[domain.NormalizeAlias(rawID)]; ok {
		actor.Role = role
		return actor
	}

	for _, alias := range rawAliases {
		if role, ok := s.entries[domain.NormalizeAlias(alias)]; ok {
			actor.Role = role
			return actor
		}
	}

	return actor
}

// AdminMatches возвращает admin-записи ростера как они заданы в конфиге.
func (s *Snapshot) AdminMatches() []string {
	return s.adminMatches
}

// Size возвращает количество записей (для логов и метрик).
func (s *Snapshot) Size() int {
	return len(s.entries)
}
