package policy

import (
	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/domain"
)

// Engine — точка принятия решений (PDP). Чистая функция от (Actor, Command)
// и статической таблицы правил: ни истории, ни лимитов, ни скрытого
// состояния — два одинаковых вызова всегда дают одинаковое решение.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("policy")}
}

// Authorize решает, может ли актор исполнить команду, и при необходимости
// сужает её (self-only). Порядок проверок важен и закреплен тестами:
// unknown-intent отсекается до любых ролевых проверок, а нерезолвнутая
// личность не получает ничего, кроме help.
func (e *Engine) Authorize(actor domain.Actor, cmd domain.Command) domain.Decision {
	// 1. Нераспознанный интент никогда не доходит до ролевой модели
	if cmd.Intent == domain.IntentUnknown {
		return domain.Deny(domain.DenyUnknownIntent)
	}

	rule := Lookup(cmd.Intent)

	// 2. help разрешен всем, включая unknown — ответ сам по себе role-filtered
	if cmd.Intent == domain.IntentGetHelp {
		return domain.Allow(cmd)
	}

	// 3. Нерезолвнутая личность — ноль привилегий, self-service включительно
	if actor.Role == domain.RoleUnknown {
		return domain.Deny(domain.DenyInsufficientRole)
	}

	// 4. Минимальная роль
	if !actor.Role.AtLeast(rule.MinRole) {
		return domain.Deny(domain.DenyInsufficientRole)
	}

	// 5. Self-only: не-админ обязан доказать владение целевым ресурсом.
	// Админ проходит с командой без изменений.
	if rule.Scope == domain.ScopeSelfOnly && actor.Role != domain.RoleAdmin {
		return e.authorizeSelfOnly(actor, cmd)
	}

	// 6. Разрешено
	return domain.Allow(cmd)
}

// authorizeSelfOnly проверяет владение по типу ресурса команды.
func (e *Engine) authorizeSelfOnly(actor domain.Actor, cmd domain.Command) domain.Decision {
	switch cmd.Intent {
	case domain.IntentManageAccessList:
		// Клиентскому IP не доверяем: принудительно подставляем наблюдаемый
		// адрес отправителя. Нет адреса — нечем доказать владение, отказ.
		if actor.SourceIP == "" {
			return domain.Deny(domain.DenyScopeViolation)
		}
		if supplied := cmd.Param(domain.ParamIP); supplied != "" && supplied != actor.SourceIP {
			e.logger.Info("access-list ip overridden by caller source",
				zap.String("actor", actor.ID),
				zap.String("supplied", supplied),
			)
		}
		return domain.Allow(cmd.WithParam(domain.ParamIP, actor.SourceIP))

	case domain.IntentResetPassword:
		username := cmd.Param(domain.ParamUsername)
		if username == "" {
			// Цель не названа — значит «свой» ресурс: сужаем до ID актора
			return domain.Allow(cmd.WithParam(domain.ParamUsername, actor.ID))
		}
		if actor.HasAlias(username) {
			return domain.Allow(cmd)
		}
		return domain.Deny(domain.DenyScopeViolation)

	default:
		// Self-only без известного способа доказать владение — отказ
		return domain.Deny(domain.DenyScopeViolation)
	}
}
