package domain

// Scope определяет ширину ресурсов, которую допускает правило политики.
type Scope string

const (
	ScopeUnrestricted Scope = "unrestricted" // Любая цель в пределах роли
	ScopeSelfOnly     Scope = "self-only"    // Только собственный ресурс актора
)

// DenyReason — классификация отказа. Каждая причина рендерится отдельным
// сообщением пользователю, без раскрытия внутренних деталей.
type DenyReason string

const (
	DenyInsufficientRole DenyReason = "insufficient-role"
	DenyScopeViolation   DenyReason = "scope-violation"
	DenyUnknownIntent    DenyReason = "unknown-intent"
)

// Decision — результат авторизации пары (Actor, Command).
// При Allowed команда может быть сужена (например, IP заменен на адрес актора),
// поэтому диспетчеру передается именно Command из решения, а не исходная.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
	Command Command    `json:"-"`
}

// Allow собирает разрешающее решение с (возможно суженной) командой.
func Allow(cmd Command) Decision {
	return Decision{Allowed: true, Command: cmd}
}

// Deny собирает отказ с причиной. Zero Trust: без причины отказ невалиден,
// поэтому пустую причину принудительно трактуем как insufficient-role.
func Deny(reason DenyReason) Decision {
	if reason == "" {
		reason = DenyInsufficientRole
	}
	return Decision{Allowed: false, Reason: reason}
}
