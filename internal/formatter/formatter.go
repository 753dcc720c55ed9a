package formatter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/engine"
	"github.com/xela07ax/atlas-chatops/internal/policy"

	"go.uber.org/zap"
)

// Polisher — необязательная LLM-шлифовка готового текста. Любая ошибка
// означает откат на детерминированный вариант, содержание ответа от
// ассистента не зависит никогда.
type Polisher interface {
	Polish(ctx context.Context, draft string) (string, error)
}

// Formatter превращает решения и результаты пайплайна в текст для чата.
// Тексты отказов фиксированы и различимы по причине, но не раскрывают
// существование ресурсов и состав ростера.
type Formatter struct {
	polisher Polisher // nil — без шлифовки
	logger   *zap.Logger
}

func New(polisher Polisher, logger *zap.Logger) *Formatter {
	return &Formatter{
		polisher: polisher,
		logger:   logger.Named("formatter"),
	}
}

// Тексты отказов. Insufficient-role и scope-violation обязаны отличаться:
// первый говорит «не твой уровень», второй — «только свои ресурсы».
const (
	msgUnknownIntent = "I didn't understand that request. Try `help` to see what I can do."
	msgDeniedRole    = "Sorry, your role does not permit this operation. Ask an administrator if you believe you need access."
	msgDeniedScope   = "You can only run this operation on your own resources (your IP, your database user)."
	msgUnknownActor  = "Sorry, I don't recognize you. Access to platform operations requires being on the roster."
)

// FormatDenial рендерит отказ авторизации. Для неизвестного актора текст
// единый независимо от запрошенной операции — нельзя дать прощупать,
// какие операции существуют.
func (f *Formatter) FormatDenial(actor domain.Actor, decision domain.Decision) string {
	if decision.Reason == domain.DenyUnknownIntent {
		return msgUnknownIntent
	}
	if actor.Role == domain.RoleUnknown {
		return msgUnknownActor
	}
	switch decision.Reason {
	case domain.DenyScopeViolation:
		return msgDeniedScope
	default:
		return msgDeniedRole
	}
}

// FormatValidation превращает нехватку параметров в уточняющий вопрос.
func (f *Formatter) FormatValidation(verr *engine.ValidationError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I understood the request, but I'm missing: %s.", strings.Join(verr.Missing, ", "))
	if verr.Usage != "" {
		fmt.Fprintf(&b, "\nExample: `%s`", verr.Usage)
	}
	return b.String()
}

// FormatOutcome рендерит итоги исполнения. При fan-out результаты уже
// отсортированы по именам баз, порядок в ответе детерминирован.
func (f *Formatter) FormatOutcome(ctx context.Context, outcome *engine.Outcome) string {
	var b strings.Builder

	for i, res := range outcome.Results {
		if i > 0 {
			b.WriteString("\n")
		}
		if res.Err != nil {
			b.WriteString(f.formatError(res))
			continue
		}
		b.WriteString(f.formatResult(outcome.Intent, res))
	}

	return f.polish(ctx, b.String())
}

func (f *Formatter) formatError(res engine.Result) string {
	prefix := ""
	if res.Database != "" {
		prefix = fmt.Sprintf("*%s*: ", res.Database)
	}
	switch connectors.KindOf(res.Err) {
	case connectors.KindNotFound:
		return prefix + "not found. Check the name and try again."
	case connectors.KindPermissionDenied:
		return prefix + "the platform rejected the operation."
	case connectors.KindMalformed:
		return prefix + "the request was malformed. Try rephrasing it."
	default:
		return prefix + "the platform is temporarily unavailable, please retry in a moment."
	}
}

// formatResult выбирает рендер по интенту. Неизвестная форма ответа
// отдается как форматированный JSON, чтобы данные не терялись.
func (f *Formatter) formatResult(intent domain.Intent, res engine.Result) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		return string(res.Data)
	}

	switch intent {
	case domain.IntentListClusters:
		return renderClusters(payload)
	case domain.IntentInspectCluster:
		return renderInspect(payload)
	case domain.IntentListDatabases:
		return renderList(payload, "databases", "Databases")
	case domain.IntentListCollections:
		return renderPrefixed(res.Database, renderList(payload, "collections", "Collections"))
	case domain.IntentAnalyzeSchema:
		return renderPrefixed(res.Database, renderSchema(payload))
	case domain.IntentFindMissingIndexes:
		return renderPrefixed(res.Database, renderMissingIndexes(payload))
	case domain.IntentFindRedundantIndexes:
		return renderPrefixed(res.Database, renderRedundantIndexes(payload))
	case domain.IntentManageDBUser, domain.IntentResetPassword:
		return renderCredential(payload)
	case domain.IntentAnalyzePerformance:
		return renderPerformance(payload)
	default:
		pretty, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return string(res.Data)
		}
		return string(pretty)
	}
}

func renderPrefixed(database, body string) string {
	if database == "" {
		return body
	}
	return fmt.Sprintf("*%s*\n%s", database, body)
}

func renderClusters(payload map[string]interface{}) string {
	clusters, _ := payload["clusters"].([]interface{})
	if len(clusters) == 0 {
		return "No clusters found."
	}
	var b strings.Builder
	b.WriteString("Your clusters:\n")
	for _, raw := range clusters {
		c, _ := raw.(map[string]interface{})
		fmt.Fprintf(&b, "• *%v* — %v %v, tier %v, state %v\n",
			c["name"], c["provider"], c["region"], c["tier"], c["state"])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderInspect(payload map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cluster *%v*\n", payload["name"])
	fmt.Fprintf(&b, "• Provider: %v (%v)\n", payload["provider"], payload["region"])
	fmt.Fprintf(&b, "• Tier: %v, state: %v\n", payload["tier"], payload["state"])
	if dbs, ok := payload["databases"].([]interface{}); ok && len(dbs) > 0 {
		names := make([]string, 0, len(dbs))
		for _, db := range dbs {
			names = append(names, fmt.Sprint(db))
		}
		fmt.Fprintf(&b, "• Databases: %s\n", strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderList(payload map[string]interface{}, key, title string) string {
	items, _ := payload[key].([]interface{})
	if len(items) == 0 {
		return fmt.Sprintf("%s: none.", title)
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, fmt.Sprint(it))
	}
	return fmt.Sprintf("%s: %s", title, strings.Join(names, ", "))
}

func renderSchema(payload map[string]interface{}) string {
	fields, _ := payload["fields"].(map[string]interface{})
	if len(fields) == 0 {
		return fmt.Sprintf("Collection *%v*: empty schema.", payload["collection"])
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Schema of *%v*:\n", payload["collection"])
	for _, name := range names {
		fmt.Fprintf(&b, "• %s: %v\n", name, fields[name])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMissingIndexes(payload map[string]interface{}) string {
	items, _ := payload["missing_indexes"].([]interface{})
	if len(items) == 0 {
		return "No missing indexes detected."
	}
	var b strings.Builder
	b.WriteString("Missing index candidates:\n")
	for _, raw := range items {
		m, _ := raw.(map[string]interface{})
		fmt.Fprintf(&b, "• %v\n", m["suggestion"])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRedundantIndexes(payload map[string]interface{}) string {
	items, _ := payload["redundant_indexes"].([]interface{})
	if len(items) == 0 {
		return "No redundant indexes detected."
	}
	var b strings.Builder
	b.WriteString("Redundant indexes:\n")
	for _, raw := range items {
		m, _ := raw.(map[string]interface{})
		fmt.Fprintf(&b, "• [%v] %v\n", m["redundancy_type"], m["recommendation"])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCredential(payload map[string]interface{}) string {
	var b strings.Builder
	switch payload["status"] {
	case "password_reset":
		fmt.Fprintf(&b, "Password for *%v* has been reset.\n", payload["username"])
	default:
		fmt.Fprintf(&b, "Database user *%v* created.\n", payload["username"])
	}
	fmt.Fprintf(&b, "Temporary password: `%v`\nStore it now, it will not be shown again.", payload["password"])
	return b.String()
}

func renderPerformance(payload map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Performance of *%v* over the last %v hours:\n", payload["cluster"], payload["window_hours"])
	fmt.Fprintf(&b, "• CPU: %v%%\n", payload["cpu_percent"])
	slow, _ := payload["slow_queries"].([]interface{})
	if len(slow) == 0 {
		b.WriteString("• No slow queries detected.")
		return b.String()
	}
	b.WriteString("• Slow queries:\n")
	for _, raw := range slow {
		q, _ := raw.(map[string]interface{})
		fmt.Fprintf(&b, "    %v — %vms, filter %v\n", q["ns"], q["millis"], q["filter"])
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHelp строит справку строго из правил, доступных роли актора:
// пользователь не видит команды, которые ему все равно откажут.
func (f *Formatter) FormatHelp(actor domain.Actor) string {
	rules := policy.RulesFor(actor.Role)

	var b strings.Builder
	if actor.Role == domain.RoleUnknown {
		b.WriteString("You are not on the roster, so platform operations are unavailable.\n")
		b.WriteString("Ask an administrator to add you.")
		return b.String()
	}

	fmt.Fprintf(&b, "Your role: *%s*. Available commands:\n", actor.Role)

	// Группируем по категориям, сохраняя порядок первого появления
	var order []string
	byCategory := map[string][]policy.Rule{}
	for _, rule := range rules {
		if rule.Usage == "" {
			continue
		}
		if _, seen := byCategory[rule.Category]; !seen {
			order = append(order, rule.Category)
		}
		byCategory[rule.Category] = append(byCategory[rule.Category], rule)
	}

	for _, category := range order {
		fmt.Fprintf(&b, "\n*%s*\n", category)
		for _, rule := range byCategory[category] {
			fmt.Fprintf(&b, "• `%s`\n", rule.Usage)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatUnknown — ответ на нераспознанный текст.
func (f *Formatter) FormatUnknown() string {
	return msgUnknownIntent
}

// polish пропускает готовый текст через ассистента, если он подключен.
// Тексты отказов сюда не попадают: они фиксированы и шлифовке не подлежат.
func (f *Formatter) polish(ctx context.Context, draft string) string {
	if f.polisher == nil {
		return draft
	}
	polished, err := f.polisher.Polish(ctx, draft)
	if err != nil {
		f.logger.Debug("polish unavailable, using deterministic reply", zap.Error(err))
		return draft
	}
	return polished
}
