package domain

import (
	"strings"
	"time"
)

// Intent — закрытый словарь команд бота. Каждый intent связан ровно с одним
// правилом политики и одной операцией исполнения (см. policy.Registry),
// чтобы extractor не мог породить команду без правила и без операции.
type Intent string

const (
	IntentListClusters         Intent = "list-clusters"
	IntentCreateCluster        Intent = "create-cluster"
	IntentInspectCluster       Intent = "inspect-cluster"
	IntentConnectCluster       Intent = "connect-cluster"
	IntentManageAccessList     Intent = "manage-access-list"
	IntentManageDBUser         Intent = "manage-db-user"
	IntentResetPassword        Intent = "reset-password"
	IntentAnalyzePerformance   Intent = "analyze-performance"
	IntentListDatabases        Intent = "list-databases"
	IntentListCollections      Intent = "list-collections"
	IntentAnalyzeSchema        Intent = "analyze-schema"
	IntentFindMissingIndexes   Intent = "find-missing-indexes"
	IntentFindRedundantIndexes Intent = "find-redundant-indexes"
	IntentGetHelp              Intent = "get-help"
	IntentUnknown              Intent = "unknown"
)

// Intents перечисляет все известные интенты (без unknown).
// Используется реестром политик для проверки полноты таблицы правил.
var Intents = []Intent{
	IntentListClusters,
	IntentCreateCluster,
	IntentInspectCluster,
	IntentConnectCluster,
	IntentManageAccessList,
	IntentManageDBUser,
	IntentResetPassword,
	IntentAnalyzePerformance,
	IntentListDatabases,
	IntentListCollections,
	IntentAnalyzeSchema,
	IntentFindMissingIndexes,
	IntentFindRedundantIndexes,
	IntentGetHelp,
}

// Имена параметров команды. Закрытый набор — extractor кладет только их.
const (
	ParamIP       = "ip"        // IPv4 или CIDR для access-list
	ParamUsername = "username"  // Имя db-пользователя
	ParamComment  = "comment"   // Свободный комментарий (access-list)
	ParamProvider = "provider"  // Провайдер для create-cluster
)

// Target — извлеченная из текста ссылка на ресурс.
// Пустое поле Database у аналитических интентов означает "все базы кластера"
// (fan-out), это штатное состояние, а не ошибка.
type Target struct {
	Cluster    string `json:"cluster,omitempty"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// TimeRange — относительное окно для перформанс-аналитики ("last 24 hours").
type TimeRange struct {
	Window time.Duration `json:"window"`
}

// DefaultTimeRange — окно по умолчанию, если в тексте его не нашли.
var DefaultTimeRange = TimeRange{Window: 24 * time.Hour}

// Command — структурированный результат разбора свободного текста.
type Command struct {
	Intent Intent            `json:"intent"`
	Target Target            `json:"target"`
	Params map[string]string `json:"params,omitempty"`
	Range  *TimeRange        `json:"range,omitempty"`

	// RawText хранится только для аудита и LLM-подсказок, в авторизации не участвует.
	RawText string `json:"-"`
}

// Param возвращает значение параметра или пустую строку.
func (c Command) Param(name string) string {
	return c.Params[name]
}

// WithParam возвращает копию команды с перезаписанным параметром.
// Используется движком политик для сужения команды (например, принудительный IP).
func (c Command) WithParam(name, value string) Command {
	params := make(map[string]string, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	params[name] = value
	c.Params = params
	return c
}

// NormalizeAlias приводит идентификатор к канонической форме матчинга:
// без пробелов по краям, без ведущего '@', в нижнем регистре.
func NormalizeAlias(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(s)
}
