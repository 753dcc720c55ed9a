package extractor

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/atlas-chatops/internal/domain"
)

// intentRule связывает паттерн текста с интентом. Порядок правил важен:
// первый сработавший побеждает, поэтому специфичные правила (reset password,
// missing indexes) стоят выше общих (list clusters).
type intentRule struct {
	re     *regexp.Regexp
	intent domain.Intent
}

var intentRules = []intentRule{
	{regexp.MustCompile(`(?i)missing\s+index`), domain.IntentFindMissingIndexes},
	{regexp.MustCompile(`(?i)(redundant|duplicate)\s+index`), domain.IntentFindRedundantIndexes},
	{regexp.MustCompile(`(?i)reset\s+.*password`), domain.IntentResetPassword},
	{regexp.MustCompile(`(?i)(add|remove|put|show|list)\s+.*\b(ip|whitelist|access\s+list)`), domain.IntentManageAccessList},
	{regexp.MustCompile(`(?i)\b(whitelist|access\s+list)\b`), domain.IntentManageAccessList},
	{regexp.MustCompile(`(?i)(create|add|delete|remove)\s+.*\b(db|database)\s+user`), domain.IntentManageDBUser},
	{regexp.MustCompile(`(?i)analy[sz]e?\s*.*\bschema|schema\s+(analysis|for)`), domain.IntentAnalyzeSchema},
	{regexp.MustCompile(`(?i)analy[sz]e?\s*.*\bperformance|performance\s+(issue|summary|analysis)|slow\s+quer`), domain.IntentAnalyzePerformance},
	{regexp.MustCompile(`(?i)(list|show)\s+.*collection`), domain.IntentListCollections},
	{regexp.MustCompile(`(?i)(list|show)\s+.*database`), domain.IntentListDatabases},
	{regexp.MustCompile(`(?i)create\s+.*cluster`), domain.IntentCreateCluster},
	{regexp.MustCompile(`(?i)(inspect|details?\s+for)\s+.*cluster|cluster\s+details`), domain.IntentInspectCluster},
	{regexp.MustCompile(`(?i)connect\s+.*cluster`), domain.IntentConnectCluster},
	{regexp.MustCompile(`(?i)(list|show)\s+.*cluster`), domain.IntentListClusters},
	{regexp.MustCompile(`(?i)^\s*help\s*$|\bwhat\s+can\s+i\s+do\b|my\s+permission`), domain.IntentGetHelp},
}

// matchIntent возвращает первый подошедший интент или unknown.
func matchIntent(text string) domain.Intent {
	for _, rule := range intentRules {
		if rule.re.MatchString(text) {
			return rule.intent
		}
	}
	return domain.IntentUnknown
}

// Стоп-слова при извлечении имен ресурсов — предлоги и артикли, которые
// паттерны иногда захватывают вместо настоящего имени.
var nameStopwords = map[string]struct{}{
	"called": {}, "named": {}, "for": {}, "on": {}, "in": {}, "the": {},
	"a": {}, "an": {}, "cluster": {}, "database": {}, "collection": {},
	"all": {}, "my": {}, "performance": {}, "whitelist": {},
	"details": {}, "user": {},
}

func isStopword(s string) bool {
	_, ok := nameStopwords[strings.ToLower(s)]
	return ok
}

var clusterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cluster\s+called\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)(?:on|for|in)\s+cluster\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)cluster\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)called\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)named\s+([a-zA-Z0-9_-]+)`),
}

// Хвостовые фоллбэки: "performance issues on staging" → staging
var clusterTailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bon\s+([a-zA-Z0-9_-]+)\s*[.!?]?\s*$`),
	regexp.MustCompile(`(?i)\bfor\s+([a-zA-Z0-9_-]+)\s*[.!?]?\s*$`),
}

// extractCluster достает имя кластера. Пустая строка — кластер не указан.
func extractCluster(text string) string {
	for _, re := range clusterPatterns {
		if m := re.FindStringSubmatch(text); m != nil && !isStopword(m[1]) {
			return m[1]
		}
	}
	for _, re := range clusterTailPatterns {
		if m := re.FindStringSubmatch(text); m != nil && !isStopword(m[1]) {
			return m[1]
		}
	}
	return ""
}

var databasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)database\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)\bin\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)\bfrom\s+([a-zA-Z0-9_-]+)`),
}

// extractDatabase достает имя базы. Пустая строка — «все базы кластера»,
// это первоклассное состояние для fan-out, а не отсутствие параметра.
func extractDatabase(text string) string {
	for _, re := range databasePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if !isStopword(m[1]) {
				return m[1]
			}
		}
	}
	return ""
}

var collectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)collection\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)schema\s+for\s+([a-zA-Z0-9_-]+)`),
}

func extractCollection(text string) string {
	for _, re := range collectionPatterns {
		if m := re.FindStringSubmatch(text); m != nil && !isStopword(m[1]) {
			return m[1]
		}
	}
	return ""
}

var ipPattern = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})(/\d{1,2})?\b`)

// extractIP ищет IPv4-литерал или CIDR и валидирует его через netip.
// Синтаксически битые адреса (999.1.1.1) не считаются найденными.
func extractIP(text string) string {
	for _, m := range ipPattern.FindAllStringSubmatch(text, -1) {
		candidate := m[1] + m[2]
		if m[2] != "" {
			if _, err := netip.ParsePrefix(candidate); err == nil {
				return candidate
			}
			continue
		}
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

var usernamePattern = regexp.MustCompile(`(?i)\buser(?:name)?\s+([a-zA-Z0-9._@-]+)`)

func extractUsername(text string) string {
	if m := usernamePattern.FindStringSubmatch(text); m != nil && !isStopword(m[1]) {
		return m[1]
	}
	return ""
}

var (
	relativeWindow = regexp.MustCompile(`(?i)last\s+(\d+)\s+(hour|day|week)s?`)
	bareWindow     = regexp.MustCompile(`(?i)\b(\d+)\s+(hour|day|week)s?\b`)
	namedWindow    = regexp.MustCompile(`(?i)last\s+(hour|day|week)\b`)
)

// extractTimeRange распознает относительные окна ("last 24 hours", "last week").
// nil — окно не указано; дефолт проставляет диспетчер, а не extractor.
func extractTimeRange(text string) *domain.TimeRange {
	if m := relativeWindow.FindStringSubmatch(text); m != nil {
		return windowOf(m[1], m[2])
	}
	if m := namedWindow.FindStringSubmatch(text); m != nil {
		return windowOf("1", m[1])
	}
	if m := bareWindow.FindStringSubmatch(text); m != nil {
		return windowOf(m[1], m[2])
	}
	return nil
}

func windowOf(countStr, unit string) *domain.TimeRange {
	n, err := strconv.Atoi(countStr)
	if err != nil || n <= 0 {
		return nil
	}
	var d time.Duration
	switch strings.ToLower(unit) {
	case "hour":
		d = time.Duration(n) * time.Hour
	case "day":
		d = time.Duration(n) * 24 * time.Hour
	case "week":
		d = time.Duration(n) * 7 * 24 * time.Hour
	default:
		return nil
	}
	return &domain.TimeRange{Window: d}
}
