package policy

import (
	"fmt"

	"github.com/xela07ax/atlas-chatops/internal/domain"
)

// Идентификаторы операций исполнения — контракт с коннектором.
// Ровно одна операция на интент, связка задается здесь же, в реестре.
const (
	OpListClusters     = "atlas.clusters.list"
	OpCreateCluster    = "atlas.clusters.create"
	OpInspectCluster   = "atlas.clusters.inspect"
	OpConnectCluster   = "atlas.clusters.connect"
	OpAccessListAdd    = "atlas.accesslist.add"
	OpCreateDBUser     = "atlas.dbusers.create"
	OpResetPassword    = "atlas.dbusers.resetpw"
	OpAnalyzePerf      = "atlas.perf.analyze"
	OpListDatabases    = "atlas.databases.list"
	OpListCollections  = "atlas.collections.list"
	OpAnalyzeSchema    = "atlas.schema.analyze"
	OpMissingIndexes   = "atlas.indexes.missing"
	OpRedundantIndexes = "atlas.indexes.redundant"
)

// Имена обязательных параметров для валидации диспетчером.
const (
	ReqCluster    = "cluster"
	ReqCollection = "collection"
	ReqIP         = "ip"
	ReqUsername   = "username"
	ReqName       = "name" // имя нового кластера
)

// Rule — авторское правило для одного интента: минимальная роль, охват,
// операция исполнения и обязательные параметры. Интент без правила в реестре
// трактуется движком как admin-only (fail-closed), но реестр обязан покрывать
// весь закрытый словарь — это проверяется тестом на полноту.
type Rule struct {
	Intent   domain.Intent
	MinRole  domain.Role
	Scope    domain.Scope
	Op       string
	Required []string

	// FanOut: при пустой target.Database операция раскладывается на все базы
	// кластера, результат агрегируется в порядке имен баз.
	FanOut bool

	// Для role-filtered help
	Category string
	Usage    string
}

// Registry — единственная таблица правил. Сумма знаний о пайплайне:
// extractor порождает интент, отсюда берутся и политика, и операция.
var Registry = map[domain.Intent]Rule{
	domain.IntentListClusters: {
		Intent: domain.IntentListClusters, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op:       OpListClusters,
		Category: "Atlas Management", Usage: "list my clusters",
	},
	domain.IntentCreateCluster: {
		Intent: domain.IntentCreateCluster, MinRole: domain.RoleAdmin, Scope: domain.ScopeUnrestricted,
		Op: OpCreateCluster, Required: []string{ReqName},
		Category: "Atlas Management", Usage: "create a new cluster called <name>",
	},
	domain.IntentInspectCluster: {
		Intent: domain.IntentInspectCluster, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpInspectCluster, Required: []string{ReqCluster},
		Category: "Atlas Management", Usage: "show cluster details for <cluster>",
	},
	domain.IntentConnectCluster: {
		Intent: domain.IntentConnectCluster, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpConnectCluster, Required: []string{ReqCluster},
		Category: "Atlas Management", Usage: "connect to cluster <cluster>",
	},
	domain.IntentManageAccessList: {
		Intent: domain.IntentManageAccessList, MinRole: domain.RoleSelfService, Scope: domain.ScopeSelfOnly,
		Op: OpAccessListAdd, Required: []string{ReqIP},
		Category: "Security", Usage: "add IP <address> to whitelist",
	},
	domain.IntentManageDBUser: {
		Intent: domain.IntentManageDBUser, MinRole: domain.RoleAdmin, Scope: domain.ScopeUnrestricted,
		Op: OpCreateDBUser, Required: []string{ReqUsername},
		Category: "Security", Usage: "create database user <name>",
	},
	domain.IntentResetPassword: {
		Intent: domain.IntentResetPassword, MinRole: domain.RoleSelfService, Scope: domain.ScopeSelfOnly,
		Op: OpResetPassword, Required: []string{ReqUsername},
		Category: "Security", Usage: "reset password for database user <name>",
	},
	domain.IntentAnalyzePerformance: {
		Intent: domain.IntentAnalyzePerformance, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpAnalyzePerf, Required: []string{ReqCluster},
		Category: "Analysis", Usage: "analyze cluster <cluster> performance over last 24 hours",
	},
	domain.IntentListDatabases: {
		Intent: domain.IntentListDatabases, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpListDatabases, Required: []string{ReqCluster},
		Category: "Database Operations", Usage: "list databases in cluster <cluster>",
	},
	domain.IntentListCollections: {
		Intent: domain.IntentListCollections, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpListCollections, Required: []string{ReqCluster}, FanOut: true,
		Category: "Database Operations", Usage: "show collections in database <db> on cluster <cluster>",
	},
	domain.IntentAnalyzeSchema: {
		Intent: domain.IntentAnalyzeSchema, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpAnalyzeSchema, Required: []string{ReqCluster, ReqCollection}, FanOut: true,
		Category: "Database Operations", Usage: "analyze schema for collection <name> on cluster <cluster>",
	},
	domain.IntentFindMissingIndexes: {
		Intent: domain.IntentFindMissingIndexes, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpMissingIndexes, Required: []string{ReqCluster}, FanOut: true,
		Category: "Optimization", Usage: "find missing indexes on cluster <cluster>",
	},
	domain.IntentFindRedundantIndexes: {
		Intent: domain.IntentFindRedundantIndexes, MinRole: domain.RoleUser, Scope: domain.ScopeUnrestricted,
		Op: OpRedundantIndexes, Required: []string{ReqCluster}, FanOut: true,
		Category: "Optimization", Usage: "find redundant indexes on cluster <cluster>",
	},
	domain.IntentGetHelp: {
		// get-help доступен любой роли, включая unknown, и не диспетчеризуется
		Intent: domain.IntentGetHelp, MinRole: domain.RoleUnknown, Scope: domain.ScopeUnrestricted,
		Category: "General", Usage: "help",
	},
}

// Lookup возвращает правило интента. Отсутствие правила — это fail-closed:
// синтетическое admin-only правило без операции.
func Lookup(intent domain.Intent) Rule {
	if rule, ok := Registry[intent]; ok {
		return rule
	}
	return Rule{Intent: intent, MinRole: domain.RoleAdmin, Scope: domain.ScopeUnrestricted}
}

// RulesFor возвращает правила, доступные роли — основа role-filtered help.
// Порядок — как в domain.Intents, чтобы вывод был детерминированным.
func RulesFor(role domain.Role) []Rule {
	var out []Rule
	for _, intent := range domain.Intents {
		rule := Registry[intent]
		if role.AtLeast(rule.MinRole) {
			out = append(out, rule)
		}
	}
	return out
}

// Validate проверяет полноту реестра: каждый интент закрытого словаря имеет
// ровно одно правило, каждое диспетчеризуемое правило — операцию.
func Validate() error {
	for _, intent := range domain.Intents {
		rule, ok := Registry[intent]
		if !ok {
			return fmt.Errorf("policy: intent %s has no authored rule", intent)
		}
		if intent != domain.IntentGetHelp && rule.Op == "" {
			return fmt.Errorf("policy: intent %s has no execution operation", intent)
		}
	}
	return nil
}
