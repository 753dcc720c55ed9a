package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/policy"

	"go.uber.org/zap"
)

// ValidationError — команда разрешена политикой, но в тексте не хватает
// обязательных параметров. Это НЕ отказ в доступе: форматтер превращает
// ее в уточняющий вопрос с подсказкой синтаксиса.
type ValidationError struct {
	Intent  domain.Intent
	Missing []string
	Usage   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatch: intent %s is missing required parameters: %s",
		e.Intent, strings.Join(e.Missing, ", "))
}

// Result — итог одного вызова коннектора. При fan-out у каждого результата
// своя база; ошибка одной базы не отменяет результаты остальных.
type Result struct {
	Op       string
	Database string
	Data     []byte
	Err      error
}

// Outcome — агрегированный итог диспетчеризации одной команды.
type Outcome struct {
	Intent  domain.Intent
	FanOut  bool
	Results []Result
}

// Dispatcher проверяет полноту параметров разрешенной команды и исполняет
// ровно одну операцию на интент. Вызовы идут через ReliabilityWrapper,
// так что ретраи и предохранитель уже под капотом.
type Dispatcher struct {
	exec   connectors.ExecutionProvider
	logger *zap.Logger
}

func NewDispatcher(exec connectors.ExecutionProvider, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		exec:   exec,
		logger: logger.Named("dispatcher"),
	}
}

// Dispatch исполняет авторизованную команду. Валидация параметров идет
// строго после авторизации, поэтому уточняющий вопрос получает только тот,
// кому операция вообще разрешена.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command) (*Outcome, error) {
	rule := policy.Lookup(cmd.Intent)

	if missing := d.missingParams(rule, cmd); len(missing) > 0 {
		return nil, &ValidationError{Intent: cmd.Intent, Missing: missing, Usage: rule.Usage}
	}

	if rule.FanOut && cmd.Target.Database == "" {
		return d.dispatchFanOut(ctx, rule, cmd)
	}

	data, err := d.exec.Call(ctx, rule.Op, buildPayload(cmd, cmd.Target.Database))
	if err != nil {
		d.logger.Warn("operation failed",
			zap.String("op", rule.Op),
			zap.String("cluster", cmd.Target.Cluster),
			zap.Error(err),
		)
	}
	return &Outcome{
		Intent:  cmd.Intent,
		Results: []Result{{Op: rule.Op, Database: cmd.Target.Database, Data: data, Err: err}},
	}, nil
}

func (d *Dispatcher) missingParams(rule policy.Rule, cmd domain.Command) []string {
	var missing []string
	for _, req := range rule.Required {
		var have string
		switch req {
		case policy.ReqCluster, policy.ReqName:
			have = cmd.Target.Cluster
		case policy.ReqCollection:
			have = cmd.Target.Collection
		case policy.ReqIP:
			have = cmd.Param(domain.ParamIP)
		case policy.ReqUsername:
			have = cmd.Param(domain.ParamUsername)
		}
		if have == "" {
			missing = append(missing, req)
		}
	}
	return missing
}

// dispatchFanOut раскладывает операцию без явной базы на все базы кластера.
// Сначала перечисляем базы, затем параллельные вызовы по каждой; порядок
// результатов детерминирован — по именам баз.
func (d *Dispatcher) dispatchFanOut(ctx context.Context, rule policy.Rule, cmd domain.Command) (*Outcome, error) {
	listData, err := d.exec.Call(ctx, policy.OpListDatabases, buildPayload(cmd, ""))
	if err != nil {
		// Без списка баз раскладывать нечего, отдаем ошибку как единственный результат
		return &Outcome{
			Intent:  cmd.Intent,
			FanOut:  true,
			Results: []Result{{Op: policy.OpListDatabases, Err: err}},
		}, nil
	}

	var listing struct {
		Databases []string `json:"databases"`
	}
	if err := json.Unmarshal(listData, &listing); err != nil {
		return nil, fmt.Errorf("dispatch: failed to parse database listing: %w", err)
	}
	sort.Strings(listing.Databases)

	d.logger.Info("fanning out operation",
		zap.String("op", rule.Op),
		zap.String("cluster", cmd.Target.Cluster),
		zap.Int("databases", len(listing.Databases)),
	)

	results := make([]Result, len(listing.Databases))
	var wg sync.WaitGroup
	for i, db := range listing.Databases {
		wg.Add(1)
		go func(i int, db string) {
			defer wg.Done()
			data, callErr := d.exec.Call(ctx, rule.Op, buildPayload(cmd, db))
			results[i] = Result{Op: rule.Op, Database: db, Data: data, Err: callErr}
		}(i, db)
	}
	wg.Wait()

	return &Outcome{Intent: cmd.Intent, FanOut: true, Results: results}, nil
}

// buildPayload собирает JSON-пакет для коннектора. database передается
// явно: при fan-out одна команда порождает вызовы с разными базами.
func buildPayload(cmd domain.Command, database string) []byte {
	payload := map[string]interface{}{}

	if cmd.Target.Cluster != "" {
		payload["cluster"] = cmd.Target.Cluster
		if cmd.Intent == domain.IntentCreateCluster {
			payload["name"] = cmd.Target.Cluster
		}
	}
	if database != "" {
		payload["database"] = database
	}
	if cmd.Target.Collection != "" {
		payload["collection"] = cmd.Target.Collection
	}
	if ip := cmd.Param(domain.ParamIP); ip != "" {
		payload["ip"] = ip
	}
	if user := cmd.Param(domain.ParamUsername); user != "" {
		payload["username"] = user
	}
	if comment := cmd.Param(domain.ParamComment); comment != "" {
		payload["comment"] = comment
	}
	if cmd.Intent == domain.IntentAnalyzePerformance {
		window := domain.DefaultTimeRange.Window
		if cmd.Range != nil {
			window = cmd.Range.Window
		}
		payload["window_hours"] = window.Hours()
	}

	out, _ := json.Marshal(payload)
	return out
}
