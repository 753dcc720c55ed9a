package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/infra"
	"github.com/xela07ax/atlas-chatops/internal/policy"
)

type recordedCall struct {
	Op      string
	Payload map[string]interface{}
}

// fakeProvider отвечает заранее заданными данными и записывает все вызовы.
type fakeProvider struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string][]byte
	errs      map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		responses: map[string][]byte{},
		errs:      map[string]error{},
	}
}

func (f *fakeProvider) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	var m map[string]interface{}
	json.Unmarshal(payload, &m)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Op: op, Payload: m})
	f.mu.Unlock()

	if err, ok := f.errs[op]; ok {
		return nil, err
	}
	if resp, ok := f.responses[op]; ok {
		return resp, nil
	}
	return []byte(`{}`), nil
}

func (f *fakeProvider) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func TestDispatchMissingParams(t *testing.T) {
	d := NewDispatcher(newFakeProvider(), zap.NewNop())

	tests := []struct {
		name    string
		cmd     domain.Command
		missing string
	}{
		{
			name:    "collections without cluster",
			cmd:     domain.Command{Intent: domain.IntentListCollections},
			missing: policy.ReqCluster,
		},
		{
			name:    "access list without ip",
			cmd:     domain.Command{Intent: domain.IntentManageAccessList},
			missing: policy.ReqIP,
		},
		{
			name:    "db user without username",
			cmd:     domain.Command{Intent: domain.IntentManageDBUser},
			missing: policy.ReqUsername,
		},
		{
			name:    "create cluster without name",
			cmd:     domain.Command{Intent: domain.IntentCreateCluster},
			missing: policy.ReqName,
		},
		{
			name: "schema without collection",
			cmd: domain.Command{
				Intent: domain.IntentAnalyzeSchema,
				Target: domain.Target{Cluster: "production"},
			},
			missing: policy.ReqCollection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), tt.cmd)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			found := false
			for _, m := range verr.Missing {
				if m == tt.missing {
					found = true
				}
			}
			if !found {
				t.Errorf("missing = %v, want to contain %q", verr.Missing, tt.missing)
			}
			if verr.Usage == "" {
				t.Error("validation error must carry a usage hint")
			}
		})
	}
}

func TestDispatchSingleOperation(t *testing.T) {
	provider := newFakeProvider()
	provider.responses[policy.OpInspectCluster] = []byte(`{"name":"production"}`)
	d := NewDispatcher(provider, zap.NewNop())

	cmd := domain.Command{
		Intent: domain.IntentInspectCluster,
		Target: domain.Target{Cluster: "production"},
	}
	outcome, err := d.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Results) != 1 || outcome.FanOut {
		t.Fatalf("outcome = %+v, want single non-fanout result", outcome)
	}
	if outcome.Results[0].Op != policy.OpInspectCluster {
		t.Errorf("op = %s", outcome.Results[0].Op)
	}
	if got := provider.calls[0].Payload["cluster"]; got != "production" {
		t.Errorf("payload cluster = %v", got)
	}
}

func TestDispatchFanOutOrdering(t *testing.T) {
	provider := newFakeProvider()
	// Список баз приходит неотсортированным
	provider.responses[policy.OpListDatabases] = []byte(`{"cluster":"production","databases":["users","analytics","ecommerce"]}`)
	provider.responses[policy.OpMissingIndexes] = []byte(`{"missing_indexes":[]}`)
	d := NewDispatcher(provider, zap.NewNop())

	cmd := domain.Command{
		Intent: domain.IntentFindMissingIndexes,
		Target: domain.Target{Cluster: "production"},
	}
	outcome, err := d.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.FanOut {
		t.Fatal("expected fan-out outcome")
	}

	want := []string{"analytics", "ecommerce", "users"}
	if len(outcome.Results) != len(want) {
		t.Fatalf("results = %d, want %d", len(outcome.Results), len(want))
	}
	for i, db := range want {
		if outcome.Results[i].Database != db {
			t.Errorf("results[%d].Database = %q, want %q", i, outcome.Results[i].Database, db)
		}
	}
	if n := provider.callCount(policy.OpMissingIndexes); n != 3 {
		t.Errorf("per-database calls = %d, want 3", n)
	}
}

func TestDispatchExplicitDatabaseSkipsFanOut(t *testing.T) {
	provider := newFakeProvider()
	provider.responses[policy.OpListCollections] = []byte(`{"collections":["orders"]}`)
	d := NewDispatcher(provider, zap.NewNop())

	cmd := domain.Command{
		Intent: domain.IntentListCollections,
		Target: domain.Target{Cluster: "production", Database: "ecommerce"},
	}
	outcome, err := d.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.FanOut || len(outcome.Results) != 1 {
		t.Fatalf("outcome = %+v, want single targeted result", outcome)
	}
	if n := provider.callCount(policy.OpListDatabases); n != 0 {
		t.Errorf("databases were listed %d times, want 0", n)
	}
	if got := provider.calls[0].Payload["database"]; got != "ecommerce" {
		t.Errorf("payload database = %v", got)
	}
}

func TestDispatchFanOutPartialFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.responses[policy.OpListDatabases] = []byte(`{"databases":["analytics","ecommerce"]}`)
	provider.errs[policy.OpRedundantIndexes] = connectors.NewExecError(connectors.KindTransient, policy.OpRedundantIndexes, "flaky")
	d := NewDispatcher(provider, zap.NewNop())

	cmd := domain.Command{
		Intent: domain.IntentFindRedundantIndexes,
		Target: domain.Target{Cluster: "production"},
	}
	outcome, err := d.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(outcome.Results))
	}
	for _, res := range outcome.Results {
		if res.Err == nil {
			t.Errorf("result %s: expected error", res.Database)
		}
	}
}

func TestDispatchPerformanceWindow(t *testing.T) {
	t.Run("default window", func(t *testing.T) {
		provider := newFakeProvider()
		d := NewDispatcher(provider, zap.NewNop())

		cmd := domain.Command{
			Intent: domain.IntentAnalyzePerformance,
			Target: domain.Target{Cluster: "production"},
		}
		if _, err := d.Dispatch(context.Background(), cmd); err != nil {
			t.Fatal(err)
		}
		if got := provider.calls[0].Payload["window_hours"]; got != float64(24) {
			t.Errorf("window_hours = %v, want 24 (default)", got)
		}
	})

	t.Run("explicit window", func(t *testing.T) {
		provider := newFakeProvider()
		d := NewDispatcher(provider, zap.NewNop())

		cmd := domain.Command{
			Intent: domain.IntentAnalyzePerformance,
			Target: domain.Target{Cluster: "production"},
			Range:  &domain.TimeRange{Window: 48 * time.Hour},
		}
		if _, err := d.Dispatch(context.Background(), cmd); err != nil {
			t.Fatal(err)
		}
		if got := provider.calls[0].Payload["window_hours"]; got != float64(48) {
			t.Errorf("window_hours = %v, want 48", got)
		}
	})
}

// flakyProvider падает transient-ошибкой заданное число раз, затем отвечает.
type flakyProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
}

func (f *flakyProvider) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []byte(`{}`), nil
}

func testEngineConfig() infra.EngineConfig {
	return infra.EngineConfig{
		CallTimeout:           2 * time.Second,
		RetryAttempts:         2,
		CBMaxRequests:         3,
		CBInterval:            5 * time.Second,
		CBTimeout:             30 * time.Second,
		CBConsecutiveFailures: 5,
		RateLimit:             100,
		RateBurst:             20,
	}
}

func TestReliabilityRetriesTransientOnce(t *testing.T) {
	provider := &flakyProvider{
		failures: 1,
		err:      connectors.NewExecError(connectors.KindTransient, "atlas.clusters.list", "blip"),
	}
	w := NewReliabilityWrapper(provider, testEngineConfig())

	if _, err := w.Call(context.Background(), "atlas.clusters.list", nil); err != nil {
		t.Fatalf("call failed after retry: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("calls = %d, want 2 (initial + one retry)", provider.calls)
	}
}

func TestReliabilityDoesNotRetryDeterministicErrors(t *testing.T) {
	provider := &flakyProvider{
		failures: 10,
		err:      connectors.NewExecError(connectors.KindNotFound, "atlas.clusters.inspect", "no such cluster"),
	}
	w := NewReliabilityWrapper(provider, testEngineConfig())

	_, err := w.Call(context.Background(), "atlas.clusters.inspect", nil)
	if connectors.KindOf(err) != connectors.KindNotFound {
		t.Fatalf("err = %v, want not-found", err)
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want 1 (not-found is not retryable)", provider.calls)
	}
}
