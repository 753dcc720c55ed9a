package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/domain"
)

func TestExtractIntentAndTarget(t *testing.T) {
	ext := New(nil, zap.NewNop())

	tests := []struct {
		name       string
		text       string
		intent     domain.Intent
		cluster    string
		database   string
		collection string
		ip         string
		username   string
		window     time.Duration // 0 — окно не указано
	}{
		{
			name:   "list clusters",
			text:   "list my clusters",
			intent: domain.IntentListClusters,
		},
		{
			name:    "create cluster with name",
			text:    "Create a new cluster called dev",
			intent:  domain.IntentCreateCluster,
			cluster: "dev",
		},
		{
			name:    "inspect cluster",
			text:    "show cluster details for production",
			intent:  domain.IntentInspectCluster,
			cluster: "production",
		},
		{
			name:    "missing indexes scoped to database",
			text:    "Find missing indexes in ecommerce on cluster staging",
			intent:  domain.IntentFindMissingIndexes,
			cluster: "staging",
			database: "ecommerce",
		},
		{
			name:    "missing indexes whole cluster",
			text:    "Find missing indexes on cluster staging",
			intent:  domain.IntentFindMissingIndexes,
			cluster: "staging",
		},
		{
			name:    "redundant indexes",
			text:    "find redundant indexes on cluster staging",
			intent:  domain.IntentFindRedundantIndexes,
			cluster: "staging",
		},
		{
			name:   "access list with valid ip",
			text:   "Add IP 192.168.1.100 to whitelist",
			intent: domain.IntentManageAccessList,
			ip:     "192.168.1.100",
		},
		{
			name:   "access list with cidr",
			text:   "add 10.0.0.0/24 to the whitelist",
			intent: domain.IntentManageAccessList,
			ip:     "10.0.0.0/24",
		},
		{
			name:   "access list with garbage ip",
			text:   "add 999.1.1.1 to whitelist",
			intent: domain.IntentManageAccessList,
			ip:     "", // синтаксически битый адрес не извлекается
		},
		{
			name:   "show access list",
			text:   "show current IP access list",
			intent: domain.IntentManageAccessList,
		},
		{
			name:     "create db user",
			text:     "create database user app_service",
			intent:   domain.IntentManageDBUser,
			username: "app_service",
		},
		{
			name:     "reset password with email-like username",
			text:     "reset password for user john.doe@corp.example",
			intent:   domain.IntentResetPassword,
			username: "john.doe@corp.example",
		},
		{
			name:    "performance with tail cluster",
			text:    "Analyze performance issues on staging",
			intent:  domain.IntentAnalyzePerformance,
			cluster: "staging",
		},
		{
			name:    "performance with explicit window",
			text:    "analyze performance of cluster production over last 48 hours",
			intent:  domain.IntentAnalyzePerformance,
			cluster: "production",
			window:  48 * time.Hour,
		},
		{
			name:    "performance last week",
			text:    "analyze performance on cluster production for the last week",
			intent:  domain.IntentAnalyzePerformance,
			cluster: "production",
			window:  7 * 24 * time.Hour,
		},
		{
			name:    "list databases",
			text:    "list databases in cluster production",
			intent:  domain.IntentListDatabases,
			cluster: "production",
		},
		{
			name:     "list collections in database",
			text:     "show collections in analytics on cluster production",
			intent:   domain.IntentListCollections,
			cluster:  "production",
			database: "analytics",
		},
		{
			name:       "analyze schema",
			text:       "analyze schema for orders collection in ecommerce on cluster production",
			intent:     domain.IntentAnalyzeSchema,
			cluster:    "production",
			database:   "ecommerce",
			collection: "orders",
		},
		{
			name:    "connect to cluster",
			text:    "connect to cluster staging",
			intent:  domain.IntentConnectCluster,
			cluster: "staging",
		},
		{
			name:   "bare help",
			text:   "help",
			intent: domain.IntentGetHelp,
		},
		{
			name:   "what can i do",
			text:   "What can I do?",
			intent: domain.IntentGetHelp,
		},
		{
			name:   "free text stays unknown",
			text:   "what's the weather like today",
			intent: domain.IntentUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ext.Extract(context.Background(), tt.text)

			if cmd.Intent != tt.intent {
				t.Fatalf("intent = %s, want %s", cmd.Intent, tt.intent)
			}
			if cmd.RawText != tt.text {
				t.Errorf("raw text not preserved")
			}
			if cmd.Target.Cluster != tt.cluster {
				t.Errorf("cluster = %q, want %q", cmd.Target.Cluster, tt.cluster)
			}
			if cmd.Target.Database != tt.database {
				t.Errorf("database = %q, want %q", cmd.Target.Database, tt.database)
			}
			if cmd.Target.Collection != tt.collection {
				t.Errorf("collection = %q, want %q", cmd.Target.Collection, tt.collection)
			}
			if got := cmd.Param(domain.ParamIP); got != tt.ip {
				t.Errorf("ip = %q, want %q", got, tt.ip)
			}
			if got := cmd.Param(domain.ParamUsername); got != tt.username {
				t.Errorf("username = %q, want %q", got, tt.username)
			}

			if tt.window == 0 {
				if cmd.Range != nil {
					t.Errorf("range = %v, want nil", cmd.Range)
				}
			} else if cmd.Range == nil || cmd.Range.Window != tt.window {
				t.Errorf("range = %v, want %v", cmd.Range, tt.window)
			}
		})
	}
}

func TestExtractUnknownCarriesNoParams(t *testing.T) {
	ext := New(nil, zap.NewNop())
	cmd := ext.Extract(context.Background(), "random chatter 10.0.0.1 cluster foo")
	if cmd.Intent != domain.IntentUnknown {
		t.Fatalf("intent = %s, want unknown", cmd.Intent)
	}
	if cmd.Params != nil || cmd.Target != (domain.Target{}) {
		t.Errorf("unknown command must not carry target or params, got %+v", cmd)
	}
}

type stubAssist struct {
	intent domain.Intent
	err    error
	called bool
}

func (s *stubAssist) SuggestIntent(ctx context.Context, text string) (domain.Intent, error) {
	s.called = true
	return s.intent, s.err
}

func TestExtractAssistFallback(t *testing.T) {
	t.Run("assist resolves unknown text", func(t *testing.T) {
		assist := &stubAssist{intent: domain.IntentListClusters}
		ext := New(assist, zap.NewNop())

		cmd := ext.Extract(context.Background(), "which deployments do we have")
		if !assist.called {
			t.Fatal("assist was not consulted")
		}
		if cmd.Intent != domain.IntentListClusters {
			t.Errorf("intent = %s, want list-clusters", cmd.Intent)
		}
	})

	t.Run("assist not consulted when patterns match", func(t *testing.T) {
		assist := &stubAssist{intent: domain.IntentCreateCluster}
		ext := New(assist, zap.NewNop())

		cmd := ext.Extract(context.Background(), "list my clusters")
		if assist.called {
			t.Error("assist must not be consulted when patterns matched")
		}
		if cmd.Intent != domain.IntentListClusters {
			t.Errorf("intent = %s, want list-clusters", cmd.Intent)
		}
	})

	t.Run("assist error falls back to unknown", func(t *testing.T) {
		assist := &stubAssist{err: errors.New("timeout")}
		ext := New(assist, zap.NewNop())

		cmd := ext.Extract(context.Background(), "which deployments do we have")
		if cmd.Intent != domain.IntentUnknown {
			t.Errorf("intent = %s, want unknown", cmd.Intent)
		}
	})

	t.Run("assist answer outside closed set is rejected", func(t *testing.T) {
		assist := &stubAssist{intent: domain.Intent("drop-all-tables")}
		ext := New(assist, zap.NewNop())

		cmd := ext.Extract(context.Background(), "which deployments do we have")
		if cmd.Intent != domain.IntentUnknown {
			t.Errorf("intent = %s, want unknown", cmd.Intent)
		}
	})
}
