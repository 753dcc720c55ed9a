package formatter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/engine"
)

func TestDenialMessagesAreDistinct(t *testing.T) {
	f := New(nil, zap.NewNop())

	user := domain.Actor{ID: "U_USER", Role: domain.RoleUser}
	ghost := domain.Actor{ID: "U_GHOST", Role: domain.RoleUnknown}

	roleDenied := f.FormatDenial(user, domain.Deny(domain.DenyInsufficientRole))
	scopeDenied := f.FormatDenial(user, domain.Deny(domain.DenyScopeViolation))
	unknownIntent := f.FormatDenial(user, domain.Deny(domain.DenyUnknownIntent))
	unknownActor := f.FormatDenial(ghost, domain.Deny(domain.DenyInsufficientRole))

	msgs := map[string]string{
		"insufficient role": roleDenied,
		"scope violation":   scopeDenied,
		"unknown intent":    unknownIntent,
		"unknown actor":     unknownActor,
	}
	seen := map[string]string{}
	for name, msg := range msgs {
		if msg == "" {
			t.Fatalf("%s produced empty message", name)
		}
		if prev, ok := seen[msg]; ok {
			t.Errorf("%s and %s share the same message %q", name, prev, msg)
		}
		seen[msg] = name
	}
}

func TestDenialDoesNotLeakRosterOrResources(t *testing.T) {
	f := New(nil, zap.NewNop())
	ghost := domain.Actor{ID: "U_GHOST", Role: domain.RoleUnknown}

	// Один и тот же текст для любой операции: нельзя прощупать, что существует
	a := f.FormatDenial(ghost, domain.Deny(domain.DenyInsufficientRole))
	b := f.FormatDenial(ghost, domain.Deny(domain.DenyScopeViolation))
	if a != b {
		t.Errorf("unknown actor gets different texts per operation: %q vs %q", a, b)
	}
	if strings.Contains(a, "U_GHOST") {
		t.Errorf("denial leaks sender id: %q", a)
	}
}

func TestFormatValidationCarriesUsage(t *testing.T) {
	f := New(nil, zap.NewNop())
	msg := f.FormatValidation(&engine.ValidationError{
		Intent:  domain.IntentManageAccessList,
		Missing: []string{"ip"},
		Usage:   "add IP <address> to whitelist",
	})
	if !strings.Contains(msg, "ip") {
		t.Errorf("message %q does not name the missing parameter", msg)
	}
	if !strings.Contains(msg, "add IP <address> to whitelist") {
		t.Errorf("message %q does not include the usage hint", msg)
	}
}

func TestFormatHelpIsRoleFiltered(t *testing.T) {
	f := New(nil, zap.NewNop())

	adminHelp := f.FormatHelp(domain.Actor{ID: "A", Role: domain.RoleAdmin})
	userHelp := f.FormatHelp(domain.Actor{ID: "U", Role: domain.RoleUser})
	selfHelp := f.FormatHelp(domain.Actor{ID: "S", Role: domain.RoleSelfService})
	ghostHelp := f.FormatHelp(domain.Actor{ID: "G", Role: domain.RoleUnknown})

	if !strings.Contains(adminHelp, "create a new cluster") {
		t.Error("admin help misses create-cluster usage")
	}
	if strings.Contains(userHelp, "create a new cluster") {
		t.Error("user help leaks admin-only command")
	}
	if !strings.Contains(userHelp, "list my clusters") {
		t.Error("user help misses list-clusters usage")
	}
	if strings.Contains(selfHelp, "list my clusters") {
		t.Error("self-service help leaks read commands")
	}
	if !strings.Contains(selfHelp, "reset password") {
		t.Error("self-service help misses reset-password usage")
	}
	if strings.Contains(ghostHelp, "cluster") {
		t.Errorf("unknown role help leaks commands: %q", ghostHelp)
	}
}

func TestFormatOutcomeErrors(t *testing.T) {
	f := New(nil, zap.NewNop())

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", connectors.NewExecError(connectors.KindNotFound, "op", "x"), "not found"},
		{"transient", connectors.NewExecError(connectors.KindTransient, "op", "x"), "temporarily unavailable"},
		{"malformed", connectors.NewExecError(connectors.KindMalformed, "op", "x"), "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.FormatOutcome(context.Background(), &engine.Outcome{
				Intent:  domain.IntentInspectCluster,
				Results: []engine.Result{{Op: "op", Err: tt.err}},
			})
			if !strings.Contains(out, tt.want) {
				t.Errorf("message %q does not contain %q", out, tt.want)
			}
			// Текст ошибки коннектора наружу не уходит
			if strings.Contains(out, "op [") {
				t.Errorf("message leaks internal error text: %q", out)
			}
		})
	}
}

func TestFormatOutcomeFanOutKeepsOrder(t *testing.T) {
	f := New(nil, zap.NewNop())
	outcome := &engine.Outcome{
		Intent: domain.IntentListCollections,
		FanOut: true,
		Results: []engine.Result{
			{Op: "op", Database: "analytics", Data: []byte(`{"collections":["events"]}`)},
			{Op: "op", Database: "ecommerce", Data: []byte(`{"collections":["orders","products"]}`)},
		},
	}
	out := f.FormatOutcome(context.Background(), outcome)

	ia := strings.Index(out, "analytics")
	ie := strings.Index(out, "ecommerce")
	if ia == -1 || ie == -1 || ia > ie {
		t.Errorf("fan-out sections out of order: %q", out)
	}
	if !strings.Contains(out, "events") || !strings.Contains(out, "orders") {
		t.Errorf("collections missing from output: %q", out)
	}
}

type failingPolisher struct{}

func (failingPolisher) Polish(ctx context.Context, draft string) (string, error) {
	return "", errors.New("assistant down")
}

type upperPolisher struct{}

func (upperPolisher) Polish(ctx context.Context, draft string) (string, error) {
	return "POLISHED: " + draft, nil
}

func TestPolishFallback(t *testing.T) {
	outcome := &engine.Outcome{
		Intent:  domain.IntentListDatabases,
		Results: []engine.Result{{Op: "op", Data: []byte(`{"databases":["ecommerce"]}`)}},
	}

	t.Run("polisher failure falls back to deterministic text", func(t *testing.T) {
		f := New(failingPolisher{}, zap.NewNop())
		out := f.FormatOutcome(context.Background(), outcome)
		if !strings.Contains(out, "ecommerce") {
			t.Errorf("fallback text lost data: %q", out)
		}
	})

	t.Run("polisher output is used when available", func(t *testing.T) {
		f := New(upperPolisher{}, zap.NewNop())
		out := f.FormatOutcome(context.Background(), outcome)
		if !strings.HasPrefix(out, "POLISHED:") {
			t.Errorf("polisher output ignored: %q", out)
		}
	})

	t.Run("denials are never polished", func(t *testing.T) {
		f := New(upperPolisher{}, zap.NewNop())
		msg := f.FormatDenial(domain.Actor{Role: domain.RoleUser}, domain.Deny(domain.DenyInsufficientRole))
		if strings.HasPrefix(msg, "POLISHED:") {
			t.Errorf("denial text went through the polisher: %q", msg)
		}
	})
}
