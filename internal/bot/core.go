package bot

import (
	"context"
	"errors"
	"time"

	"github.com/xela07ax/atlas-chatops/internal/audit"
	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/engine"
	"github.com/xela07ax/atlas-chatops/internal/extractor"
	"github.com/xela07ax/atlas-chatops/internal/formatter"
	"github.com/xela07ax/atlas-chatops/internal/notifier"
	"github.com/xela07ax/atlas-chatops/internal/policy"
	"github.com/xela07ax/atlas-chatops/internal/roster"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Core — конвейер обработки одного сообщения: ростер -> извлечение команды ->
// авторизация -> диспетчеризация -> форматирование. Каждый шаг пишет свой
// след в аудит, порядок шагов фиксирован: авторизация ВСЕГДА раньше
// валидации параметров и любого обращения к платформе.
type Core struct {
	roster     *roster.Manager
	extractor  *extractor.Extractor
	authz      *policy.Engine
	dispatcher *engine.Dispatcher
	formatter  *formatter.Formatter
	trail      audit.Recorder
	alerts     *notifier.AdminNotifier
	metrics    *engine.Metrics

	logAttempts bool
	logger      *zap.Logger
}

func NewCore(
	rost *roster.Manager,
	ext *extractor.Extractor,
	authz *policy.Engine,
	disp *engine.Dispatcher,
	fmtr *formatter.Formatter,
	trail audit.Recorder,
	alerts *notifier.AdminNotifier,
	metrics *engine.Metrics,
	logAttempts bool,
	logger *zap.Logger,
) *Core {
	return &Core{
		roster:      rost,
		extractor:   ext,
		authz:       authz,
		dispatcher:  disp,
		formatter:   fmtr,
		trail:       trail,
		alerts:      alerts,
		metrics:     metrics,
		logAttempts: logAttempts,
		logger:      logger.Named("core"),
	}
}

// Message — входящее сообщение чата. SourceIP проставляется транспортом
// (RealIP), сам отправитель его подменить не может.
type Message struct {
	SenderID string
	Aliases  []string
	SourceIP string
	Text     string
}

// OnMessage обрабатывает сообщение и возвращает текст ответа. Ответ есть
// всегда: любой сбой внутри конвейера превращается в осмысленный текст,
// а не в молчание бота.
func (c *Core) OnMessage(ctx context.Context, msg Message) string {
	start := time.Now()
	traceID := extractTraceID(ctx)

	actor := c.roster.Resolve(msg.SenderID, msg.Aliases)
	actor.SourceIP = msg.SourceIP

	cmd := c.extractor.Extract(ctx, msg.Text)
	c.metrics.MessagesTotal.WithLabelValues(string(cmd.Intent)).Inc()

	decision := c.authz.Authorize(actor, cmd)

	event := audit.AccessEvent{
		ID:      uuid.New().String(),
		TraceID: traceID,
		ActorID: actor.ID,
		Role:    string(actor.Role),
		Intent:  string(cmd.Intent),
		Cluster: cmd.Target.Cluster,
		RawText: msg.Text,
		Allowed: decision.Allowed,
	}

	status := "EXECUTED"
	defer func() {
		c.metrics.MessageDuration.WithLabelValues(string(cmd.Intent), status).Observe(time.Since(start).Seconds())
	}()

	if c.logAttempts {
		c.logger.Info("access attempt",
			zap.String("trace_id", traceID),
			zap.String("actor_id", actor.ID),
			zap.String("role", string(actor.Role)),
			zap.String("intent", string(cmd.Intent)),
			zap.Bool("allowed", decision.Allowed),
		)
	}

	if !decision.Allowed {
		status = "DENIED"
		c.metrics.DecisionsTotal.WithLabelValues(string(actor.Role), "deny", string(decision.Reason)).Inc()

		event.Status = status
		event.DenyReason = string(decision.Reason)
		event.DurationMs = time.Since(start).Milliseconds()
		c.trail.Record(event)

		// Непонятый текст — не инцидент безопасности, алерт не шлем
		if decision.Reason != domain.DenyUnknownIntent && c.alerts != nil {
			c.alerts.NotifyDenied(ctx, actor, cmd, decision.Reason)
		}
		return c.formatter.FormatDenial(actor, decision)
	}

	c.metrics.DecisionsTotal.WithLabelValues(string(actor.Role), "allow", "").Inc()

	// help отвечаем из реестра правил, без похода в платформу
	if cmd.Intent == domain.IntentGetHelp {
		status = "ALLOWED"
		event.Status = status
		event.DurationMs = time.Since(start).Milliseconds()
		c.trail.Record(event)
		return c.formatter.FormatHelp(actor)
	}

	// Диспетчеру передается команда ИЗ решения: политика могла ее сузить
	outcome, err := c.dispatcher.Dispatch(ctx, decision.Command)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			status = "CLARIFY"
			event.Status = status
			event.DurationMs = time.Since(start).Milliseconds()
			c.trail.Record(event)
			return c.formatter.FormatValidation(verr)
		}

		status = "FAILED"
		event.Status = status
		event.Error = err.Error()
		event.DurationMs = time.Since(start).Milliseconds()
		c.trail.Record(event)
		c.logger.Error("dispatch failed", zap.String("trace_id", traceID), zap.Error(err))
		return "Something went wrong while handling your request. Please try again."
	}

	event.Op = outcomeOp(outcome)
	for _, res := range outcome.Results {
		if res.Err != nil {
			status = "FAILED"
			event.Error = res.Err.Error()
			c.metrics.ExecErrorsTotal.WithLabelValues(string(connectors.KindOf(res.Err))).Inc()
		}
	}

	event.Status = status
	event.DurationMs = time.Since(start).Milliseconds()
	c.trail.Record(event)

	return c.formatter.FormatOutcome(ctx, outcome)
}

func outcomeOp(outcome *engine.Outcome) string {
	if len(outcome.Results) == 0 {
		return ""
	}
	return outcome.Results[0].Op
}
