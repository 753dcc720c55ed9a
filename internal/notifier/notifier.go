package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeniedAlert — сообщение администраторам о неудачной попытке доступа.
// Публикуется в общий канал, подписчики (страница дежурного, второй
// экземпляр бота) доставляют его в админский чат.
type DeniedAlert struct {
	ActorID   string    `json:"actor_id"`
	Role      string    `json:"role"`
	Intent    string    `json:"intent"`
	Reason    string    `json:"reason"`
	RawText   string    `json:"raw_text"`
	Timestamp time.Time `json:"timestamp"`
}

type AdminNotifier struct {
	rdb     *redis.Client
	enabled bool
	logger  *zap.Logger
}

func NewAdminNotifier(rdb *redis.Client, enabled bool, logger *zap.Logger) *AdminNotifier {
	return &AdminNotifier{
		rdb:     rdb,
		enabled: enabled,
		logger:  logger.With(zap.String("mod", "notifier")),
	}
}

// NotifyDenied шлет алерт по отказу. Ошибки доставки не всплывают наверх:
// отказ пользователю уже сформирован, алерт — побочный канал.
func (n *AdminNotifier) NotifyDenied(ctx context.Context, actor domain.Actor, cmd domain.Command, reason domain.DenyReason) {
	if !n.enabled || n.rdb == nil {
		return
	}

	alert := DeniedAlert{
		ActorID:   actor.ID,
		Role:      string(actor.Role),
		Intent:    string(cmd.Intent),
		Reason:    string(reason),
		RawText:   cmd.RawText,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("failed to marshal denied alert", zap.Error(err))
		return
	}

	if err := n.rdb.Publish(ctx, infra.RedisChanAdminAlerts, payload).Err(); err != nil {
		n.logger.Warn("failed to publish denied alert",
			zap.String("actor_id", actor.ID),
			zap.Error(err),
		)
		return
	}

	n.logger.Info("denied access alert published",
		zap.String("actor_id", actor.ID),
		zap.String("intent", string(cmd.Intent)),
		zap.String("reason", string(reason)),
	)
}
