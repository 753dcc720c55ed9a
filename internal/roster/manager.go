package roster

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/infra"
)

// Manager хранит текущий снапшот ростера за атомарным указателем.
// Горячая перезагрузка: подмена указателя целиком, никаких частичных
// обновлений — читатели либо видят старый ростер, либо новый.
type Manager struct {
	current atomic.Pointer[Snapshot]
	v       *viper.Viper
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewManager(cfg infra.RBACConfig, v *viper.Viper, rdb *redis.Client, logger *zap.Logger) *Manager {
	m := &Manager{
		v:      v,
		rdb:    rdb,
		logger: logger.Named("roster"),
	}
	m.current.Store(BuildSnapshot(cfg, m.logger))
	return m
}

// Snapshot возвращает актуальный снапшот. Вызывается один раз на сообщение:
// весь дальнейший резолв этого сообщения идет по одной версии ростера.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// Resolve — удобный шорткат для транспорта: один снапшот на один вызов.
func (m *Manager) Resolve(rawID string, rawAliases []string) domain.Actor {
	return m.Snapshot().Resolve(rawID, rawAliases)
}

// Reload перечитывает секцию rbac и атомарно подменяет снапшот.
func (m *Manager) Reload() {
	cfg, err := infra.ReloadRBAC(m.v)
	if err != nil {
		// Старый снапшот остается действующим — хуже не станет
		m.logger.Error("roster reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	snap := BuildSnapshot(cfg, m.logger)
	m.current.Store(snap)
	m.logger.Info("roster reloaded", zap.Int("entries", snap.Size()))
}

// WatchFile подписывается на изменение конфиг-файла через viper.
// Дополняет Redis-сигнал для случая локальной правки файла.
func (m *Manager) WatchFile() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.logger.Info("config file changed", zap.String("file", e.Name))
		m.Reload()
	})
	m.v.WatchConfig()
}

// StartListener подписывается на Redis-канал и перечитывает ростер по сигналу.
// Цикл «живучий»: при обрыве подписки — пауза и переподключение, при каждом
// успешном коннекте — принудительный Reload (могли пропустить сигнал).
func (m *Manager) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}

	for {
		pubsub := m.rdb.Subscribe(ctx, infra.RedisChanRosterReload)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("failed to subscribe to roster channel", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		// Синхронизация при (пере)подключении
		m.Reload()
		m.logger.Info("roster reload listener started")

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				m.logger.Info("roster reload signal received", zap.String("payload", msg.Payload))
				m.Reload()
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
