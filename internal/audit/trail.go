package audit

/*
Файл trail.go реализует журнал попыток доступа (Access Trail) — кто, с какой
ролью и с каким вердиктом обращался к операциям платформы.

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал на пути обработки сообщения,
  задержки записи в БД не влияют на время ответа бота.
- Batching: накопление событий в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью, финальный flush гарантирует отсутствие потерь при перезагрузке.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []AccessEvent) error
}

type Recorder interface {
	Record(event AccessEvent)
}

const batchSize = 100

type Trail struct {
	ch     chan AccessEvent
	repo   StorageInterface
	logger *zap.Logger
	flush  time.Duration
	wg     sync.WaitGroup

	// mu сериализует Record и close(ch): запись держит RLock, остановка —
	// Lock, поэтому отправка в закрытый канал исключена
	mu     sync.RWMutex
	closed bool
}

func NewTrail(repo StorageInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:     make(chan AccessEvent, bufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit")),
		flush:  flushInterval,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true

	// Drain Pattern: завершение воркера происходит только через закрытие канала.
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Record(event AccessEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит в обычный лог,
	// чтобы след не потерялся целиком
	select {
	case t.ch <- event:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("actor_id", event.ActorID),
			zap.String("trace_id", event.TraceID),
			zap.String("intent", event.Intent),
			zap.String("status", event.Status),
		)
	}
}

func (t *Trail) Pending() int {
	return len(t.ch)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]AccessEvent, 0, batchSize)
	ticker := time.NewTicker(t.flush)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на остановке может быть уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер сначала вычитал остатки,
				// теперь финальный сброс и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
