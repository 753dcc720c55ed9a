package extractor

import (
	"context"

	"go.uber.org/zap"

	"github.com/xela07ax/atlas-chatops/internal/domain"
)

// Assist — внешний LLM-сервис для подсказки интента по свободному тексту.
// Сервис ненадежен: любая ошибка или невалидный ответ — это просто отсутствие
// подсказки, extractor обязан работать и без него.
type Assist interface {
	SuggestIntent(ctx context.Context, text string) (domain.Intent, error)
}

type Extractor struct {
	assist Assist // nil — работаем только на паттернах
	logger *zap.Logger
}

func New(assist Assist, logger *zap.Logger) *Extractor {
	return &Extractor{
		assist: assist,
		logger: logger.Named("extractor"),
	}
}

// Extract разбирает свободный текст в структурированную команду.
//
// Ключевой контракт: если интент распознан, но обязательный параметр в тексте
// отсутствует, команда все равно возвращается с проставленным интентом —
// полноту проверяет диспетчер ПОСЛЕ авторизации. Так пользователь получает
// точное «не хватает параметра X» только если ему вообще можно эту операцию.
func (e *Extractor) Extract(ctx context.Context, text string) domain.Command {
	intent := matchIntent(text)

	if intent == domain.IntentUnknown && e.assist != nil {
		intent = e.suggest(ctx, text)
	}

	cmd := domain.Command{
		Intent:  intent,
		RawText: text,
		Params:  map[string]string{},
	}

	if intent == domain.IntentUnknown || intent == domain.IntentGetHelp {
		// unknown не несет ни цели, ни параметров — только уточняющий ответ
		cmd.Params = nil
		return cmd
	}

	cmd.Target = domain.Target{
		Cluster:    extractCluster(text),
		Database:   extractDatabase(text),
		Collection: extractCollection(text),
	}

	if ip := extractIP(text); ip != "" {
		cmd.Params[domain.ParamIP] = ip
	}
	if user := extractUsername(text); user != "" {
		cmd.Params[domain.ParamUsername] = user
	}
	cmd.Range = extractTimeRange(text)

	return cmd
}

// suggest спрашивает у LLM-ассиста интент для текста без ключевых слов.
// Ответ сверяется с закрытым словарем: все, что вне его, трактуется как unknown.
func (e *Extractor) suggest(ctx context.Context, text string) domain.Intent {
	intent, err := e.assist.SuggestIntent(ctx, text)
	if err != nil {
		e.logger.Debug("assist unavailable, falling back to unknown intent", zap.Error(err))
		return domain.IntentUnknown
	}
	for _, known := range domain.Intents {
		if intent == known {
			return intent
		}
	}
	e.logger.Warn("assist returned intent outside the closed set",
		zap.String("intent", string(intent)))
	return domain.IntentUnknown
}
