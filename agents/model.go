package agents

import (
	"log/slog"
	"time"

	"github.com/JoshPattman/jpf"
)

// ModelBuilder builds LLM models.
type ModelBuilder interface {
	// BuildModel builds a model for one pipeline role, logging through logger.
	BuildModel(logger *slog.Logger) jpf.Model
}

// NewModelBuilder tries to create a new ModelBuilder for OpenAI with the specified API key.
// When cachePath is set, responses are persisted to that file.
// At most maxConcurrency requests are in flight across all roles.
func NewModelBuilder(apiKey, modelName string, temperature float64, maxConcurrency int, cachePath string) (ModelBuilder, error) {
	mb := &simpleModelBuilder{
		apiKey:      apiKey,
		modelName:   modelName,
		temperature: temperature,
		concLimiter: jpf.NewMaxConcurrentLimiter(maxConcurrency),
	}
	if cachePath != "" {
		cache, err := jpf.NewFilePersistCache(cachePath)
		if err != nil {
			return nil, err
		}
		mb.cache = cache
	}
	return mb, nil
}

type simpleModelBuilder struct {
	apiKey      string
	modelName   string
	temperature float64
	concLimiter jpf.ConcurrentLimiter
	cache       jpf.ModelResponseCache
}

func (mb *simpleModelBuilder) BuildModel(logger *slog.Logger) jpf.Model {
	model := jpf.NewOpenAIModel(mb.apiKey, mb.modelName, jpf.WithTemperature{X: mb.temperature})
	model = jpf.NewLoggingModel(model, jpf.NewSlogModelLogger(logger.Debug, false))
	model = jpf.NewRetryModel(model, 8, jpf.WithDelay{X: time.Second * 5})
	model = jpf.NewConcurrentLimitedModel(model, mb.concLimiter)
	if mb.cache != nil {
		model = jpf.NewCachedModel(model, mb.cache)
	}
	return model
}
