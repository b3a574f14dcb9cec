package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/cli/config"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/rerank"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// engineConfig is the flag set shared by every command that needs the
// use cases
type engineConfig struct {
	app   config.AppConfig
	repo  config.Repository
	llm   config.LLM
	cache config.Cache
	slack config.Slack
}

func (e *engineConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, e.app.Flags()...)
	flags = append(flags, e.repo.Flags()...)
	flags = append(flags, e.llm.Flags()...)
	flags = append(flags, e.cache.Flags()...)
	flags = append(flags, e.slack.Flags()...)
	return flags
}

// engine holds the constructed use cases and everything that must be
// released when the command ends
type engine struct {
	repo    interfaces.Repository
	uc      *usecase.UseCases
	closers []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// Build constructs every store, client and use case from the flags
func (e *engineConfig) Build(ctx context.Context) (*engine, error) {
	logger := logging.Default()

	if err := e.app.Configure(); err != nil {
		return nil, goerr.Wrap(err, "failed to load configuration")
	}

	llmClient, err := e.llm.Configure(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := e.llm.ConfigureEmbedding(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := e.repo.Configure(ctx, e.llm.Dimension())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}
	eng := &engine{repo: repo}
	eng.closers = append(eng.closers, func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close repository", logging.ErrAttr(err))
		}
	})

	cache, closeCache, err := e.cache.Configure(ctx)
	if err != nil {
		eng.Close()
		return nil, goerr.Wrap(err, "failed to initialize context cache")
	}
	eng.closers = append(eng.closers, closeCache)

	slackSvc, err := e.slack.Configure()
	if err != nil {
		eng.Close()
		return nil, goerr.Wrap(err, "failed to initialize slack service")
	}

	opts := []usecase.Option{
		usecase.WithContextCache(cache),
		usecase.WithRetrievalConfig(e.app.RetrievalConfig()),
		usecase.WithDispatchConfig(e.app.DispatchConfig()),
		usecase.WithIndexConfig(e.app.IndexConfig()),
	}

	var embedder usecase.Embedder
	if generator != nil {
		embedder = generator
		opts = append(opts, usecase.WithEmbedder(generator))
	} else {
		logger.Warn("No embedding provider configured, retrieval and indexing are disabled")
	}

	if llmClient != nil {
		a, err := analyzer.New(llmClient)
		if err != nil {
			eng.Close()
			return nil, err
		}
		opts = append(opts, usecase.WithAnalyzer(a))

		if e.app.RerankEnabled() {
			r, err := rerank.New(llmClient)
			if err != nil {
				eng.Close()
				return nil, err
			}
			opts = append(opts, usecase.WithReranker(r))
		}
	} else {
		logger.Warn("No LLM provider configured, conversations cannot be analyzed")
	}

	memUC := usecase.NewMemoryUseCase(repo, embedder)
	registry, err := action.NewDefaultRegistry(action.Deps{
		Customers: repo.Customer(),
		Memory:    memUC,
		Slack:     slackSvc,
	}, e.app.ActionRoutes())
	if err != nil {
		eng.Close()
		return nil, goerr.Wrap(err, "failed to build action handlers")
	}
	opts = append(opts,
		usecase.WithMemoryUseCase(memUC),
		usecase.WithHandlerRegistry(registry),
	)

	eng.uc = usecase.New(repo, opts...)

	logger.Info("Engine configured",
		"repository", e.repo,
		"llm", e.llm,
		"cache", e.cache,
		"slack", e.slack,
		"actions", registry.Types(),
	)
	return eng, nil
}
