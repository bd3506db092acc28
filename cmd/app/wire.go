//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/phenosat/sitefinder/internal/bootstrap"
	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/infra/config"
	httpiface "github.com/phenosat/sitefinder/internal/interface/http"
	"github.com/phenosat/sitefinder/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideCacheStore,
		provideCache,
		provideSiteSource,
		provideSourceFactory,
		provideResultRepository,
		provideEvaluationConfig,
		evaluation.NewService,
		evaluation.NewRunner,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
