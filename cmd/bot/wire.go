//go:build wireinject
// +build wireinject

package main

import (
	"github.com/Jacobbrewer1/howl/cmd/bot/config"
	"github.com/Jacobbrewer1/howl/pkg/clock"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/google/wire"
	"github.com/gorilla/mux"
)

func InitializeApp() (*App, error) {
	wire.Build(
		wire.Value(logging.Name(config.AppName)),
		logging.NewConfig,
		logging.CommonLogger,
		mux.NewRouter,
		clock.Real,
		NewApp,
	)
	return new(App), nil
}
