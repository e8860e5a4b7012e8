//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"tux/internal/biz"
	"tux/internal/bot"
	"tux/internal/conf"
	"tux/internal/data"
	"tux/internal/discord"
	"tux/internal/server"
	"tux/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Discord, *conf.Moderation, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		discord.ProviderSet,
		bot.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newCronServer,
		newApp,
	))
}
