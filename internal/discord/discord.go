package discord

import (
	"tux/internal/biz"
	"tux/internal/model"

	"github.com/google/wire"
)

// ProviderSet is discord adapter providers.
var ProviderSet = wire.NewSet(
	NewSession,
	NewClassifier,
	NewGateway,
	NewDirectMessenger,
	NewEmbedManager,
	wire.Bind(new(model.FailureClassifier), new(*Classifier)),
	wire.Bind(new(biz.GatewayActions), new(*Gateway)),
	wire.Bind(new(biz.DMSender), new(*DirectMessenger)),
	wire.Bind(new(biz.EmbedSender), new(*EmbedManager)),
)
