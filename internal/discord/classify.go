package discord

import (
	"errors"
	"net/http"
	"time"

	"tux/internal/model"

	"github.com/bwmarrin/discordgo"
)

// JSON error codes that indicate a missing target rather than a
// transient condition.
var notFoundCodes = map[int]bool{
	discordgo.ErrCodeUnknownUser:    true,
	discordgo.ErrCodeUnknownMember:  true,
	discordgo.ErrCodeUnknownChannel: true,
	discordgo.ErrCodeUnknownBan:     true,
	discordgo.ErrCodeUnknownGuild:   true,
}

// Classifier maps discordgo errors onto the failure taxonomy consumed
// by the retry handler and circuit breakers.
type Classifier struct{}

// NewClassifier creates the discordgo failure classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify inspects a discordgo error. HTTP status is the primary
// signal; the JSON error code refines 403/404 into the right bucket.
// Anything that is not a discordgo error (timeouts, connection resets)
// stays unknown and therefore retriable.
func (c *Classifier) Classify(err error) model.FailureKind {
	var rlErr *discordgo.RateLimitError
	if errors.As(err, &rlErr) {
		return model.FailureRateLimited
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return model.FailureUnknown
	}

	if restErr.Message != nil && notFoundCodes[restErr.Message.Code] {
		return model.FailureNotFound
	}

	switch {
	case restErr.Response.StatusCode == http.StatusForbidden:
		return model.FailurePermission
	case restErr.Response.StatusCode == http.StatusNotFound:
		return model.FailureNotFound
	case restErr.Response.StatusCode == http.StatusTooManyRequests:
		return model.FailureRateLimited
	case restErr.Response.StatusCode >= 500:
		return model.FailureServerError
	default:
		return model.FailureUnknown
	}
}

// RetryAfter extracts the server-specified wait from a rate limit
// error. Only gateway-level 429s carry the hint.
func (c *Classifier) RetryAfter(err error) (time.Duration, bool) {
	var rlErr *discordgo.RateLimitError
	if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
		return rlErr.RetryAfter, true
	}
	return 0, false
}
