package internal

import (
	"log/slog"
	"net/http"

	"github.com/starford/cardsync/internal/notice"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	logger     *slog.Logger
	notifiers  []notice.Notifier
	httpClient *http.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger sets the logger. Without it the application logs JSON to stdout.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithNotifier adds a destination for user notices. Notices always go to the
// log and to SSE subscribers as well.
func WithNotifier(n notice.Notifier) Option {
	return func(a *application) {
		a.notifiers = append(a.notifiers, n)
	}
}

// WithHTTPClient sets the client used to reach AnkiConnect.
func WithHTTPClient(c *http.Client) Option {
	return func(a *application) {
		a.httpClient = c
	}
}
