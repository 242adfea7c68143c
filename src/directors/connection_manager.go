package directors

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/kgroat/camouflage/src/engine"
	"github.com/kgroat/camouflage/src/models"
	"github.com/kgroat/camouflage/src/settings"
	"github.com/kgroat/camouflage/src/stores/memstore"
	"github.com/kgroat/camouflage/src/stores/mongostore"
	"go.uber.org/zap"
)

// Client is an open connection: the backend plus the registry that models
// for it are defined in.
type Client struct {
	Backend  models.Backend
	Registry *engine.Registry
	Options  *settings.Options
	logger   *zap.SugaredLogger
}

// Close shuts the backend down, flushes the logger and clears the current
// client if it is this one.
func (c *Client) Close(ctx context.Context) error {
	mu.Lock()
	if instance == c {
		instance = nil
	}
	mu.Unlock()
	defer c.logger.Sync()

	if err := c.Backend.Close(ctx); err != nil {
		return err
	}
	c.logger.Infow("Connection closed", "url", redact(c.Options.URL))
	return nil
}

var (
	instance *Client
	mu       sync.RWMutex
)

// GetClient returns the connection made by the latest Connect, or nil.
func GetClient() *Client {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// ResetClient forgets the current connection without closing it.
func ResetClient() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

// Connect opens the backend named by rawURL's scheme and makes it the
// current client. opts supplies everything the URL does not say; nil uses
// settings.GetSettings().
func Connect(ctx context.Context, rawURL string, opts *settings.Options) (*Client, error) {
	if opts == nil {
		opts = settings.GetSettings()
	}
	parsed, err := settings.ParseURL(rawURL, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnsupportedURL, err)
	}
	return open(ctx, parsed)
}

// ConnectFromFile reads YAML options from path and connects to their url.
func ConnectFromFile(ctx context.Context, path string) (*Client, error) {
	opts, err := settings.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, opts.URL, opts)
}

func open(ctx context.Context, opts *settings.Options) (*Client, error) {
	logger, err := NewLogger(opts)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	client := &Client{
		Backend:  backend,
		Registry: engine.NewRegistry(backend, logger),
		Options:  opts,
		logger:   logger,
	}

	mu.Lock()
	instance = client
	mu.Unlock()

	logger.Infow("Connected", "url", redact(opts.URL), "inMemory", opts.InMemory())
	return client, nil
}

func openBackend(ctx context.Context, opts *settings.Options, logger *zap.SugaredLogger) (models.Backend, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnsupportedURL, err)
	}

	switch u.Scheme {
	case settings.SchemeNeDB:
		return memstore.New(opts, logger)
	case settings.SchemeMongo, settings.SchemeMongoSRV:
		return mongostore.Connect(ctx, opts, logger)
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedURL, u.Scheme)
}

// NewLogger builds the logger a connection uses: a development config
// writing to stdout when Debug is set, the production config otherwise.
func NewLogger(opts *settings.Options) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error

	if opts.Debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}

// redact hides credentials before a url is logged.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
