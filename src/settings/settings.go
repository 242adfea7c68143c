package settings

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gopkg.in/yaml.v3"
)

const (
	SchemeNeDB     = "nedb"
	SchemeMongo    = "mongodb"
	SchemeMongoSRV = "mongodb+srv"

	// MemoryHost selects the pure in-memory embedded store: nedb://memory
	MemoryHost = "memory"
)

// Options configures a connection.
type Options struct {
	// URL selects the backend by scheme.
	URL string `yaml:"url"`

	// The directory for embedded datafiles. Empty means memory only.
	DataDir string `yaml:"datadir"`

	// Database name for networked backends.
	Database string `yaml:"database"`

	// Verbose logging
	Verbose bool `yaml:"verbose"`
	Debug   bool `yaml:"debug"`

	// How long embedded stores wait for the datafile lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// Rewrite datafiles without superseded entries when the store closes.
	AutoCompact bool `yaml:"auto_compact"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// InMemory reports whether an embedded store should skip datafiles.
func (o *Options) InMemory() bool {
	return o.DataDir == ""
}

var (
	instance *Options
	once     sync.Once
)

// GetSettings returns the process-wide defaults.
func GetSettings() *Options {
	once.Do(func() {
		instance = Defaults()
	})
	return instance
}

// Defaults returns a fresh Options with the library defaults filled in.
func Defaults() *Options {
	return &Options{
		URL:            "nedb://memory",
		LockTimeout:    5 * time.Second,
		AutoCompact:    true,
		ConnectTimeout: 10 * time.Second,
	}
}

// ParseURL fills scheme specific options from rawURL into a copy of base.
//
//	nedb://memory        in-memory embedded store
//	nedb:///var/data     embedded store persisted under /var/data
//	mongodb://host/db    MongoDB, database "db"
func ParseURL(rawURL string, base *Options) (*Options, error) {
	opts := Defaults()
	if base != nil {
		copied := *base
		opts = &copied
	}
	opts.URL = rawURL

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case SchemeNeDB:
		if u.Host == MemoryHost {
			opts.DataDir = ""
			return opts, nil
		}
		dir := u.Host + u.Path
		if dir == "" {
			return nil, fmt.Errorf("nedb url %q names neither memory nor a directory", rawURL)
		}
		opts.DataDir = dir
	case SchemeMongo, SchemeMongoSRV:
		// srv urls resolve DNS while parsing, so only the database is read here
		db := strings.TrimPrefix(u.Path, "/")
		if u.Scheme == SchemeMongo {
			cs, err := connstring.Parse(rawURL)
			if err != nil {
				return nil, fmt.Errorf("invalid mongodb url %q: %w", rawURL, err)
			}
			db = cs.Database
		}
		if db != "" {
			opts.Database = db
		}
		if opts.Database == "" {
			return nil, fmt.Errorf("mongodb url %q has no database name", rawURL)
		}
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	return opts, nil
}

// LoadFile reads YAML options from path on top of the defaults. The file
// must set url.
func LoadFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	// the url has no default here, a file must name its backend
	opts := Defaults()
	opts.URL = ""
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("config file %s has no url", path)
	}
	return opts, nil
}
