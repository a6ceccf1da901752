package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/pkg/logging"
)

const Production = "production"

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

const (
	GuardLocal    = "local"
	GuardFile     = "file"
	GuardPostgres = "postgres"
	GuardRedis    = "redis"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given dotenv files. Files missing from the working
// directory are looked up in the nearest directory containing go.mod.
func LoadEnv(envFiles []string) (int, error) {
	root := moduleRoot()

	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if root == "" || filepath.IsAbs(file) {
			continue
		}
		candidate := filepath.Join(root, file)
		if fs.FileExists(candidate) {
			existingFiles = append(existingFiles, candidate)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"mifostenant-default"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"8"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type StorageOptions struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"extid.db"`
	FixturePath string `env:"MEMORY_FIXTURE_PATH"`
}

type GuardOptions struct {
	Backend       string        `env:"GUARD_BACKEND" envDefault:"local"`
	LockTimeout   time.Duration `env:"GUARD_LOCK_TIMEOUT" envDefault:"5s"`
	RetryInterval time.Duration `env:"GUARD_RETRY_INTERVAL" envDefault:"25ms"`
	LockDir       string        `env:"GUARD_LOCK_DIR" envDefault:".extid-locks"`
	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisLockTTL  time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
}

// Validate checks the guard configuration for errors
func (g *GuardOptions) Validate() error {
	switch g.Backend {
	case GuardLocal, GuardFile, GuardPostgres, GuardRedis:
	default:
		return fmt.Errorf("invalid GUARD_BACKEND=%q (expected local|file|postgres|redis)", g.Backend)
	}
	if g.LockTimeout <= 0 {
		return fmt.Errorf("GUARD_LOCK_TIMEOUT must be positive, got %s", g.LockTimeout)
	}
	if g.RetryInterval <= 0 {
		return fmt.Errorf("GUARD_RETRY_INTERVAL must be positive, got %s", g.RetryInterval)
	}
	if g.Backend == GuardRedis {
		if strings.TrimSpace(g.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when GUARD_BACKEND is 'redis'")
		}
		if g.RedisLockTTL < g.LockTimeout {
			return fmt.Errorf("REDIS_LOCK_TTL (%s) must not be shorter than GUARD_LOCK_TIMEOUT (%s)", g.RedisLockTTL, g.LockTimeout)
		}
	}
	if g.Backend == GuardFile && strings.TrimSpace(g.LockDir) == "" {
		return fmt.Errorf("GUARD_LOCK_DIR is required when GUARD_BACKEND is 'file'")
	}
	return nil
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"extidgen"`
}

type Configuration struct {
	Database      DatabaseOptions
	Storage       StorageOptions
	Guard         GuardOptions
	OpenTelemetry OpenTelemetryOptions

	// Office that anchors the tree; it never receives an identifier.
	RootOfficeID int64 `env:"ROOT_OFFICE_ID" envDefault:"1"`

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load builds a fresh configuration from the given dotenv files and the
// process environment. Use is preferred outside of tests and tools.
func Load(envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard configuration error: %w", err)
	}
	if c.Guard.Backend == GuardPostgres && c.Storage.Driver != StoragePostgres {
		return fmt.Errorf("GUARD_BACKEND=postgres requires STORAGE_DRIVER=postgres, got %q", c.Storage.Driver)
	}
	if c.RootOfficeID <= 0 {
		return fmt.Errorf("ROOT_OFFICE_ID must be positive, got %d", c.RootOfficeID)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validateStorage() error {
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER=%q (expected memory|sqlite|postgres)", c.Storage.Driver)
	}
	c.Storage.Driver = driver
	c.Guard.Backend = strings.ToLower(strings.TrimSpace(c.Guard.Backend))
	if driver == StorageSQLite && strings.TrimSpace(c.Storage.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER is 'sqlite'")
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}
