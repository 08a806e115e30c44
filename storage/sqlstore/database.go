package sqlstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/iotaledger/entitycache/logger"
)

const (
	EngineSQLite     = "sqlite"
	EnginePostgreSQL = "postgresql"
	EngineMySQL      = "mysql"
)

// ErrUnknownEngine is returned for an unsupported database engine.
var ErrUnknownEngine = errors.New("unknown database engine")

// Parameters contains the configuration parameters of the SQL database.
type Parameters struct {
	Engine string `default:"sqlite" usage:"the database engine (sqlite|postgresql|mysql)"`

	// SQLite
	Path     string `default:"data/sql" usage:"the directory of the sqlite database"`
	Filename string `default:"entitycache.db" usage:"the file name of the sqlite database"`

	// PostgreSQL and MySQL
	Host     string `default:"localhost" usage:"the host of the database server"`
	Port     uint   `default:"5432" usage:"the port of the database server"`
	Database string `default:"entitycache" usage:"the name of the database"`
	Username string `default:"entitycache" usage:"the user of the database"`
	Password string `default:"" usage:"the password of the database user"`
}

type databaseOptions struct {
	gormConfig       *gorm.Config
	gormLoggerConfig gormLogger.Config
}

// Option is a function setting a databaseOptions field.
type Option func(*databaseOptions)

// WithGormConfig allows to set the gorm config.
// HINT: The Logger setting will be overwritten by the internal default value or by the value set by WithGormLoggerConfig.
func WithGormConfig(config *gorm.Config) Option {
	return func(o *databaseOptions) {
		o.gormConfig = config
	}
}

// WithGormLoggerConfig allows to set the gorm logger config.
func WithGormLoggerConfig(config gormLogger.Config) Option {
	return func(o *databaseOptions) {
		o.gormLoggerConfig = config
	}
}

// Open creates a new gorm database instance with the given parameters and options.
func Open(log *logger.Logger, params Parameters, opts ...Option) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(params.Engine) {
	case EngineSQLite, "":
		if err := os.MkdirAll(params.Path, 0o700); err != nil {
			return nil, errors.Wrap(err, "could not create database directory")
		}
		dialector = sqlite.Open(fmt.Sprintf("file:%s?&_journal_mode=WAL&_busy_timeout=60000", filepath.Join(params.Path, params.Filename)))
	case EnginePostgreSQL:
		dsn := fmt.Sprintf("host='%s' user='%s' password='%s' dbname='%s' port=%d", params.Host, params.Username, params.Password, params.Database, params.Port)
		dialector = postgres.Open(dsn)
	case EngineMySQL:
		// clientFoundRows makes unchanged rows count as affected
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true", params.Username, params.Password, params.Host, params.Port, params.Database)
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Wrapf(ErrUnknownEngine, "%s, supported engines: %s", params.Engine, strings.Join([]string{EngineSQLite, EnginePostgreSQL, EngineMySQL}, ", "))
	}

	options := &databaseOptions{
		gormConfig: &gorm.Config{},
		gormLoggerConfig: gormLogger.Config{
			SlowThreshold:             100 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	}
	for _, opt := range opts {
		opt(options)
	}
	// the gorm logger always writes to the given logger
	options.gormConfig.Logger = gormLogger.New(newLogger(log), options.gormLoggerConfig)

	database, err := gorm.Open(dialector, options.gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}

	return database, nil
}

type sqlLogger struct {
	*logger.WrappedLogger
}

func newLogger(log *logger.Logger) *sqlLogger {
	return &sqlLogger{
		WrappedLogger: logger.NewWrappedLogger(log),
	}
}

func (l *sqlLogger) Printf(t string, args ...interface{}) {
	l.LogWarnf(t, args...)
}
