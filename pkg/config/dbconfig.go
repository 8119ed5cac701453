package config

// DatabaseConfig describes one database connection DBPool can open.
// Grounded on the teacher's config.DatabaseConfig (the type dbpool.go
// expects but which wasn't part of this pack's retrieval of pkg/config) —
// rebuilt minimally here with just the fields DBPool.Get/createPool read,
// so pkg/store can open its durable tables against SQLite (default),
// Postgres, or MySQL via STORE_DRIVER/STORE_DSN instead of only ever
// hardcoding SQLite.
type DatabaseConfig struct {
	// Driver selects the SQL dialect: "sqlite" (default), "postgres", or
	// "mysql".
	Driver string

	// DataSourceName is the driver-specific DSN: a filesystem path (or
	// ":memory:") for sqlite, a libpq-style URL for postgres, a
	// go-sql-driver/mysql DSN for mysql.
	DataSourceName string

	MaxConns int
	MaxIdle  int
}

// DriverName returns the database/sql driver name registered for Driver.
func (c *DatabaseConfig) DriverName() string {
	switch c.Driver {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

// DSN returns the connection string to pass to sql.Open.
func (c *DatabaseConfig) DSN() string {
	return c.DataSourceName
}

// DatabaseConfigFromEnv builds a DatabaseConfig from STORE_DRIVER/STORE_DSN,
// defaulting to a local SQLite file when unset.
func DatabaseConfigFromEnv(defaultSQLitePath string) *DatabaseConfig {
	driver := String("STORE_DRIVER", "sqlite")
	dsn := String("STORE_DSN", defaultSQLitePath)
	return &DatabaseConfig{
		Driver:         driver,
		DataSourceName: dsn,
		MaxConns:       Int("STORE_MAX_CONNS", 0),
		MaxIdle:        Int("STORE_MAX_IDLE", 0),
	}
}
