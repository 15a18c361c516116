package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/chatcart/chatcart/cache"

	"github.com/chatcart/chatcart/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func logError(op string, err error) {
	logrus.Warnf("%s: %v", op, err)
}

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		newCache, cacheErr := cache.NewCache()
		if cacheErr != nil {
			// The datasource degrades to uncached reads.
			logError("cache init", cacheErr)
		}
		instance = &Datasource{Conn: con, Cache: newCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = CreateTables(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// CreateTables bootstraps the schema. Safe to run repeatedly.
func CreateTables(db *sql.DB) error {
	if err := createActorTable(db); err != nil {
		return err
	}
	if err := createPreOrderTable(db); err != nil {
		return err
	}
	if err := createOrderTable(db); err != nil {
		return err
	}
	return createSyncOutboxTable(db)
}

// createActorTable creates a PostgreSQL table for actor conversation state.
// Histories are stored as JSONB arrays of turns.
func createActorTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS actors (
			actor_id TEXT PRIMARY KEY,
			full_history JSONB NOT NULL DEFAULT '[]',
			relevant_history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createPreOrderTable creates a PostgreSQL table for pending orders. The
// unique index on actor_id backs the at-most-one-pending-per-actor invariant.
func createPreOrderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pre_orders (
			id SERIAL PRIMARY KEY,
			actor_id TEXT NOT NULL,
			items JSONB NOT NULL DEFAULT '[]',
			order_type TEXT NOT NULL,
			scheduled_for TIMESTAMP,
			address_id TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_pre_orders_actor ON pre_orders (actor_id)
	`)
	return err
}

// createOrderTable creates a PostgreSQL table for committed orders.
func createOrderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			items JSONB NOT NULL DEFAULT '[]',
			order_type TEXT NOT NULL,
			scheduled_for TIMESTAMP,
			address_id TEXT,
			committed_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createSyncOutboxTable creates the outbox consumed by the downstream
// replication job. Rows are written whenever an entity is marked dirty.
func createSyncOutboxTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_outbox (
			id SERIAL PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			marked_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
