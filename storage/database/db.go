package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/fs"
)

const migrationsDir = "migrations"

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sql.Open(conf.Database.Engine, u.String())
}

// Open connects to the app database. It does not check the connection.
func Open(conf *core.Config) (*sql.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// waitReady pings until the server answers, backing off a little more after each failure.
func waitReady(db *sql.DB, attempts int) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(i) * 100 * time.Millisecond)
	}
	return errors.Wrapf(err, "database not ready after %d attempts", attempts)
}

func exists(db *sql.DB, query, name string) (bool, error) {
	var found bool
	err := db.QueryRow(query, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return found, err
}

// ensureRole creates the login role the app connects with.
func ensureRole(db *sql.DB, name, password string) error {
	if name == "" {
		return nil
	}
	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", name)
	if err != nil || found {
		return errors.Wrap(err, "looking up role")
	}
	q := fmt.Sprintf("CREATE ROLE %s LOGIN CREATEDB ENCRYPTED PASSWORD %s", pq.QuoteIdentifier(name), pq.QuoteLiteral(password))
	_, err = db.Exec(q)
	return errors.Wrap(err, "creating role")
}

// ensureDatabase creates the app database, owned by `owner` when set.
func ensureDatabase(db *sql.DB, name, owner string) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", name)
	if err != nil || found {
		return errors.Wrap(err, "looking up database")
	}
	q := "CREATE DATABASE " + pq.QuoteIdentifier(name)
	if owner != "" {
		q += " OWNER " + pq.QuoteIdentifier(owner)
	}
	_, err = db.Exec(q)
	return errors.Wrap(err, "creating database")
}

// CreateIfNotExist connects to the maintenance database as the admin user and
// creates the app role and database when they are missing.
func CreateIfNotExist(conf *core.Config) error {
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening maintenance database")
	}
	defer func() { _ = db.Close() }()

	if err = waitReady(db, 30); err != nil {
		return err
	}
	if err = ensureRole(db, conf.Database.User, conf.Database.Password); err != nil {
		return err
	}
	return ensureDatabase(db, conf.Database.Name, conf.Database.User)
}

// RunMigrations runs a goose command ("up", "down", "status", "up-to 3", ...) against the embedded migrations.
func RunMigrations(db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return goose.Run(command, db, migrationsDir, args...)
}

func Migrate(db *sql.DB) error {
	if err := RunMigrations(db, "up"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
