package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Layout of a credentials directory, as mounted from a Kubernetes secret.
const (
	serverCAFolder   = "server-ca"
	clientCertFolder = "client-cert"
	credentialFolder = "credential"
	port             = credentialFolder + "/port"
	user             = credentialFolder + "/user"
	password         = credentialFolder + "/password"
	dbname           = credentialFolder + "/dbname"
	serverFQDN       = credentialFolder + "/host"
	serverCA         = serverCAFolder + "/ca.crt"
	clientCrt        = clientCertFolder + "/tls.crt"
	clientKey        = clientCertFolder + "/tls.key"
)

const (
	TLSModeMTLS    = "mTLS"
	TLSModeTLS     = "TLS"
	TLSModeDisable = "disable"
)

// PostgresOptions selects a Postgres server.
// DSN wins over CredentialsDir when both are set.
type PostgresOptions struct {
	DSN            string
	CredentialsDir string
	TLSMode        string
	SSLMode        string
	MaxConns       int32
}

// readFileString reads a file and trims any whitespace/newlines.
func readFileString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

type dbCreds struct {
	User       string
	Password   string
	Port       string
	DBName     string
	ServerFQDN string
}

func readDBCredentials(dir string) (*dbCreds, error) {
	userVal, err := readFileString(filepath.Join(dir, user))
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	passwordVal, err := readFileString(filepath.Join(dir, password))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	portVal, err := readFileString(filepath.Join(dir, port))
	if err != nil {
		return nil, fmt.Errorf("failed to read port: %w", err)
	}
	dbnameVal, err := readFileString(filepath.Join(dir, dbname))
	if err != nil {
		return nil, fmt.Errorf("failed to read dbname: %w", err)
	}
	serverFQDNVal, err := readFileString(filepath.Join(dir, serverFQDN))
	if err != nil {
		return nil, fmt.Errorf("failed to read serverFQDN: %w", err)
	}
	return &dbCreds{
		User:       userVal,
		Password:   passwordVal,
		Port:       portVal,
		DBName:     dbnameVal,
		ServerFQDN: serverFQDNVal,
	}, nil
}

//nolint:nilnil // returning (nil, nil) is intentional: means no TLS config needed, not an error
func buildTLSConfig(dir, tlsMode, serverFQDN string) (*tls.Config, error) {
	if tlsMode != TLSModeMTLS && tlsMode != TLSModeTLS {
		return nil, nil
	}

	rootCAs := x509.NewCertPool()
	caBytes, err := os.ReadFile(filepath.Join(dir, serverCA))
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	if ok := rootCAs.AppendCertsFromPEM(caBytes); !ok {
		return nil, errors.New("failed to append CA cert")
	}

	if tlsMode == TLSModeMTLS {
		clientCertKeyPair, err := tls.LoadX509KeyPair(filepath.Join(dir, clientCrt), filepath.Join(dir, clientKey))
		if err != nil {
			return nil, fmt.Errorf("load client cert key pair: %w", err)
		}
		return &tls.Config{
			ServerName:   serverFQDN,
			RootCAs:      rootCAs,
			Certificates: []tls.Certificate{clientCertKeyPair},
			MinVersion:   tls.VersionTLS12,
		}, nil
	}

	// tlsMode == TLS
	return &tls.Config{
		ServerName: serverFQDN,
		RootCAs:    rootCAs,
		MinVersion: tls.VersionTLS12,
	}, nil
}

func buildDSN(creds *dbCreds, sslMode string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		creds.User, creds.Password, net.JoinHostPort(creds.ServerFQDN, creds.Port), creds.DBName, sslMode,
	)
}

// poolConfig resolves opts into a pgxpool configuration.
func poolConfig(opts PostgresOptions) (*pgxpool.Config, error) {
	dsn := opts.DSN
	var tlsConfig *tls.Config

	if dsn == "" {
		if opts.CredentialsDir == "" {
			return nil, errors.New("either a DSN or a credentials directory is required")
		}

		creds, err := readDBCredentials(opts.CredentialsDir)
		if err != nil {
			return nil, err
		}

		sslMode := opts.SSLMode
		if sslMode == "" {
			sslMode = "verify-full"
		}
		tlsMode := opts.TLSMode
		if tlsMode != TLSModeMTLS && tlsMode != TLSModeTLS {
			tlsMode = TLSModeDisable
			sslMode = "disable"
		}

		tlsConfig, err = buildTLSConfig(opts.CredentialsDir, tlsMode, creds.ServerFQDN)
		if err != nil {
			return nil, err
		}
		dsn = buildDSN(creds, sslMode)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if tlsConfig != nil {
		cfg.ConnConfig.TLSConfig = tlsConfig
	}

	cfg.MaxConns = 10
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Minute * 30

	return cfg, nil
}

// OpenPostgres connects to Postgres through a pgx pool.
// Postgres serializes concurrent writers itself, so both handles share the pool.
func OpenPostgres(ctx context.Context, opts PostgresOptions, logger *slog.Logger) (*OpenHelper, error) {
	cfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new with config: %w", err)
	}

	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), DriverPgx)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.InfoContext(ctx, "Connected to postgres", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)

	h := NewOpenHelper(New(db, logger), nil)
	h.onClose(func() error {
		pool.Close()
		return nil
	})

	return h, nil
}
