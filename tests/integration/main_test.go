//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bissquit/crisis-command/internal/app"
	"github.com/bissquit/crisis-command/internal/auth"
	"github.com/bissquit/crisis-command/internal/config"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testJWTSecret = "integration-test-secret-key-0123456789"

var (
	testApp       *app.App
	testServer    *httptest.Server
	testDB        *pgxpool.Pool
	authenticator *auth.Authenticator

	// Mailpit for E2E email delivery tests.
	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient
)

// clientAs returns a test client authenticated with the given role.
func clientAs(t *testing.T, role domain.Role) *testutil.Client {
	t.Helper()
	token, err := authenticator.IssueToken("test-"+string(role), role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return testutil.NewClient(testServer.URL).WithToken(token)
}

func anonymousClient() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}
	defer func() {
		if err := mailpitContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mailpit: %v", err)
		}
	}()
	mailpitClient = NewMailpitClient(mailpitContainer.APIHost, mailpitContainer.APIPort)

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Storage: config.StorageConfig{
			Backend: "postgres",
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		JWT: config.JWTConfig{
			SecretKey:           testJWTSecret,
			AccessTokenDuration: 15 * time.Minute,
		},
		Escalation: config.EscalationConfig{
			// The engine worker is not started in tests; escalation sweeps
			// run explicitly through EvaluateAll.
			Interval: time.Hour,
		},
		// Notification channels stay disabled at app level so API tests do
		// not race the E2E email test, which wires its own sender against
		// Mailpit.
		Notifications: config.NotificationsConfig{},
		Directory: config.DirectoryConfig{
			CacheTTL: time.Minute,
			Static: []config.StakeholderConfig{
				{
					ID:        "coordinator-1",
					Name:      "Crisis Coordinator",
					Role:      "crisis-coordinator",
					Authority: "coordinator",
					Contacts: []config.ContactConfig{
						{Channel: "email", Target: "coordinator@example.com"},
					},
				},
				{
					ID:        "ops-lead-1",
					Name:      "Operations Lead",
					Role:      "operations-lead",
					Authority: "coordinator",
					Contacts: []config.ContactConfig{
						{Channel: "email", Target: "ops@example.com"},
					},
				},
				{
					ID:        "ceo-1",
					Name:      "Chief Executive",
					Role:      "ceo",
					Authority: "decision-maker",
					Contacts: []config.ContactConfig{
						{Channel: "email", Target: "ceo@example.com"},
						{Channel: "sms", Target: "+15550199"},
					},
				},
			},
		},
	}

	testApp, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	authenticator = auth.NewAuthenticator(auth.Config{
		SecretKey:           testJWTSecret,
		AccessTokenDuration: 15 * time.Minute,
	})

	testServer = httptest.NewServer(testApp.Router())

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
