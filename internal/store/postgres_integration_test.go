//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
)

// setupPostgresContainer starts a PostgreSQL container with the schema applied.
func setupPostgresContainer(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "moniewatch",
			"POSTGRES_PASSWORD": "moniewatch",
			"POSTGRES_DB":       "moniewatch",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	endpoint, err := pgContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL endpoint: %v", err)
	}

	dsn := fmt.Sprintf("postgres://moniewatch:moniewatch@%s/moniewatch", endpoint)
	pool, err := Connect(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	cleanup := func() {
		pool.Close()
		pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

func TestStore_Integration_ReportLifecycle(t *testing.T) {
	pool, cleanup := setupPostgresContainer(t)
	defer cleanup()

	s := New(pool)
	ctx := context.Background()

	principal := aggregator.Principal{
		Username: "agg-int",
		Password: "secret",
		Email:    "agg-int@example.com",
		Name:     "Integration Aggregator",
		Mobile:   2348030000099,
	}
	if err := s.SavePrincipal(ctx, principal); err != nil {
		t.Fatalf("SavePrincipal() error = %v", err)
	}
	if err := s.SaveReport(ctx, "report-int", "https://files.example.com/report-int.pdf", "agg-int"); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	reports, err := s.ListReports(ctx, "agg-int")
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("ListReports() returned %d reports, want 1", len(reports))
	}
	if reports[0].Name != "report-int" {
		t.Errorf("report name = %q, want report-int", reports[0].Name)
	}
	if reports[0].CreatedAt.IsZero() {
		t.Error("report CreatedAt is zero, want timestamp set by database")
	}

	principals, err := s.ListPrincipals(ctx)
	if err != nil {
		t.Fatalf("ListPrincipals() error = %v", err)
	}
	if len(principals) != 1 || principals[0] != principal {
		t.Errorf("ListPrincipals() = %+v, want the saved principal", principals)
	}
}
