//go:build integration_pg

package wordstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "postgres",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, port.Port())
}

func TestPostgresStore_Integration(t *testing.T) {
	url := startPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var s *PostgresStore
	var err error
	// the server restarts once during initdb
	require.Eventually(t, func() bool {
		s, err = OpenPostgres(ctx, url, 2)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	defer s.Close()

	words, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, words)

	require.NoError(t, s.SaveAll(ctx, []string{"doctor", "fire"}))
	words, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doctor", "fire"}, words)

	// a second document is concatenated; saves keep landing in the first
	_, err = s.pool.Exec(ctx, `insert into trigger_words (doc_id, words) values ('zzz', '{help}')`)
	require.NoError(t, err)
	require.NoError(t, s.SaveAll(ctx, []string{"nurse"}))

	words, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nurse", "help"}, words)

	m := NewManager(s, nil, nil, zerolog.Nop())
	_, err = m.Load(ctx)
	require.NoError(t, err)
	got, err := m.Delete(ctx, "nurse")
	require.NoError(t, err)
	assert.Equal(t, []string{"help"}, got)
}
