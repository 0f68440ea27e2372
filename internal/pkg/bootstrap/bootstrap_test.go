package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/config"
)

func newTestProcess(cfg config.Config) (*Process, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Process{Config: cfg, Logger: slog.New(slog.NewTextHandler(&buf, nil))}, &buf
}

func TestClose_RunsInReverseOrder(t *testing.T) {
	p, logs := newTestProcess(config.Config{})
	var order []string
	p.OnClose(func() error { order = append(order, "broker"); return nil })
	p.OnClose(func() error { order = append(order, "store"); return errors.New("disk full") })

	p.Close()
	p.Close()

	assert.Equal(t, []string{"store", "broker"}, order)
	assert.Contains(t, logs.String(), "disk full")
}

func TestDedupe_DisabledWithoutRedis(t *testing.T) {
	p, _ := newTestProcess(config.Config{})
	assert.Nil(t, p.Dedupe())
	assert.Empty(t, p.closers)
}

func TestDedupe_RegistersClose(t *testing.T) {
	p, _ := newTestProcess(config.Config{Service: config.ServicePayment, RedisAddr: "localhost:6379"})
	assert.NotNil(t, p.Dedupe())
	assert.Len(t, p.closers, 1)
	p.Close()
}

func TestPostgres_FallsBackWithoutURL(t *testing.T) {
	p, _ := newTestProcess(config.Config{})
	db, err := p.Postgres(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Nil(t, db)
}
