package conn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionDSN(t *testing.T) {
	dsn, err := Option{}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432?application_name=tradecore&sslmode=disable", dsn)

	dsn, err = Option{
		Host:            "db",
		Port:            6543,
		User:            "trader",
		Password:        "p@ss",
		Database:        "journal",
		SSLMode:         "require",
		Params:          map[string]string{"connect_timeout": "3", "": "skip"},
		ApplicationName: "journal",
	}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://trader:p%40ss@db:6543/journal?application_name=journal&connect_timeout=3&sslmode=require", dsn)

	dsn, err = Option{ConnString: "postgres://x"}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", dsn)

	_, err = Option{Port: 70000}.dsn()
	assert.Error(t, err)
}

func TestNewDoesNotDial(t *testing.T) {
	c, err := New(Option{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.DB())
}

func TestOpenFailsWhenUnreachable(t *testing.T) {
	_, err := Open(context.Background(), Option{Host: "127.0.0.1", Port: 1}, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.DB())
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
