package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabgcm/turkiyedental2-sub001/internal/config"
)

func TestOpenStores_UnknownDriver(t *testing.T) {
	cfg := &config.Config{StoreDriver: "sqlite"}

	stores, err := OpenStores(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	require.Error(t, err)
	assert.Nil(t, stores)
	assert.Contains(t, err.Error(), `unknown store driver "sqlite"`)
}
