package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/absmach/splitfed/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	s := server.NewServer("test", server.Config{Host: "127.0.0.1", Port: "0"}, handler, slog.Default())
	require.Nil(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.Start)
	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, slog.Default(), "test", s)
	})

	client := http.Client{Timeout: time.Second}
	res, err := client.Get("http://" + s.Addr())
	require.Nil(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.Nil(t, err)
	assert.Equal(t, "ok", string(body))

	cancel()
	assert.Nil(t, g.Wait())
}

func TestListenInvalidAddress(t *testing.T) {
	s := server.NewServer("test", server.Config{Host: "127.0.0.1", Port: "notaport"}, http.NotFoundHandler(), slog.Default())
	assert.NotNil(t, s.Listen())
}
