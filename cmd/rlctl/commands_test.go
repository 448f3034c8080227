package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "rlregistry/internal/http"
	"rlregistry/internal/revocation/handler"
	"rlregistry/internal/revocation/service"
	"rlregistry/internal/revocation/store"
)

func TestParseIndices(t *testing.T) {
	t.Run("empty flag yields no indices", func(t *testing.T) {
		got, err := parseIndices("  ")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("spaces around entries are ignored", func(t *testing.T) {
		got, err := parseIndices("1, 2 ,32767")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 32767}, got)
	})

	t.Run("out of range values pass through to the server", func(t *testing.T) {
		got, err := parseIndices("-1,32768")
		require.NoError(t, err)
		assert.Equal(t, []int{-1, 32768}, got)
	})

	t.Run("non-integer entry is rejected", func(t *testing.T) {
		_, err := parseIndices("1,x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"x"`)
	})
}

func TestListPath(t *testing.T) {
	assert.Equal(t, "/lists/my.list", listPath("my.list"))
	assert.Equal(t, "/lists/urn:list%2F1/bits/7", listPath("urn:list/1", "bits", "7"))
}

func TestRoundTripAgainstServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store.NewInMemory(), service.WithLogger(logger))
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Options{Logger: logger}, handler.New(svc, logger)))
	defer srv.Close()

	run := func(t *testing.T, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		require.NoError(t, app.Run(append([]string{"rlctl", "--addr", srv.URL}, args...)))
		return strings.TrimSpace(out.String())
	}

	// A same-looking decoded id must stay untouched.
	run(t, "register", "aA")

	for _, id := range []string{"a%41", "a b", "urn:x/y"} {
		t.Run(id, func(t *testing.T) {
			run(t, "register", id)
			run(t, "set", "--set", "3", id)

			assert.Equal(t, "true", run(t, "get", id, "3"))
			assert.Equal(t, "08"+strings.Repeat("0", 8190), run(t, "encoded", id))
		})
	}

	assert.Equal(t, "false", run(t, "get", "aA", "3"))
}
