package slogpretty

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrettyHandlerWritesMessageAndAttrs(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug}}
	log := slog.New(opts.NewPrettyHandler(&buf))

	log.With(slog.String("op", "test.op")).Info("peer joined", slog.String("peer_id", "p1"))

	out := buf.String()
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "peer joined")
	assert.Contains(t, out, `"op": "test.op"`)
	assert.Contains(t, out, `"peer_id": "p1"`)
}
