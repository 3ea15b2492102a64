package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/logger"
)

func TestStartNestsUnderParent(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-7")
	ctx, root := Start(ctx, "search")
	require.Equal(t, "req-7", root.TraceID)

	_, fetch := Start(ctx, "fetch_postings")
	fetch.SetAttr("matched_terms", 2)
	fetch.End()
	_, rank := Start(ctx, "rank")
	rank.End()
	root.End()

	children := root.Children()
	require.Len(t, children, 2)
	require.Equal(t, "fetch_postings", children[0].Name)
	require.Equal(t, "req-7", children[1].TraceID)
	v, ok := children[0].Attr("matched_terms")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Same(t, root, FromContext(ctx))
}

func TestRootWithoutRequestIDGetsUUID(t *testing.T) {
	_, span := Start(context.Background(), "search")
	require.Len(t, span.TraceID, 36)
	require.Nil(t, FromContext(context.Background()))
}

func TestLogOnlyAtDebug(t *testing.T) {
	ctx, root := Start(context.Background(), "search")
	_, child := Start(ctx, "rank")
	child.End()
	root.End()

	var buf bytes.Buffer
	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	require.Empty(t, buf.String())

	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "span=search")
	require.Contains(t, lines[1], "depth=1")
}
