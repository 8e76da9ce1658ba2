package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/stretchr/testify/require"
)

func TestHelpersSkipEmptyMessages(t *testing.T) {
	t.Parallel()

	var rec notify.Recorder
	ctx := context.Background()

	notify.Info(ctx, &rec, "")
	notify.Error(ctx, &rec, "boom")
	notify.Success(ctx, &rec, "yay")
	notify.Info(ctx, nil, "dropped")

	require.Equal(t, []notify.Notice{
		{Level: notify.LevelError, Message: "boom"},
		{Level: notify.LevelSuccess, Message: "yay"},
	}, rec.Notices())
	require.Equal(t, []string{"boom"}, rec.Filter(notify.LevelError))

	rec.Reset()
	require.Empty(t, rec.Notices())
}

func TestWriterAndMulti(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var rec notify.Recorder
	n := notify.Multi{notify.NewWriter(&buf), &rec}

	notify.Error(context.Background(), n, "Invalid credentials")
	notify.Success(context.Background(), n, "Welcome alice")

	require.Equal(t, "✗ Invalid credentials\n✓ Welcome alice\n", buf.String())
	require.Len(t, rec.Notices(), 2)
}
