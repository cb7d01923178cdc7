package objectclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientRoundTrip(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	url, err := c.UploadFile(ctx, "docs/a.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "mem://docs/a.txt", url)

	got, err := c.GetFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, c.DeleteFile(ctx, "docs/a.txt"))
	_, err = c.GetFile(ctx, "docs/a.txt")
	require.ErrorIs(t, err, ErrObjectNotFound)
}
