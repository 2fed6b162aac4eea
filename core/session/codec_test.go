package session_test

import (
	"testing"
	"time"

	"github.com/dmitrymomot/extsession/core/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cart struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

func TestJSONCodec(t *testing.T) {
	t.Parallel()

	codec := session.JSONCodec{}

	data, err := codec.Encode(cart{Items: []string{"apple"}, Total: 3})
	require.NoError(t, err)

	v, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{"apple"}, "total": float64(3)}, v)

	_, err = codec.Decode([]byte("{broken"))
	require.ErrorIs(t, err, session.ErrCodec)

	_, err = codec.Encode(make(chan int))
	require.ErrorIs(t, err, session.ErrCodec)
}

func TestAttr(t *testing.T) {
	t.Parallel()

	t.Run("typed value", func(t *testing.T) {
		t.Parallel()

		s := session.New("id", time.Minute, epoch)
		s.SetAttribute("cart", cart{Total: 1})

		c, ok := session.Attr[cart](s, "cart")
		require.True(t, ok)
		assert.Equal(t, 1, c.Total)
	})

	t.Run("decoded generic value", func(t *testing.T) {
		t.Parallel()

		s := session.Restore("id", epoch, epoch, time.Minute, map[string]any{
			"cart":  map[string]any{"items": []any{"pear"}, "total": float64(2)},
			"count": float64(1),
		}, "")

		c, ok := session.Attr[cart](s, "cart")
		require.True(t, ok)
		assert.Equal(t, cart{Items: []string{"pear"}, Total: 2}, c)

		n, ok := session.Attr[int](s, "count")
		require.True(t, ok)
		assert.Equal(t, 1, n)
	})

	t.Run("missing or mismatched", func(t *testing.T) {
		t.Parallel()

		s := session.New("id", time.Minute, epoch)
		s.SetAttribute("name", "bob")

		_, ok := session.Attr[int](s, "missing")
		assert.False(t, ok)
		_, ok = session.Attr[int](s, "name")
		assert.False(t, ok)
	})
}
