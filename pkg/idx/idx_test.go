package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewParses(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()

	prev := idx.NewAt(at)
	for range 100 {
		next := idx.NewAt(at)
		require.Less(t, prev.String(), next.String())
		prev = next
	}
}

func TestTimeExtraction(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	require.WithinDuration(t, at, idx.NewAt(at).Time(), time.Millisecond)
	require.True(t, idx.ID("nope").Time().IsZero())
}

func TestParseRejects(t *testing.T) {
	for _, s := range []string{"", "   ", "not-an-id", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid, s)
		require.False(t, idx.Valid(s))
	}
	require.True(t, idx.Valid("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV"))
}
