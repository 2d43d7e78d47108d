package naming

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wordName = regexp.MustCompile(`^\w+$`)

func TestGenerateShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := Generate()
		require.Regexp(t, wordName, name)
		parts := strings.Split(name, "_")
		require.Len(t, parts, 3)
		assert.Contains(t, adjectives, parts[0])
		assert.Contains(t, adjectives, parts[1])
		assert.Contains(t, nouns, parts[2])
	}
}

func TestUniqueFirstFree(t *testing.T) {
	name, err := Unique(context.Background(), func(context.Context, string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Len(t, strings.Split(name, "_"), 3)
}

func TestUniqueAppendsSuffixAfterCollisions(t *testing.T) {
	calls := 0
	name, err := Unique(context.Background(), func(_ context.Context, n string) (bool, error) {
		calls++
		return len(strings.Split(n, "_")) == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, MaxWordAttempts+1, calls)
	assert.Regexp(t, wordName, name)
	assert.Len(t, strings.Split(name, "_"), 4)
}

func TestUniquePropagatesErrors(t *testing.T) {
	boom := errors.New("redis down")
	_, err := Unique(context.Background(), func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Unique(ctx, func(context.Context, string) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
