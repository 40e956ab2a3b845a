package pulse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RequiresRedisClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
