package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeleteFromSliceUnordered(t *testing.T) {
	a := []string{"a", "b", "c"}
	a = DeleteFromSliceUnordered(a, 0)
	require.ElementsMatch(t, []string{"b", "c"}, a)
	a = DeleteFromSliceUnordered(a, 1)
	require.Equal(t, []string{"c"}, a)
	a = DeleteFromSliceUnordered(a, 0)
	require.Equal(t, 0, len(a))
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0, Clamp(-3, 0, 255))
	require.Equal(t, 255, Clamp(300, 0, 255))
	require.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}
