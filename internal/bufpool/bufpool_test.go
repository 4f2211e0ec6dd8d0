package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsRequestedLength(t *testing.T) {
	buf := Get(100)
	require.Len(t, buf, 100)
	require.GreaterOrEqual(t, cap(buf), 100)
}

func TestGetPutReuse(t *testing.T) {
	buf := Get(4 * 1024)
	buf[0] = 0xFF
	Put(buf)

	reused := Get(4 * 1024)
	require.Len(t, reused, 4*1024)
}

func TestGetOversizedFallsBackToAlloc(t *testing.T) {
	buf := Get(1024 * 1024)
	require.Len(t, buf, 1024*1024)
}
