package symspi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXferIDGen(t *testing.T) {
	require := require.New(t)

	var g xferIDGen
	g.reset()

	require.Equal(XferID(1), g.peek())
	require.Equal(XferID(1), g.nextID())
	require.Equal(XferID(2), g.nextID())
	require.Equal(XferID(3), g.nextID())
	require.Equal(XferID(4), g.peek())
}

func TestXferIDGenWraparound(t *testing.T) {
	require := require.New(t)

	var g xferIDGen
	g.next.Store(math.MaxInt32)

	require.Equal(XferID(math.MaxInt32), g.nextID())
	require.Equal(XferID(1), g.nextID())
	require.Equal(XferID(2), g.nextID())
}

func TestBufferPairResize(t *testing.T) {
	require := require.New(t)

	var b bufferPair
	require.Zero(b.size())

	require.NoError(b.resize(4, 64))
	require.Equal(4, b.size())
	require.Len(b.rx, 4)

	copy(b.tx, "abcd")

	// growing preserves the send data prefix
	require.NoError(b.resize(8, 64))
	require.Equal(8, b.size())
	require.Equal([]byte("abcd"), b.tx[:4])

	require.NoError(b.resize(2, 64))
	require.Equal([]byte("ab"), b.tx)

	// exceeding the limit drops the buffers
	require.ErrorIs(b.resize(65, 64), ErrNoMemory)
	require.Zero(b.size())

	require.NoError(b.resize(4, 64))
	require.NoError(b.resize(0, 64))
	require.Zero(b.size())
	require.Nil(b.rx)
}

func TestBufferPairResizeUnlimited(t *testing.T) {
	var b bufferPair
	require.NoError(t, b.resize(1024, 0))
	require.Equal(t, 1024, b.size())
}

func TestRegionsOverlap(t *testing.T) {
	require := require.New(t)

	buf := make([]byte, 16)

	require.True(regionsOverlap(buf, buf))
	require.True(regionsOverlap(buf, buf[4:8]))
	require.True(regionsOverlap(buf[4:8], buf))
	require.True(regionsOverlap(buf[:8], buf[7:]))
	require.False(regionsOverlap(buf[:8], buf[8:]))

	other := make([]byte, 16)
	require.False(regionsOverlap(buf, other))

	require.False(regionsOverlap(nil, buf))
	require.False(regionsOverlap(buf, nil))
}
