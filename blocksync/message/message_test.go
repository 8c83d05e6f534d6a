package message

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Number:     42,
		Hash:       common.HexToHash("0x01"),
		ParentHash: common.HexToHash("0x02"),
		Extra:      []byte("extra-data"),
	}
	enc, err := EncodeHeader(h)
	require.NoError(t, err)

	got, err := DecodeHeader(enc)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestExtrinsicRoundTrip(t *testing.T) {
	e := Extrinsic([]byte{1, 2, 3, 4})
	enc, err := EncodeExtrinsic(e)
	require.NoError(t, err)

	got, err := DecodeExtrinsic(enc)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestRequestEqual(t *testing.T) {
	to := common.HexToHash("0x03")
	base := Request{ID: 1, Fields: Header | Body, From: FromNumber(10), To: &to, Dir: Ascending, Max: 5}

	same := base
	sameTo := to
	same.To = &sameTo
	require.True(t, base.Equal(same), "identical requests with distinct To pointers must still compare equal")

	differentMax := base
	differentMax.Max = 6
	require.False(t, base.Equal(differentMax))

	noTo := base
	noTo.To = nil
	require.False(t, base.Equal(noTo))
}

func TestAttributesContains(t *testing.T) {
	a := Header | Justification
	require.True(t, a.Contains(Header))
	require.True(t, a.Contains(Justification))
	require.False(t, a.Contains(Body))
	require.False(t, a.Contains(Header|Body))
}

func TestOngoingRequestElapsed(t *testing.T) {
	o := OngoingRequest{Emitted: time.Now().Add(-5 * time.Second)}
	require.GreaterOrEqual(t, o.Elapsed(), 5*time.Second)
}
