package framing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadOne(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello block request")

	require.NoError(t, WriteOne(&buf, payload))

	got, err := ReadOne(&buf, 1024)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadOneRejectsOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOne(&buf, make([]byte, 100)))

	_, err := ReadOne(&buf, 10)
	require.Error(t, err)
}

func TestReadOneMultipleMessagesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOne(&buf, []byte("first")))
	require.NoError(t, WriteOne(&buf, []byte("second")))

	first, err := ReadOne(&buf, 1024)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), first)

	second, err := ReadOne(&buf, 1024)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), second)
}
