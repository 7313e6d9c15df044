package tgerr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archtg/mtsender/mt"
)

func TestRPCMessageToErrorSplitsArgument(t *testing.T) {
	e := RPCMessageToError(&mt.RPCError{ErrorCode: 303, ErrorMessage: "FILE_MIGRATE_2"})
	require.Equal(t, 303, e.Code)
	require.Equal(t, "FILE_MIGRATE_", e.Type)
	require.Equal(t, 2, e.Argument)
}

func TestIsAndIsCode(t *testing.T) {
	err := RPCMessageToError(&mt.RPCError{ErrorCode: 401, ErrorMessage: "AUTH_KEY_UNREGISTERED"})
	require.True(t, Is(err, "AUTH_KEY_UNREGISTERED"))
	require.True(t, IsCode(err, 401))
	require.False(t, IsCode(err, 420))
}

func TestBadMessageErrorMessage(t *testing.T) {
	err := &BadMessageError{Code: 48}
	require.Contains(t, err.Error(), "48")
}
