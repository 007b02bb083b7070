package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	log, err := New(false)
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zap.DebugLevel))
	require.True(t, log.Core().Enabled(zap.InfoLevel))

	log, err = New(true)
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zap.DebugLevel))
}
