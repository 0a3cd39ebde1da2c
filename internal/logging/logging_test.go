package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", " warn ", "error"} {
		l, err := logging.New(lvl, false)
		require.NoError(t, err, lvl)
		require.NotNil(t, l)
	}

	_, err := logging.New("chatty", false)
	require.Error(t, err)
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, logging.OrNop(nil))
}
