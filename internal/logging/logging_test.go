package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/internal/logging"
)

func TestOutputFileIsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "output.log")

	for i := 0; i < 2; i++ {
		logger, closeFn, err := logging.New(logging.Options{Level: "debug", OutputFile: path})
		require.NoError(t, err)
		logger.Info("hello")
		require.NoError(t, closeFn())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, 2, strings.Count(text, "# New Session: "))
	assert.Equal(t, 2, strings.Count(text, `"msg":"hello"`))
}

func TestInvalidLevelIsRejected(t *testing.T) {
	_, _, err := logging.New(logging.Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNoSinksYieldsNop(t *testing.T) {
	logger, closeFn, err := logging.New(logging.Options{})
	require.NoError(t, err)
	logger.Info("discarded")
	assert.NoError(t, closeFn())
}
