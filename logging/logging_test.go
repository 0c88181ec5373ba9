package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	level, formatter := Logger.GetLevel(), Logger.Formatter
	defer func() {
		Logger.SetLevel(level)
		Logger.SetFormatter(formatter)
	}()

	require.NoError(t, Setup("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, Logger.Formatter)

	assert.Error(t, Setup("loud", "text"))
}

func TestEnableFileOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnableFileOutput(filepath.Join(dir, "peernotify")))
	assert.Error(t, EnableFileOutput(filepath.Join(dir, "again")))

	GetLogger("filetest").WithField("peers", 3).Infoln("advertise peers")

	files, err := filepath.Glob(filepath.Join(dir, "peernotify.*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	dat, err := os.ReadFile(files[0])
	require.NoError(t, err)

	line := strings.TrimSpace(string(dat))
	assert.Contains(t, line, "[INFO] filetest")
	assert.Contains(t, line, "advertise peers peers=3")
}

func TestFormatFileMessage(t *testing.T) {
	entry := Logger.WithFields(logrus.Fields{moduleField: "m", "b": 2, "a": "x"})
	entry.Message = "hello"
	assert.Equal(t, "hello a=x b=2", formatFileMessage(entry))

	entry = Logger.WithField(moduleField, "m")
	entry.Message = "plain"
	assert.Equal(t, "plain", formatFileMessage(entry))
}
