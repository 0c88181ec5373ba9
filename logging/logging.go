package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/FimGroup/logging"
	"github.com/sirupsen/logrus"
)

const (
	moduleField = "module"

	fileRetainDays  = 7
	fileMaxSize     = 50 * 1024 * 1024
	fileMaxFilesDay = 10
)

var Logger = newLogger()

// Manager is the rotating file logger manager, nil until EnableFileOutput.
var Manager logging.LoggerManager

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

// Setup applies level and format ("text" or "json") to the shared logger.
func Setup(level, format string) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}
		Logger.SetLevel(lvl)
	}
	switch strings.ToLower(format) {
	case "", "text":
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		Logger.Warnln("unknown log format:", format, "fallback to text")
	}
	return nil
}

// EnableFileOutput copies every entry of the shared logger into daily rotated files named
// {pathPrefix}.YYYY-MM-DD.log. Console output is kept.
func EnableFileOutput(pathPrefix string) error {
	if Manager != nil {
		return fmt.Errorf("file output already enabled")
	}
	manager, err := logging.NewLoggerManager(pathPrefix, fileRetainDays, fileMaxSize, fileMaxFilesDay, logrus.TraceLevel, false, false)
	if err != nil {
		return err
	}
	Manager = manager
	Logger.AddHook(newFileHook(manager))
	return nil
}

func GetLogger(module string) *logrus.Entry {
	return Logger.WithField(moduleField, module)
}

type fileHook struct {
	manager logging.LoggerManager
	loggers sync.Map
}

func newFileHook(manager logging.LoggerManager) *fileHook {
	return &fileHook{manager: manager}
}

func (f *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (f *fileHook) Fire(entry *logrus.Entry) error {
	module, _ := entry.Data[moduleField].(string)
	l := f.logger(module)
	msg := formatFileMessage(entry)
	switch entry.Level {
	case logrus.TraceLevel:
		l.Trace(msg)
	case logrus.DebugLevel:
		l.Debug(msg)
	case logrus.InfoLevel:
		l.Info(msg)
	case logrus.WarnLevel:
		l.Warn(msg)
	default:
		l.Error(msg)
	}
	return nil
}

func (f *fileHook) logger(module string) logging.Logger {
	if l, ok := f.loggers.Load(module); ok {
		return l.(logging.Logger)
	}
	l, _ := f.loggers.LoadOrStore(module, f.manager.GetLogger(module))
	return l.(logging.Logger)
}

// formatFileMessage appends the fields other than module as sorted key=value pairs.
func formatFileMessage(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != moduleField {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return entry.Message
	}
	sort.Strings(keys)
	b := new(strings.Builder)
	b.WriteString(entry.Message)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}
	return b.String()
}
