package endtoend

import (
	"sync"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "endtoend")

// diagnosticsOnce guards the process-wide formatter install. Concurrent
// tests synchronize on it.
var diagnosticsOnce sync.Once

func initDiagnostics() {
	diagnosticsOnce.Do(func() {
		logrus.SetFormatter(&prefixed.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	})
}
