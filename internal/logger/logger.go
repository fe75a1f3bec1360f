package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New инициализирует логгер. Непустой level переопределяет уровень, выбранный по GIN_MODE.
func New(output io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(new(logrus.JSONFormatter))
	l.SetLevel(logrus.InfoLevel)

	// перезаписываем ряд настроек для окружений отличных от продакшн
	if os.Getenv("GIN_MODE") != "release" {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(new(logrus.TextFormatter))
	}

	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			l.WithError(err).Warn("unknown log level, keeping default")
			return l
		}
		l.SetLevel(parsed)
	}

	return l
}
