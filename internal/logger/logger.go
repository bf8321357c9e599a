package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New инициализирует логгер.
func New(output io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(new(logrus.JSONFormatter))
	l.SetLevel(logrus.InfoLevel)

	// перезаписываем ряд настроек для окружений отличных от продакшн
	if os.Getenv("GIN_MODE") != "release" {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(new(logrus.TextFormatter))
	}

	return l
}

// NewWithFile вариант New с записью в файл с ротацией. Пустой путь - вывод в
// stdout.
func NewWithFile(path string) *logrus.Logger {
	if path == "" {
		return New(os.Stdout)
	}
	return New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // мегабайт
		MaxBackups: 5,
		MaxAge:     30, // дней
		Compress:   true,
	})
}
