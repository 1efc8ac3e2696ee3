// Package testutil holds in-memory doubles shared by package tests.
package testutil

import (
	"io"
	"log/slog"

	"github.com/PaulBabatuyi/pairchat/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))}
}
