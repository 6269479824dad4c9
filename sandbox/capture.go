package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/cellbox/figure"
)

// Capture invokes run with a fresh private capture context and turns its
// outcome into an ExecutionResult. Open figures are rendered and closed
// before returning, whether run succeeded or not.
func (e *Executor) Capture(ctx context.Context, run func(*Capture) error) (result ExecutionResult) {
	capture := NewCapture()
	defer capture.Figures.Close()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Execution machinery failed", zap.Any("panic", r))
			result = ExecutionResult{
				Text:  capture.Stdout.String(),
				Error: errorPtr(fmt.Sprintf("%s%v", ExecutionErrorPrefix, r)),
			}
		}
	}()

	start := time.Now()
	if err := run(capture); err != nil {
		writeTraceback(capture, err)
		result.Error = errorPtr(errorMessage(ctx, err))
		e.logger.Debug("Snippet raised",
			zap.String("error", *result.Error),
			zap.Duration("duration", time.Since(start)))
	} else {
		e.logger.Debug("Snippet completed", zap.Duration("duration", time.Since(start)))
	}

	result.Text = capture.Stdout.String()
	result.Images = e.render(capture.Figures)

	return result
}

func (e *Executor) render(figures *figure.List) []string {
	last := figures.Last()
	if last == nil {
		return nil
	}

	uri, err := e.renderer.DataURI(last)
	if err != nil {
		e.logger.Warn("Failed to render figure", zap.Error(err))
		return nil
	}
	return []string{uri}
}

// backtracer is implemented by evaluator errors that carry a call stack
type backtracer interface {
	Backtrace() string
}

func writeTraceback(capture *Capture, err error) {
	var bt backtracer
	if errors.As(err, &bt) {
		capture.Stdout.WriteString(bt.Backtrace())
	} else {
		capture.Stdout.WriteString(err.Error())
	}
	if !strings.HasSuffix(capture.Stdout.String(), "\n") {
		capture.Stdout.WriteByte('\n')
	}
}

func errorMessage(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "Execution timed out: " + err.Error()
	}
	return err.Error()
}
