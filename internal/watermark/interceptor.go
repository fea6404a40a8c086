package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/maauso/media-watermark/internal/config"
	"github.com/maauso/media-watermark/internal/metrics"
	"github.com/maauso/media-watermark/internal/upload"
)

// State is where a create-upload request ended up in the pipeline.
type State string

// Interception states. Classifying and Dispatched are transient.
const (
	StateDisabled    State = "disabled"
	StateNoCandidate State = "no_candidate"
	StateClassifying State = "classifying"
	StateDispatched  State = "dispatched"
	StateSubstituted State = "substituted"
	StateSkipped     State = "skipped"
)

// Interceptor is the single hook run before every create-upload request.
type Interceptor struct {
	toggles    config.ToggleSource
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewInterceptor creates an Interceptor.
func NewInterceptor(toggles config.ToggleSource, dispatcher *Dispatcher, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		toggles:    toggles,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Intercept inspects params and, when a watermarked replacement is produced,
// swaps it in as the primary upload and drops the alternates. Nothing it
// does can fail the request: every error or panic ends in StateSkipped with
// params untouched.
func (i *Interceptor) Intercept(ctx context.Context, params *upload.Params) (state State) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("unexpected error in upload interceptor",
				slog.String("error", fmt.Sprint(r)),
				slog.String("diagnostic", headLines(string(debug.Stack()), diagnosticLines)),
			)
			state = StateSkipped
		}
		metrics.InterceptionsTotal.WithLabelValues(string(state)).Inc()
	}()

	toggles, err := i.toggles.Toggles(ctx)
	if err != nil {
		i.logger.Error("could not read watermark toggles",
			slog.String("error", err.Error()),
		)
		return StateSkipped
	}
	if !toggles.Enabled {
		i.logger.Debug("watermarking globally disabled")
		return StateDisabled
	}

	if params == nil {
		return StateNoCandidate
	}
	field, incoming, ok := params.Primary()
	if !ok {
		return StateNoCandidate
	}

	state = StateClassifying
	kind, contentType, ok := Classify(incoming)
	if !ok {
		i.logger.Debug("upload is not a recognizable image or video",
			slog.String("field", field),
			slog.String("content_type", contentType),
		)
		return StateSkipped
	}

	state = StateDispatched
	processed := i.dispatcher.Dispatch(ctx, incoming, kind, contentType, toggles)
	if processed == nil {
		i.logger.Debug(string(kind)+" processor skipped or failed",
			slog.String("field", field),
		)
		return StateSkipped
	}

	params.Replace(processed)
	i.logger.Info("replaced "+string(kind)+" upload with watermarked version",
		slog.String("field", field),
		slog.String("filename", processed.Filename),
		slog.String("content_type", processed.ContentType),
	)
	return StateSubstituted
}
