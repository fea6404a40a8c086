package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Toggles are the watermark enablement switches. They are read fresh for
// every request so operators can flip them without a restart.
type Toggles struct {
	// Enabled gates the whole pipeline. Off unless explicitly enabled.
	Enabled bool `env:"MEDIA_WATERMARK_ENABLED, default=false"`
	// ImageEnabled gates still-image processing.
	ImageEnabled bool `env:"MEDIA_WATERMARK_IMAGE_ENABLED, default=true"`
	// VideoEnabled gates video processing.
	VideoEnabled bool `env:"MEDIA_WATERMARK_VIDEO_ENABLED, default=true"`
}

// ToggleSource returns the current toggles.
type ToggleSource interface {
	Toggles(ctx context.Context) (Toggles, error)
}

// EnvToggles reads Toggles from the environment on every call.
type EnvToggles struct {
	lookuper envconfig.Lookuper
}

// NewEnvToggles returns a ToggleSource backed by the process environment.
func NewEnvToggles() *EnvToggles {
	return &EnvToggles{lookuper: envconfig.OsLookuper()}
}

// NewLookupToggles returns a ToggleSource backed by an arbitrary lookuper.
func NewLookupToggles(l envconfig.Lookuper) *EnvToggles {
	return &EnvToggles{lookuper: l}
}

// Toggles processes the environment into a fresh Toggles value.
func (e *EnvToggles) Toggles(ctx context.Context) (Toggles, error) {
	var t Toggles
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &t,
		Lookuper: e.lookuper,
	}); err != nil {
		return Toggles{}, fmt.Errorf("config: read toggles: %w", err)
	}
	return t, nil
}

// StaticToggles is a fixed ToggleSource.
type StaticToggles Toggles

// Toggles returns the fixed value.
func (s StaticToggles) Toggles(context.Context) (Toggles, error) {
	return Toggles(s), nil
}
