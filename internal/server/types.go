// Package server provides the HTTP host for uploads.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// UploadResponse is the HTTP response describing a persisted upload.
type UploadResponse struct {
	// ID is the unique identifier of the upload.
	ID string `json:"id"`
	// Filename is the persisted filename.
	Filename string `json:"filename"`
	// ContentType is the persisted content type.
	ContentType string `json:"content_type,omitempty"`
	// Size is the persisted byte length.
	Size int64 `json:"size"`
	// Location is the local path or object URL of the stored bytes.
	Location string `json:"location"`
	// Watermarked reports whether the stored bytes are a watermarked copy.
	Watermarked bool `json:"watermarked"`
	// CreatedAt is when the upload was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// ImageWatermarking reports whether the image engine was found at startup.
	ImageWatermarking bool `json:"image_watermarking"`
	// VideoWatermarking reports whether the video transcoder was found at startup.
	VideoWatermarking bool `json:"video_watermarking"`
}

// persistRequest is the validated view of the upload the handler persists.
type persistRequest struct {
	Filename    string `validate:"required,max=255"`
	ContentType string `validate:"omitempty,max=255"`
}
