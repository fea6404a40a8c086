// Package id provides unique identifier generation for uploads.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique upload ID.
// Format: upload-<timestamp>-<random>
// Example: upload-1701432000-a1b2c3d4e5f6
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("upload-%d-%s", time.Now().Unix(), random[:12])
}
