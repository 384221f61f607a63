package blob

import (
	"fmt"

	"faceattend/internal/cloudinary"
)

// Backend names accepted by Open.
const (
	BackendLocal      = "local"
	BackendCloudinary = "cloudinary"
)

// Open builds the configured store. Cloudinary needs a configured client.
func Open(backend, uploadDir string, c *cloudinary.Client) (Store, error) {
	switch backend {
	case BackendLocal, "":
		return NewLocal(uploadDir)
	case BackendCloudinary:
		if c == nil {
			return nil, fmt.Errorf("blob: cloudinary backend selected but credentials are missing")
		}
		return NewCloudinary(c), nil
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", backend)
	}
}
