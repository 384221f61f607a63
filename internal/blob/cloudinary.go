package blob

import (
	"context"
	"errors"
	"path"
	"strings"

	"faceattend/internal/cloudinary"
)

// Cloudinary stores blobs as Cloudinary images. The key without its extension
// becomes the public id inside the client's folder.
type Cloudinary struct {
	Client *cloudinary.Client
}

// NewCloudinary wraps a configured client.
func NewCloudinary(c *cloudinary.Client) *Cloudinary {
	return &Cloudinary{Client: c}
}

func (s *Cloudinary) publicID(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.Client.PublicID(strings.TrimSuffix(cleaned, path.Ext(cleaned))), nil
}

func (s *Cloudinary) Put(ctx context.Context, key string, data []byte) error {
	id, err := s.publicID(key)
	if err != nil {
		return err
	}
	_, err = s.Client.Upload(ctx, id, data)
	return err
}

func (s *Cloudinary) Get(ctx context.Context, key string) ([]byte, error) {
	id, err := s.publicID(key)
	if err != nil {
		return nil, err
	}
	b, err := s.Client.Fetch(ctx, id)
	if errors.Is(err, cloudinary.ErrNotFound) {
		return nil, ErrNotFound
	}
	return b, err
}

// Exists asks the admin API rather than the CDN, which may serve a cached copy after deletion.
func (s *Cloudinary) Exists(ctx context.Context, key string) (bool, error) {
	id, err := s.publicID(key)
	if err != nil {
		return false, err
	}
	_, err = s.Client.Resource(ctx, id)
	if errors.Is(err, cloudinary.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Cloudinary) Delete(ctx context.Context, key string) error {
	id, err := s.publicID(key)
	if err != nil {
		return err
	}
	return s.Client.Destroy(ctx, id)
}
