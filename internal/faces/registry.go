package faces

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"faceattend/internal/blob"
)

// ErrReferenceContended is returned when concurrent registrations for the
// same student keep replacing the reference underneath each other.
var ErrReferenceContended = errors.New("face registration conflicted with another upload, try again")

// References records which blob holds each student's reference face.
// FaceReference returns "" when none is recorded or the student is unknown.
// SwapFaceReference stores key only while the recorded key still equals prev.
type References interface {
	FaceReference(ctx context.Context, studentID string) (string, error)
	SwapFaceReference(ctx context.Context, studentID, prev, key string) (bool, error)
}

const swapAttempts = 3

// Registry binds at most one reference image to each student.
type Registry struct {
	refs      References
	blobs     blob.Store
	maxDim    int
	maxPixels int
	now       func() time.Time
}

// NewRegistry creates a registry. maxDim bounds the stored image size; 0 disables resizing.
// maxPixels is the decode budget passed to Normalize.
func NewRegistry(refs References, blobs blob.Store, maxDim, maxPixels int) *Registry {
	return &Registry{refs: refs, blobs: blobs, maxDim: maxDim, maxPixels: maxPixels, now: time.Now}
}

// RegisterFace stores image as the student's reference face and returns its key.
// The previous reference, if any, is removed on a best-effort basis. The new
// blob is removed again when it could not be recorded, so a lost race leaves
// nothing behind.
func (r *Registry) RegisterFace(ctx context.Context, studentID, filename string, image []byte) (string, error) {
	if !AllowedFile(filename) {
		return "", ErrUnsupportedFormat
	}
	normalized, err := Normalize(image, r.maxDim, r.maxPixels)
	if err != nil {
		return "", err
	}
	prev, err := r.refs.FaceReference(ctx, studentID)
	if err != nil {
		return "", err
	}

	key := ReferenceKey(studentID, r.now())
	if err := r.blobs.Put(ctx, key, normalized); err != nil {
		return "", fmt.Errorf("faces: store reference: %w", err)
	}
	swapped, err := r.record(ctx, studentID, prev, key)
	if err != nil || !swapped {
		if derr := r.blobs.Delete(ctx, key); derr != nil {
			log.Printf("faces: orphaned reference %s: %v", key, derr)
		}
		if err == nil {
			err = ErrReferenceContended
		}
		return "", err
	}
	return key, nil
}

// record swaps key in, re-reading the current reference after each lost
// swap, and deletes whichever reference it displaced.
func (r *Registry) record(ctx context.Context, studentID, prev, key string) (bool, error) {
	for i := 0; i < swapAttempts; i++ {
		ok, err := r.refs.SwapFaceReference(ctx, studentID, prev, key)
		if err != nil {
			return false, err
		}
		if ok {
			if prev != "" && prev != key {
				if err := r.blobs.Delete(ctx, prev); err != nil {
					log.Printf("faces: remove previous reference %s: %v", prev, err)
				}
			}
			return true, nil
		}
		if prev, err = r.refs.FaceReference(ctx, studentID); err != nil {
			return false, err
		}
	}
	return false, nil
}

// HasRegisteredFace reports whether the student has a recorded reference key
// whose blob still exists. A dangling key is false, not an error; only
// storage failures are returned.
func (r *Registry) HasRegisteredFace(ctx context.Context, studentID string) (bool, error) {
	key, err := r.refs.FaceReference(ctx, studentID)
	if err != nil {
		return false, err
	}
	if key == "" {
		return false, nil
	}
	ok, err := r.blobs.Exists(ctx, key)
	if errors.Is(err, blob.ErrInvalidKey) {
		return false, nil
	}
	return ok, err
}
