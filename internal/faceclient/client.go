package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"faceattend/internal/faces"
)

// ErrUnprocessable is returned when the service rejects an image, typically
// because no face could be detected in it.
var ErrUnprocessable = faces.ErrUnprocessable

// Client calls the face similarity microservice.
type Client struct {
	BaseURL  string
	Model    string
	Detector string
	HTTP     *http.Client
	Skip     bool
}

// New creates a client bound to one model and detector for its whole lifetime.
func New(baseURL, model, detector string, timeout time.Duration, skip bool) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Model:    model,
		Detector: detector,
		Skip:     skip,
		HTTP: &http.Client{
			Timeout: timeout, // face processing can take time
		},
	}
}

// Verify compares a reference and a probe image.
func (c *Client) Verify(ctx context.Context, reference, probe []byte) (faces.Comparison, error) {
	if c.Skip {
		return faces.Comparison{Verified: true, Distance: 0.25}, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	files := []struct {
		name string
		data []byte
	}{{"img1", reference}, {"img2", probe}}
	for _, f := range files {
		part, err := w.CreateFormFile(f.name, f.name+".jpg")
		if err != nil {
			return faces.Comparison{}, err
		}
		if _, err := part.Write(f.data); err != nil {
			return faces.Comparison{}, err
		}
	}
	_ = w.WriteField("model_name", c.Model)
	_ = w.WriteField("detector_backend", c.Detector)
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verify", &buf)
	if err != nil {
		return faces.Comparison{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return faces.Comparison{}, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return faces.Comparison{}, fmt.Errorf("%w: %s", ErrUnprocessable, errorMessage(resp.Body))
	}
	if resp.StatusCode >= 300 {
		return faces.Comparison{}, fmt.Errorf("face service error %s: %s", resp.Status, errorMessage(resp.Body))
	}

	var out struct {
		Verified *bool    `json:"verified"`
		Distance *float64 `json:"distance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return faces.Comparison{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Verified == nil || out.Distance == nil {
		return faces.Comparison{}, fmt.Errorf("face service response missing verified or distance")
	}
	return faces.Comparison{Verified: *out.Verified, Distance: *out.Distance}, nil
}

// errorMessage extracts {"error": ...} or {"detail": ...} from a failed response.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	var out struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &out) == nil {
		if out.Error != "" {
			return out.Error
		}
		if out.Detail != "" {
			return out.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}
