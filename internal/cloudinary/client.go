package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when Cloudinary has no resource with the requested public id.
var ErrNotFound = errors.New("cloudinary: resource not found")

const (
	defaultAPIBase      = "https://api.cloudinary.com"
	defaultDeliveryBase = "https://res.cloudinary.com"
)

// Client talks to the Cloudinary upload, admin and delivery APIs.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// APIBase and DeliveryBase default to the public Cloudinary hosts.
	APIBase      string
	DeliveryBase string
	HTTP         *http.Client
	Now          func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Folder:       strings.Trim(folder, "/"),
		APIBase:      defaultAPIBase,
		DeliveryBase: defaultDeliveryBase,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		Now:          time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	Version   int64  `json:"version"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
}

// Resource is the admin API view of a stored image.
type Resource struct {
	PublicID  string    `json:"public_id"`
	Format    string    `json:"format"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicID maps a name inside the configured folder to its full public id.
func (c *Client) PublicID(name string) string {
	name = strings.Trim(name, "/")
	if c.Folder == "" {
		return name
	}
	return c.Folder + "/" + name
}

// Upload stores data under publicID, replacing any existing image with that id.
func (c *Client) Upload(ctx context.Context, publicID string, data []byte) (*UploadResult, error) {
	params := c.signedParams(map[string]string{
		"public_id": publicID,
		"overwrite": "true",
	})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", publicID+".jpg")
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("image/upload"), &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("cloudinary: upload failed (%d): %s", status, string(body))
	}
	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return &result, nil
}

// Destroy deletes the image with publicID. Destroying a missing image is not an error.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	params := c.signedParams(map[string]string{"public_id": publicID, "invalidate": "true"})
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("image/destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("cloudinary: destroy failed (%d): %s", status, string(body))
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	if out.Result != "ok" && out.Result != "not found" {
		return fmt.Errorf("cloudinary: destroy %s: %s", publicID, out.Result)
	}
	return nil
}

// Resource looks up an image through the admin API.
func (c *Client) Resource(ctx context.Context, publicID string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("resources/image/upload/"+publicID), nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.SetBasicAuth(c.APIKey, c.APISecret)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status >= 300 {
		return nil, fmt.Errorf("cloudinary: resource lookup failed (%d): %s", status, string(body))
	}
	var res Resource
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return &res, nil
}

// Fetch downloads the JPEG rendition of publicID from the delivery host.
func (c *Client) Fetch(ctx context.Context, publicID string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/image/upload/%s.jpg", strings.TrimRight(c.DeliveryBase, "/"), c.CloudName, publicID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status >= 300 {
		return nil, fmt.Errorf("cloudinary: fetch failed (%d)", status)
	}
	return body, nil
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/v1_1/%s/%s", strings.TrimRight(c.APIBase, "/"), c.CloudName, path)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("cloudinary: read response failed: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) signedParams(extra map[string]string) map[string]string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	for k, v := range extra {
		params[k] = v
	}
	params["signature"] = c.sign(params)
	return params
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are not part of the signed payload.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true, "signature": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
