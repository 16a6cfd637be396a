package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jo-hoe/eggcount/internal/backend/archive"
	"github.com/jo-hoe/eggcount/internal/backend/database"
	"github.com/jo-hoe/eggcount/internal/core"
)

// uploadCredentials are read from the raw object before any other field is typed.
// A key of the wrong JSON type counts as a wrong key.
type uploadCredentials struct {
	APIKey    string
	APISecret string
}

// decodeCredentials fails only when the body is not a JSON object
func decodeCredentials(body []byte) (uploadCredentials, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return uploadCredentials{}, err
	}
	if fields == nil {
		return uploadCredentials{}, fmt.Errorf("payload is not a JSON object")
	}
	return uploadCredentials{
		APIKey:    stringField(fields, "api_key"),
		APISecret: stringField(fields, "api_secret"),
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var v string
	if err := json.Unmarshal(fields[key], &v); err != nil {
		return ""
	}
	return v
}

// uploadRequest is the body of POST /api/upload_results
type uploadRequest struct {
	APIKey     string      `json:"api_key"`
	APISecret  string      `json:"api_secret"`
	// Both name the archive directory, so they are only required when an image is uploaded
	Timestamp  string      `json:"timestamp" validate:"required_with=ImageBase64 BinaryImageBase64 AnnotatedImageBase64,max=100"`
	DeviceCode string      `json:"device_code" validate:"required_with=ImageBase64 BinaryImageBase64 AnnotatedImageBase64,max=100"`
	EggCount   flexibleInt `json:"egg_count" validate:"min=0"`

	ImageURL          string `json:"image_url"`
	BinaryImageURL    string `json:"binary_image_url"`
	AnnotatedImageURL string `json:"annotated_image_url"`

	ImageBase64          string `json:"image_base64"`
	BinaryImageBase64    string `json:"binary_image_base64"`
	AnnotatedImageBase64 string `json:"annotated_image_base64"`

	BoundingBoxes json.RawMessage `json:"bounding_boxes"`
}

func (r *uploadRequest) toIngestion() core.Ingestion {
	return core.Ingestion{
		Timestamp:  r.Timestamp,
		DeviceCode: r.DeviceCode,
		EggCount:   int(r.EggCount),
		ImageURLs: map[archive.Role]string{
			archive.RoleOriginal:  r.ImageURL,
			archive.RoleBinary:    r.BinaryImageURL,
			archive.RoleAnnotated: r.AnnotatedImageURL,
		},
		ImagePayloads: map[archive.Role]string{
			archive.RoleOriginal:  r.ImageBase64,
			archive.RoleBinary:    r.BinaryImageBase64,
			archive.RoleAnnotated: r.AnnotatedImageBase64,
		},
		BoundingBoxes: r.BoundingBoxes,
	}
}

// flexibleInt accepts a JSON integer, a float (truncated toward zero) or a numeric string
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	if n, err := strconv.Atoi(raw); err == nil {
		*f = flexibleInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt32 {
		return fmt.Errorf("egg_count: not a number: %s", string(data))
	}
	*f = flexibleInt(int(v))
	return nil
}

// resultItem is the public projection of a stored result; bounding boxes are not exposed
type resultItem struct {
	Timestamp         string `json:"timestamp"`
	DeviceCode        string `json:"device_code"`
	EggCount          int    `json:"egg_count"`
	ImageURL          string `json:"image_url"`
	BinaryImageURL    string `json:"binary_image_url"`
	AnnotatedImageURL string `json:"annotated_image_url"`
}

func newResultItem(r *database.Result) resultItem {
	return resultItem{
		Timestamp:         r.Timestamp,
		DeviceCode:        r.DeviceCode,
		EggCount:          r.EggCount,
		ImageURL:          r.ImageURL,
		BinaryImageURL:    r.BinaryImageURL,
		AnnotatedImageURL: r.AnnotatedImageURL,
	}
}
