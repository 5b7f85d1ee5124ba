// Package imaging decodes the base64 image payloads accepted by the API.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	gocv "gocv.io/x/gocv"
)

// ErrEmptyPayload is returned when the request carries no image data.
var ErrEmptyPayload = errors.New("empty image payload")

// StripDataURL removes an optional data-URL header ("data:image/...;base64,")
// from a base64 payload. The split happens at the first comma; payloads without
// a comma are returned unchanged.
func StripDataURL(payload string) string {
	if idx := strings.Index(payload, ","); idx >= 0 {
		return payload[idx+1:]
	}
	return payload
}

// DecodePayload strips a data-URL header and base64-decodes the remainder.
func DecodePayload(payload string) ([]byte, error) {
	raw := StripDataURL(payload)
	if raw == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return data, nil
}

// DecodeMat decodes encoded image bytes into a BGR gocv.Mat. The caller owns
// the returned Mat and must Close it.
func DecodeMat(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errors.New("failed to decode image")
	}
	return mat, nil
}

// DecodeImage decodes encoded image bytes into a stdlib image.Image.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
