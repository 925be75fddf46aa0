// SPDX-License-Identifier: GPL-3.0-or-later

package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/fxamacker/cbor/v2"
)

// ContentType is the content type of the uploaded report.
const ContentType = "application/cbor"

// maxResponseSize bounds the informational message we read back.
const maxResponseSize = 1 << 16

// UploadError is returned when the endpoint rejects the report.
type UploadError struct {
	Status  string
	Message string
}

// Error implements error.
func (e *UploadError) Error() string {
	return fmt.Sprintf("report: upload rejected: %s: %s", e.Status, e.Message)
}

// Marshal encodes the report using CBOR.
func Marshal(r *AgencyReport) ([]byte, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(r)
}

// Unmarshal decodes a report encoded with [Marshal].
func Unmarshal(data []byte) (*AgencyReport, error) {
	var r AgencyReport
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Upload posts the report to the endpoint, using key as bearer token when
// not empty. It returns the informational message of the endpoint, and an
// [*UploadError] when the endpoint rejects the report.
func Upload(ctx context.Context, client *http.Client, endpoint, key string, r *AgencyReport) (string, error) {
	body, err := Marshal(r)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", ContentType)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return string(msg), &UploadError{Status: resp.Status, Message: string(msg)}
	}
	return string(msg), nil
}
