package blobvault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRelay is a Relay client speaking to a RelayServer (or any service
// implementing the same protocol). Network failures surface as
// TransientError so the transfer loop retries from its checkpoint instead
// of aborting.
type HTTPRelay struct {
	base   string
	client *http.Client
}

// NewHTTPRelay creates a relay client for the given base URL
func NewHTTPRelay(baseURL string) *HTTPRelay {
	return &HTTPRelay{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// errFromStatus inverts the RelayServer status mapping
func errFromStatus(code int, op string) error {
	switch code {
	case http.StatusNotFound:
		return ErrShareNotFound
	case http.StatusConflict:
		return ErrShareConsumed
	case http.StatusGone:
		return ErrShareExpired
	case http.StatusTooEarly:
		return ErrShareIncomplete
	case http.StatusBadRequest:
		return NewConfigError(op, "relay rejected request")
	default:
		return &TransientError{Operation: op, Message: fmt.Sprintf("relay returned status %d", code)}
	}
}

func (r *HTTPRelay) do(ctx context.Context, op, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, NewConfigError(op, err.Error())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, NewTransientError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransientError(op, err)
	}
	if resp.StatusCode >= 300 {
		return nil, errFromStatus(resp.StatusCode, op)
	}
	return data, nil
}

// CreateShare registers a share at the relay
func (r *HTTPRelay) CreateShare(ctx context.Context, meta ShareMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return NewConfigError("meta", err.Error())
	}
	_, err = r.do(ctx, "create", http.MethodPost, r.base+"/shares", bytes.NewReader(payload), "application/json")
	return err
}

// UploadChunk uploads one chunk by index
func (r *HTTPRelay) UploadChunk(ctx context.Context, shareID string, index uint32, data []byte) error {
	url := fmt.Sprintf("%s/shares/%s/chunks/%d", r.base, shareID, index)
	_, err := r.do(ctx, "upload", http.MethodPut, url, bytes.NewReader(data), "application/octet-stream")
	return err
}

// FinishUpload marks the upload complete
func (r *HTTPRelay) FinishUpload(ctx context.Context, shareID string) error {
	_, err := r.do(ctx, "finish", http.MethodPost, fmt.Sprintf("%s/shares/%s/complete", r.base, shareID), nil, "")
	return err
}

// Metadata fetches the share's metadata
func (r *HTTPRelay) Metadata(ctx context.Context, shareID string) (*ShareMeta, error) {
	data, err := r.do(ctx, "metadata", http.MethodGet, fmt.Sprintf("%s/shares/%s", r.base, shareID), nil, "")
	if err != nil {
		return nil, err
	}
	meta := &ShareMeta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, NewTransientError("metadata", err)
	}
	return meta, nil
}

// DownloadChunk fetches one chunk by index
func (r *HTTPRelay) DownloadChunk(ctx context.Context, shareID string, index uint32) ([]byte, error) {
	url := fmt.Sprintf("%s/shares/%s/chunks/%d", r.base, shareID, index)
	return r.do(ctx, "download", http.MethodGet, url, nil, "")
}

// CheckAvailability fetches the share's claimability state
func (r *HTTPRelay) CheckAvailability(ctx context.Context, shareID string) (Availability, error) {
	data, err := r.do(ctx, "availability", http.MethodGet, fmt.Sprintf("%s/shares/%s/availability", r.base, shareID), nil, "")
	if err != nil {
		return AvailabilityNotFound, err
	}
	var body struct {
		Availability string `json:"availability"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return AvailabilityNotFound, NewTransientError("availability", err)
	}
	return ParseAvailability(body.Availability), nil
}

// MarkConsumed marks the share consumed
func (r *HTTPRelay) MarkConsumed(ctx context.Context, shareID string) error {
	_, err := r.do(ctx, "consume", http.MethodPost, fmt.Sprintf("%s/shares/%s/consume", r.base, shareID), nil, "")
	return err
}

// Revoke deletes the share at the relay. A share that is already gone is
// not an error.
func (r *HTTPRelay) Revoke(ctx context.Context, shareID string) error {
	_, err := r.do(ctx, "revoke", http.MethodDelete, fmt.Sprintf("%s/shares/%s", r.base, shareID), nil, "")
	if err == ErrShareNotFound {
		return nil
	}
	return err
}
