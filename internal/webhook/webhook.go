// Package webhook delivers run notifications and data-file backups to a
// chat webhook endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"coinlog/internal/core"
)

// ErrDelivery wraps any transport failure or non-2xx response from the
// webhook endpoint. Deliveries are best-effort; callers log and move on.
var ErrDelivery = errors.New("webhook delivery failed")

const (
	defaultTimeout = 10 * time.Second
	backupFilename = "coin_data_multi.json"
)

type Client struct {
	url    string
	client *http.Client
}

func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts a text message describing a freshly recorded run.
func (c *Client) Notify(ctx context.Context, entity string, r core.Record, items core.Items) error {
	payload := map[string]string{
		"content": formatRun(entity, r, items),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(ctx, req, "notify")
}

// Backup uploads the full collection as a JSON file attachment so the chat
// channel keeps a restorable copy of the data file.
func (c *Client) Backup(ctx context.Context, col core.Collection) error {
	data, err := col.EncodeBytes()
	if err != nil {
		return fmt.Errorf("%w: encode collection: %v", ErrDelivery, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("Backup: %d entities, %d records", len(col), col.TotalRecords()),
	})
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrDelivery, err)
	}
	if err := mw.WriteField("payload_json", string(meta)); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	part, err := mw.CreateFormFile("files[0]", backupFilename)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.send(ctx, req, "backup")
}

func (c *Client) send(ctx context.Context, req *http.Request, kind string) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDelivery, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: %s: status %d: %s", ErrDelivery, kind, resp.StatusCode, snippet)
	}

	slog.DebugContext(ctx, "Webhook delivered", "kind", kind, "status", resp.StatusCode)
	return nil
}

func formatRun(entity string, r core.Record, items core.Items) string {
	msg := fmt.Sprintf("%s: base %d → boost %d, final %d (rate x%g)", entity, r.Base, r.Boost, r.Final, r.Rate)
	switch {
	case items.FiveToFour && items.PlusCoin:
		msg += " [5→4, +Coin]"
	case items.FiveToFour:
		msg += " [5→4]"
	case items.PlusCoin:
		msg += " [+Coin]"
	}
	return msg
}
