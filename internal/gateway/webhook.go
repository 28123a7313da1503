package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"printlapse/internal/logger"
	"printlapse/internal/notify"
)

const postTimeout = 60 * time.Second

// Webhook forwards messages to the external chat bridge as JSON posts.
// Photo payloads ride along base64-encoded (encoding/json's []byte
// behavior); videos are referenced by path since bridge and engine share
// the filesystem.
type Webhook struct {
	url  string
	http *http.Client
	log  *logger.Logger
}

func NewWebhook(url string, log *logger.Logger) *Webhook {
	return &Webhook{
		url:  url,
		http: &http.Client{Timeout: postTimeout},
		log:  log,
	}
}

// Send delivers one message. With no bridge URL configured the message is
// logged instead, which keeps a headless setup observable.
func (w *Webhook) Send(ctx context.Context, m notify.Message) error {
	if w.url == "" {
		w.log.Infow("message", "kind", m.Kind, "recipient", m.Recipient, "silent", m.Silent, "text", m.Text, "file", m.FilePath)
		return nil
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway post: unexpected status %s", resp.Status)
	}
	return nil
}
