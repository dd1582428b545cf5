package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// FileSender writes messages to disk instead of delivering them.
// It backs local development for any channel.
type FileSender struct {
	ch  notification.Channel
	dir string
}

// NewFileSender creates a sender that stores ch messages under dir.
func NewFileSender(ch notification.Channel, dir string) *FileSender {
	return &FileSender{ch: ch, dir: dir}
}

func (f *FileSender) Channel() notification.Channel { return f.ch }

type fileMetadata struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
}

// Send writes the body to <timestamp>_<channel>_<subject>_<id>.txt and its
// metadata to a .json file beside it.
func (f *FileSender) Send(_ context.Context, address, subject, body string) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return NewDeliveryError(f.ch, false, fmt.Errorf("create directory: %w", err))
	}

	now := time.Now()
	base := fmt.Sprintf("%s_%s_%s_%s",
		now.Format("2006_01_02_150405"),
		strings.ToLower(string(f.ch)),
		sanitizeFilename(subject),
		uuid.NewString()[:8],
	)

	if err := os.WriteFile(filepath.Join(f.dir, base+".txt"), []byte(body), 0o644); err != nil {
		return NewDeliveryError(f.ch, false, fmt.Errorf("write body: %w", err))
	}

	meta, err := json.MarshalIndent(fileMetadata{
		Timestamp: now.Format(time.RFC3339),
		Channel:   string(f.ch),
		SendTo:    address,
		Subject:   subject,
	}, "", "  ")
	if err != nil {
		return NewDeliveryError(f.ch, true, fmt.Errorf("marshal metadata: %w", err))
	}
	if err := os.WriteFile(filepath.Join(f.dir, base+".json"), meta, 0o644); err != nil {
		return NewDeliveryError(f.ch, false, fmt.Errorf("write metadata: %w", err))
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.ReplaceAll(s, " ", "_"), "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		s = "message"
	}
	return strings.ToLower(s)
}
