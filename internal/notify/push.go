package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/schedule"
)

// Push notification types carried in the data payload
const (
	PushSuitableJob        = "suitable_job"
	PushJobExpired         = "job_expired"
	PushJobCancelled       = "job_cancelled"
	PushJobAccepted        = "job_accepted"
	PushSessionStartRemind = "session_start_remind"
)

// PushTag is one element of the tag filter. Recipient tags alternate with
// {"operator":"OR"} separators.
type PushTag struct {
	Key      string `json:"key,omitempty"`
	Relation string `json:"relation,omitempty"`
	Value    string `json:"value,omitempty"`
	Operator string `json:"operator,omitempty"`
}

// PushRequest is the batch body accepted by the push gateway
type PushRequest struct {
	AppID         string            `json:"app_id"`
	Tags          []PushTag         `json:"tags"`
	Data          map[string]any    `json:"data"`
	Title         map[string]string `json:"title"`
	Contents      map[string]string `json:"contents"`
	IOSBadgeType  string            `json:"ios_badgeType"`
	IOSBadgeCount int               `json:"ios_badgeCount"`
	AndroidSound  string            `json:"android_sound"`
	IOSSound      string            `json:"ios_sound"`
	SendAfter     string            `json:"send_after,omitempty"`
}

// EmailTags builds the OR-joined tag filter addressing each email
func EmailTags(emails []string) []PushTag {
	tags := make([]PushTag, 0, len(emails)*2)
	for i, email := range emails {
		if i > 0 {
			tags = append(tags, PushTag{Operator: "OR"})
		}
		tags = append(tags, PushTag{Key: "email", Relation: "=", Value: strings.ToLower(email)})
	}
	return tags
}

// Sounds picks the android and ios sounds for a notification type
func Sounds(notificationType string, immediate bool) (android, ios string) {
	if notificationType != PushSuitableJob {
		return "default", "default"
	}
	sound := "emergency_booking"
	if !immediate {
		sound = "normal_booking"
	}
	return sound, sound + ".mp3"
}

// NewPushRequest assembles the request for one batch of recipients. A
// non-nil sendAfter schedules delivery.
func NewPushRequest(appID, title string, emails []string, data map[string]any, text string, immediate bool, sendAfter *time.Time) PushRequest {
	notificationType, _ := data["notification_type"].(string)
	android, ios := Sounds(notificationType, immediate)

	req := PushRequest{
		AppID:         appID,
		Tags:          EmailTags(emails),
		Data:          data,
		Title:         map[string]string{"en": title},
		Contents:      map[string]string{"en": text},
		IOSBadgeType:  "Increase",
		IOSBadgeCount: 1,
		AndroidSound:  android,
		IOSSound:      ios,
	}
	if sendAfter != nil {
		req.SendAfter = schedule.FormatSendAfter(*sendAfter)
	}
	return req
}

// PushClient posts requests to an OneSignal-compatible endpoint
type PushClient struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewPushClient creates a push client with a bounded HTTP timeout
func NewPushClient(url, apiKey string, timeout time.Duration) *PushClient {
	if url == "" {
		url = "https://onesignal.com/api/v1/notifications"
	}
	return &PushClient{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

// Push sends one batch
func (p *PushClient) Push(ctx context.Context, req PushRequest) error {
	if p.Client == nil {
		return errors.New("push: http client is nil")
	}
	if len(req.Tags) == 0 {
		return nil
	}

	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+p.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("push: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
