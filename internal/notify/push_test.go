package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSounds(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		immediate   bool
		wantAndroid string
		wantIOS     string
	}{
		{name: "suitable job, scheduled", kind: PushSuitableJob, immediate: false, wantAndroid: "normal_booking", wantIOS: "normal_booking.mp3"},
		{name: "suitable job, immediate", kind: PushSuitableJob, immediate: true, wantAndroid: "emergency_booking", wantIOS: "emergency_booking.mp3"},
		{name: "other type", kind: PushJobExpired, immediate: true, wantAndroid: "default", wantIOS: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			android, ios := Sounds(tt.kind, tt.immediate)
			assert.Equal(t, tt.wantAndroid, android)
			assert.Equal(t, tt.wantIOS, ios)
		})
	}
}

func TestNewPushRequest_WireShape(t *testing.T) {
	sendAfter := time.Date(2026, 5, 5, 7, 0, 0, 0, time.UTC)
	req := NewPushRequest("app-1", "Booking Service",
		[]string{"Anna@Example.com", "bo@example.com"},
		map[string]any{"notification_type": PushSuitableJob, "job_id": 7},
		"New booking", false, &sendAfter)

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	want := `{
		"app_id": "app-1",
		"tags": [
			{"key": "email", "relation": "=", "value": "anna@example.com"},
			{"operator": "OR"},
			{"key": "email", "relation": "=", "value": "bo@example.com"}
		],
		"data": {"notification_type": "suitable_job", "job_id": 7},
		"title": {"en": "Booking Service"},
		"contents": {"en": "New booking"},
		"ios_badgeType": "Increase",
		"ios_badgeCount": 1,
		"android_sound": "normal_booking",
		"ios_sound": "normal_booking.mp3",
		"send_after": "2026-05-05 07:00:00 GMT+0000"
	}`
	assert.JSONEq(t, want, string(raw))
}

func TestNewPushRequest_NoSendAfter(t *testing.T) {
	req := NewPushRequest("app-1", "t", []string{"a@example.com"}, map[string]any{}, "x", true, nil)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "send_after")
	assert.Equal(t, "default", req.AndroidSound)
}

func TestPushClient_Push(t *testing.T) {
	var gotAuth, gotType string
	var gotBody PushRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewPushClient(srv.URL, "secret", time.Second)
	req := NewPushRequest("app-1", "t", []string{"a@example.com"}, map[string]any{}, "hello", false, nil)

	require.NoError(t, client.Push(context.Background(), req))
	assert.Equal(t, "Basic secret", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "app-1", gotBody.AppID)
	assert.Equal(t, "hello", gotBody.Contents["en"])
}

func TestPushClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid app_id", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewPushClient(srv.URL, "secret", time.Second)

	t.Run("non 2xx status", func(t *testing.T) {
		req := NewPushRequest("app-1", "t", []string{"a@example.com"}, map[string]any{}, "x", false, nil)
		err := client.Push(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "invalid app_id")
	})

	t.Run("no recipients is a no-op", func(t *testing.T) {
		req := NewPushRequest("app-1", "t", nil, map[string]any{}, "x", false, nil)
		assert.NoError(t, client.Push(context.Background(), req))
	})
}
