package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/config"
)

const (
	presetName      = "group_call_participant"
	preferredRegion = "eu-central-1"
	roomNameFormat  = "%s Flyingdarts Room"
)

// ErrRoomNotFound is returned when the provider does not know the room
var ErrRoomNotFound = errors.New("meeting room not found")

// Client talks to the video room provider. In mock mode, when the provider
// is not configured, rooms and credentials are generated locally.
type Client struct {
	baseURL    string
	orgID      string
	apiKey     string
	httpClient *http.Client
	mock       bool
}

// NewClient constructs a provider client, falling back to mock mode when
// the base url or credentials are missing.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil || cfg.MeetingServiceBaseURL == "" || cfg.MeetingServiceOrgID == "" || cfg.MeetingServiceAPIKey == "" {
		log.Printf("[MEETING] provider not configured, using mock rooms")
		return &Client{mock: true}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.MeetingServiceBaseURL, "/"),
		orgID:      cfg.MeetingServiceOrgID,
		apiKey:     cfg.MeetingServiceAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Mock reports whether the client generates rooms locally
func (c *Client) Mock() bool {
	return c.mock
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	} `json:"data"`
}

// CreateRoom opens a room for a match and returns its identifier
func (c *Client) CreateRoom(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("create room: name is required")
	}
	if c.mock {
		return uuid.NewString(), nil
	}

	body := map[string]interface{}{
		"title":            fmt.Sprintf(roomNameFormat, name),
		"preferred_region": preferredRegion,
	}
	var out envelope
	if err := c.post(ctx, "/meetings", body, &out); err != nil {
		return "", fmt.Errorf("create room %s: %w", name, err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("create room %s: provider returned no id", name)
	}
	log.Printf("[MEETING] Created room %s for %s", out.Data.ID, name)
	return out.Data.ID, nil
}

// JoinRoom adds a participant to roomID and returns the participant credential
func (c *Client) JoinRoom(ctx context.Context, roomID, displayName, playerID string) (string, error) {
	if roomID == "" || playerID == "" {
		return "", fmt.Errorf("join room: room and player ids are required")
	}
	if c.mock {
		return "mock-" + roomID + "-" + playerID, nil
	}

	body := map[string]interface{}{
		"name":                  displayName,
		"preset_name":           presetName,
		"custom_participant_id": playerID,
	}
	var out envelope
	if err := c.post(ctx, "/meetings/"+roomID+"/participants", body, &out); err != nil {
		return "", fmt.Errorf("join room %s: %w", roomID, err)
	}
	if out.Data.Token == "" {
		return "", fmt.Errorf("join room %s: provider returned no token", roomID)
	}
	return out.Data.Token, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.orgID, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return ErrRoomNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider error %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
