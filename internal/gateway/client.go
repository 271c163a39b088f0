package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned for 404 responses (missing instance, unknown
// group, and similar permanent misses).
var ErrNotFound = errors.New("gateway: not found")

// ErrMediaUnavailable is returned when the gateway permanently cannot serve
// a media payload, typically because it expired upstream.
var ErrMediaUnavailable = errors.New("gateway: media unavailable, content may have expired")

const (
	defaultTimeout = 30 * time.Second
	mediaTimeout   = 60 * time.Second

	// mediaAttempts bounds the media retry loop; other requests retry
	// at most twice with linear backoff.
	mediaAttempts   = 3
	requestRetries  = 2
	retryBackoff    = 500 * time.Millisecond
	mediaBackoffMin = time.Second
)

// Client issues raw HTTP requests to the messaging gateway. It performs no
// normalization; callers receive records exactly as the gateway shapes them.
type Client struct {
	baseURL  string
	apiKey   string
	instance string
	http     *http.Client
	logger   *zap.Logger

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a gateway client for one instance. The underlying HTTP
// client pools connections across requests.
func NewClient(baseURL, apiKey, instance string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		instance: instance,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 30,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Instance returns the gateway instance name this client talks to.
func (c *Client) Instance() string { return c.instance }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do issues one request with bounded retry on transient failures. 4xx
// responses are permanent and never retried.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	// Apply the default timeout unless the caller brought a tighter one.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= requestRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, time.Duration(attempt)*retryBackoff); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("gateway request failed",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				// Malformed payloads are logged and surfaced as empty,
				// never as a pipeline crash.
				c.logger.Warn("gateway returned malformed payload",
					zap.String("path", path),
					zap.Error(err))
				return nil
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("gateway status %d", resp.StatusCode)
			c.logger.Warn("gateway server error",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			continue
		default:
			return fmt.Errorf("%s: gateway status %d", path, resp.StatusCode)
		}
	}
	return fmt.Errorf("%s: %w", path, lastErr)
}

// FetchContacts retrieves the full contact directory.
func (c *Client) FetchContacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	payload := map[string]any{"where": map[string]any{}}
	if err := c.do(ctx, http.MethodPost, "/chat/findContacts/"+c.instance, payload, &contacts); err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	return contacts, nil
}

// FetchChats retrieves the raw chat set, bounded by the gateway's own
// upstream limit.
func (c *Client) FetchChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.do(ctx, http.MethodPost, "/chat/findChats/"+c.instance, map[string]any{}, &chats); err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	return chats, nil
}

// messagesEnvelope is the gateway's findMessages response wrapper.
type messagesEnvelope struct {
	Messages MessagePage `json:"messages"`
}

// FetchMessages retrieves one page of messages for a chat. Pages are
// 1-indexed and ordered newest-first by the gateway.
func (c *Client) FetchMessages(ctx context.Context, remoteJID string, limit, page int) (MessagePage, error) {
	payload := map[string]any{
		"where": map[string]any{
			"key": map[string]any{"remoteJid": remoteJID},
		},
		"limit": limit,
		"page":  page,
	}
	var env messagesEnvelope
	if err := c.do(ctx, http.MethodPost, "/chat/findMessages/"+c.instance, payload, &env); err != nil {
		return MessagePage{}, fmt.Errorf("fetch messages %s: %w", remoteJID, err)
	}
	if env.Messages.Total == 0 {
		env.Messages.Total = len(env.Messages.Records)
	}
	return env.Messages, nil
}

// FetchGroupInfo retrieves a group's metadata (subject, picture).
func (c *Client) FetchGroupInfo(ctx context.Context, groupJID string) (GroupInfo, error) {
	var info GroupInfo
	path := "/group/findGroupInfos/" + c.instance + "?groupJid=" + url.QueryEscape(groupJID)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return GroupInfo{}, fmt.Errorf("fetch group info %s: %w", groupJID, err)
	}
	return info, nil
}

// participantsEnvelope is the gateway's roster response wrapper.
type participantsEnvelope struct {
	Participants []Participant `json:"participants"`
}

// FetchGroupParticipants retrieves a group's roster, which carries the
// internal-id to phone-number pairs for its members.
func (c *Client) FetchGroupParticipants(ctx context.Context, groupJID string) ([]Participant, error) {
	var env participantsEnvelope
	path := "/group/participants/" + c.instance + "?groupJid=" + url.QueryEscape(groupJID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("fetch group participants %s: %w", groupJID, err)
	}
	return env.Participants, nil
}

// pictureEnvelope is the profile-picture response wrapper.
type pictureEnvelope struct {
	ProfilePictureURL string `json:"profilePictureUrl"`
}

// FetchProfilePicture retrieves the avatar URL for a contact or group.
func (c *Client) FetchProfilePicture(ctx context.Context, jid string) (string, error) {
	var env pictureEnvelope
	payload := map[string]any{"number": jid}
	if err := c.do(ctx, http.MethodPost, "/chat/fetchProfilePictureUrl/"+c.instance, payload, &env); err != nil {
		return "", fmt.Errorf("fetch profile picture %s: %w", jid, err)
	}
	return env.ProfilePictureURL, nil
}

// FetchInstanceInfo retrieves the connected instance record, including the
// owner's own identifier.
func (c *Client) FetchInstanceInfo(ctx context.Context) (InstanceInfo, error) {
	var instances []InstanceInfo
	path := "/instance/fetchInstances?instanceName=" + url.QueryEscape(c.instance)
	if err := c.do(ctx, http.MethodGet, path, nil, &instances); err != nil {
		return InstanceInfo{}, fmt.Errorf("fetch instance info: %w", err)
	}
	if len(instances) == 0 {
		return InstanceInfo{}, fmt.Errorf("fetch instance info: %w", ErrNotFound)
	}
	return instances[0], nil
}

// FetchMediaBase64 retrieves a media payload by message key. Transient
// failures are retried up to mediaAttempts times with exponential backoff;
// a permanent miss yields ErrMediaUnavailable.
func (c *Client) FetchMediaBase64(ctx context.Context, key MessageKey) (Media, error) {
	payload := map[string]any{
		"message":      map[string]any{"key": key},
		"convertToMp4": false,
	}

	backoff := mediaBackoffMin
	var lastErr error
	for attempt := 1; attempt <= mediaAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, mediaTimeout)
		var media Media
		err := c.do(attemptCtx, http.MethodPost, "/chat/getBase64FromMediaMessage/"+c.instance, payload, &media)
		cancel()
		if err == nil {
			if media.Base64 == "" {
				return Media{}, ErrMediaUnavailable
			}
			return media, nil
		}
		if errors.Is(err, ErrNotFound) {
			return Media{}, fmt.Errorf("message %s: %w", key.ID, ErrMediaUnavailable)
		}
		if ctx.Err() != nil {
			return Media{}, ctx.Err()
		}
		lastErr = err
		c.logger.Warn("media fetch failed",
			zap.String("message_id", key.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < mediaAttempts {
			if err := c.sleep(ctx, backoff); err != nil {
				return Media{}, err
			}
			backoff *= 2
		}
	}
	return Media{}, fmt.Errorf("fetch media %s: %w", key.ID, lastErr)
}
