package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	fcmEndpoint       = "https://fcm.googleapis.com"
	fcmMessagingScope = "https://www.googleapis.com/auth/firebase.messaging"
)

// FCMSender sends through the Firebase Cloud Messaging HTTP v1 API, one
// request per token, with bounded parallelism and a shared rate limit.
type FCMSender struct {
	client      *http.Client
	endpoint    string
	projectID   string
	limiter     *rate.Limiter
	parallelism int
	logger      *slog.Logger
}

type FCMOption func(*FCMSender)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) FCMOption {
	return func(s *FCMSender) { s.endpoint = endpoint }
}

func WithRateLimit(perSecond float64, burst int) FCMOption {
	return func(s *FCMSender) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithParallelism(n int) FCMOption {
	return func(s *FCMSender) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// NewFCMSender uses client as is; it must attach credentials.
func NewFCMSender(client *http.Client, projectID string, logger *slog.Logger, opts ...FCMOption) *FCMSender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &FCMSender{
		client:      client,
		endpoint:    fcmEndpoint,
		projectID:   projectID,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		parallelism: 8,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFCMSenderFromCredentials authenticates with a service account key
// file, or with application default credentials when path is empty.
func NewFCMSenderFromCredentials(ctx context.Context, path, projectID string, logger *slog.Logger, opts ...FCMOption) (*FCMSender, error) {
	var creds *google.Credentials
	if path == "" {
		found, err := google.FindDefaultCredentials(ctx, fcmMessagingScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		creds = found
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read FCM credentials: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, fcmMessagingScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse FCM credentials: %w", err)
		}
	}

	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, fmt.Errorf("FCM project id is required")
	}
	return NewFCMSender(oauth2.NewClient(ctx, creds.TokenSource), projectID, logger, opts...), nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token   string            `json:"token"`
	Data    map[string]string `json:"data"`
	Android *fcmAndroid       `json:"android,omitempty"`
	APNS    *fcmAPNS          `json:"apns,omitempty"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers"`
	Payload map[string]any    `json:"payload"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type            string `json:"@type"`
			ErrorCode       string `json:"errorCode"`
			FieldViolations []struct {
				Field       string `json:"field"`
				Description string `json:"description"`
			} `json:"fieldViolations"`
		} `json:"details"`
	} `json:"error"`
}

func (s *FCMSender) SendEachForMulticast(ctx context.Context, msg *MulticastMessage) (*BatchResponse, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}

	responses := make([]SendResponse, len(msg.Tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i, token := range msg.Tokens {
		g.Go(func() error {
			responses[i] = s.sendOne(gctx, token, msg.Data)
			return nil
		})
	}
	_ = g.Wait()

	return newBatchResponse(responses), nil
}

func (s *FCMSender) sendOne(ctx context.Context, token string, data map[string]string) SendResponse {
	resp := SendResponse{Token: token}

	if err := s.limiter.Wait(ctx); err != nil {
		resp.Error = fmt.Errorf("%w: %w", ErrTransient, err)
		return resp
	}

	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:   token,
		Data:    data,
		Android: &fcmAndroid{Priority: "high"},
		APNS: &fcmAPNS{
			Headers: map[string]string{"apns-priority": "5", "apns-push-type": "background"},
			Payload: map[string]any{"aps": map[string]any{"content-available": 1}},
		},
	}})
	if err != nil {
		resp.Error = fmt.Errorf("failed to encode message: %w", err)
		return resp
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", s.endpoint, s.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		resp.Error = fmt.Errorf("failed to build request: %w", err)
		return resp
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(req)
	if err != nil {
		resp.Error = fmt.Errorf("%w: %w", ErrTransient, err)
		return resp
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
	if err != nil {
		resp.Error = fmt.Errorf("%w: %w", ErrTransient, err)
		return resp
	}

	if httpResp.StatusCode == http.StatusOK {
		var ok fcmResponse
		if err := json.Unmarshal(payload, &ok); err == nil {
			resp.MessageID = ok.Name
		}
		return resp
	}

	resp.Error = classifyFCMError(httpResp.StatusCode, payload)
	return resp
}

// classifyFCMError maps an FCM v1 error to the package taxonomy.
func classifyFCMError(status int, payload []byte) error {
	var body fcmErrorResponse
	_ = json.Unmarshal(payload, &body)

	code := body.Error.Status
	for _, d := range body.Error.Details {
		if d.ErrorCode != "" {
			code = d.ErrorCode
			break
		}
	}

	switch code {
	case "UNREGISTERED", "NOT_FOUND":
		return fmt.Errorf("%w: %s", ErrUnregistered, body.Error.Message)
	case "INVALID_ARGUMENT":
		if blamesToken(&body) {
			return fmt.Errorf("%w: %s", ErrInvalidToken, body.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrRejected, body.Error.Message)
	case "SENDER_ID_MISMATCH", "THIRD_PARTY_AUTH_ERROR":
		// Credentials or project mismatch affects every target alike.
		return fmt.Errorf("%w: %s: %s", ErrRejected, code, body.Error.Message)
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: http %d", ErrUnregistered, status)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d", ErrTransient, status)
	default:
		return fmt.Errorf("fcm send failed: http %d: %s", status, body.Error.Message)
	}
}

// blamesToken reports whether an INVALID_ARGUMENT error names the
// registration token rather than the message payload.
func blamesToken(body *fcmErrorResponse) bool {
	for _, d := range body.Error.Details {
		for _, v := range d.FieldViolations {
			if strings.HasSuffix(v.Field, "token") {
				return true
			}
		}
	}
	return strings.Contains(strings.ToLower(body.Error.Message), "registration token")
}
