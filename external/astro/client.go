package astro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zodiya/funnel-api/internal/platform/logging"
)

// accountExistsMsg is the exact success-without-token message the signup
// endpoint returns for an email that already has an account.
const accountExistsMsg = "User updated and logged in successfully"

type Client struct {
	httpClient *http.Client
	signupURL  string
	logger     *logging.Logger
}

func NewClient(httpClient *http.Client, baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		signupURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/users/signup",
		logger:     logger,
	}
}

// SignupInput is the profile payload built from the frozen onboarding bundle
// plus attribution. Numeric fields are pointers because the backend treats
// absent and zero differently for birth data.
type SignupInput struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Gender      string   `json:"gender"`
	Day         *int     `json:"day,omitempty"`
	Month       *int     `json:"month,omitempty"`
	Year        *int     `json:"year,omitempty"`
	Hour        int      `json:"hour"`
	Min         int      `json:"min"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	TZone       *float64 `json:"tzone,omitempty"`
	City        string   `json:"city,omitempty"`
	Password    string   `json:"password"`
	UTMSource   string   `json:"utmSource"`
	UTMCampaign string   `json:"utmCampaign"`
}

// SignupResult reports the signup outcome. AlreadyExists means the backend
// matched an existing account and issued no token; the funnel must halt
// instead of proceeding.
type SignupResult struct {
	Token         string
	AlreadyExists bool
}

func (c *Client) SubmitSignup(ctx context.Context, input SignupInput) (SignupResult, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return SignupResult{}, fmt.Errorf("marshal signup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signupURL, bytes.NewReader(encoded))
	if err != nil {
		return SignupResult{}, fmt.Errorf("create signup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SignupResult{}, fmt.Errorf("request signup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SignupResult{}, fmt.Errorf("read signup response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "signup non-2xx response", "status_code", resp.StatusCode)
		return SignupResult{}, fmt.Errorf("signup failed with status %d", resp.StatusCode)
	}

	var decoded signupResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SignupResult{}, fmt.Errorf("unmarshal signup response: %w", err)
	}

	if decoded.Success && decoded.Msg == accountExistsMsg && strings.TrimSpace(decoded.Token) == "" {
		return SignupResult{AlreadyExists: true}, nil
	}

	return SignupResult{Token: strings.TrimSpace(decoded.Token)}, nil
}

type signupResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Token   string `json:"token"`
}
