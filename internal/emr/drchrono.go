package emr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

var drchronoTracer = otel.Tracer("medrx.internal.emr.drchrono")

const oauthScope = "patients:read patients:write clinical:read clinical:write"

// DrChronoClient talks to the DrChrono EMR: OAuth2 authorization-code flow
// plus the patient API. Tokens live in the TokenStore so the connection
// survives restarts.
type DrChronoClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
	baseURL      string
	tokens       *TokenStore
	httpClient   *http.Client
	logger       *logging.Logger
}

func NewDrChronoClient(clientID, clientSecret, redirectURI string, tokens *TokenStore, logger *logging.Logger) *DrChronoClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &DrChronoClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		baseURL:      "https://app.drchrono.com",
		tokens:       tokens,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
	}
}

// Enabled reports whether OAuth credentials are configured.
func (c *DrChronoClient) Enabled() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// WithBaseURL overrides the DrChrono host, used by tests.
func (c *DrChronoClient) WithBaseURL(baseURL string) *DrChronoClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// AuthorizationURL builds the provider-facing OAuth consent URL.
func (c *DrChronoClient) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("scope", oauthScope)
	if state != "" {
		params.Set("state", state)
	}
	return c.baseURL + "/o/authorize/?" + params.Encode()
}

// ExchangeCode trades the authorization code for tokens and persists them.
func (c *DrChronoClient) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	return c.requestToken(ctx, form)
}

// Refresh trades the refresh token for a fresh access token and persists
// the result.
func (c *DrChronoClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	token, err := c.requestToken(ctx, form)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
		if err := c.tokens.Set(ctx, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

func (c *DrChronoClient) requestToken(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/o/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("emr: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emr: token http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("emr: token status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("emr: token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("emr: token response missing access_token")
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	token := &Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
	if err := c.tokens.Set(ctx, token); err != nil {
		return nil, err
	}
	c.logger.Info("emr tokens stored")
	return token, nil
}

// accessToken returns a live access token, refreshing through the stored
// refresh token when needed.
func (c *DrChronoClient) accessToken(ctx context.Context) (string, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return "", err
	}
	if !token.Expired() {
		return token.AccessToken, nil
	}
	if token.RefreshToken == "" {
		return "", ErrNotConnected
	}
	refreshed, err := c.Refresh(ctx, token.RefreshToken)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// SyncPatient upserts the patient by email and attaches the intake note.
func (c *DrChronoClient) SyncPatient(ctx context.Context, rec PatientRecord) error {
	if !c.Enabled() {
		return ErrNotConnected
	}

	ctx, span := drchronoTracer.Start(ctx, "emr.drchrono.sync_patient")
	defer span.End()
	span.SetAttributes(attribute.String("medrx.patient_email", rec.Email))

	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"first_name":    rec.FirstName,
		"last_name":     rec.LastName,
		"email":         rec.Email,
		"cell_phone":    rec.Phone,
		"date_of_birth": rec.DateOfBirth,
		"gender":        rec.Gender,
		"address":       rec.Address,
	}
	if rec.Note != "" {
		payload["patient_photo_comments"] = rec.Note
	}

	existingID, err := c.findPatientID(ctx, accessToken, rec.Email)
	if err != nil {
		return err
	}

	if existingID != 0 {
		if err := c.apiRequest(ctx, accessToken, http.MethodPatch, fmt.Sprintf("/api/patients/%d", existingID), payload, nil); err != nil {
			return err
		}
		c.logger.Info("emr patient updated", "patient_id", existingID)
		return nil
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := c.apiRequest(ctx, accessToken, http.MethodPost, "/api/patients", payload, &created); err != nil {
		return err
	}
	c.logger.Info("emr patient created", "patient_id", created.ID)
	return nil
}

func (c *DrChronoClient) findPatientID(ctx context.Context, accessToken, email string) (int, error) {
	var listing struct {
		Results []struct {
			ID int `json:"id"`
		} `json:"results"`
	}
	endpoint := "/api/patients?email=" + url.QueryEscape(email)
	if err := c.apiRequest(ctx, accessToken, http.MethodGet, endpoint, nil, &listing); err != nil {
		return 0, err
	}
	if len(listing.Results) == 0 {
		return 0, nil
	}
	return listing.Results[0].ID, nil
}

func (c *DrChronoClient) apiRequest(ctx context.Context, accessToken, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("emr: api payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("emr: api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("emr: api http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("emr: api status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("emr: api response: %w", err)
		}
	}
	return nil
}

var _ Relay = (*DrChronoClient)(nil)
