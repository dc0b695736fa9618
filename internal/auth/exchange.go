package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/config"
	"apexdispatch/internal/logging"
)

const tokenExchangeGrant = "urn:ietf:params:oauth:grant-type:token-exchange"

// TokenExchanger trades a caller token for one scoped to an external identity provider.
type TokenExchanger struct {
	cfg    config.Keycloak
	client *http.Client
}

func NewTokenExchanger(cfg config.Keycloak, timeout time.Duration) *TokenExchanger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenExchanger{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type exchangeResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange returns the provider scoped access token for callerToken.
func (x *TokenExchanger) Exchange(ctx context.Context, callerToken, provider string) (string, error) {
	if x.cfg.ClientID == "" || x.cfg.ClientSecret == "" || x.cfg.TokenURL == "" {
		return "", apierr.New(http.StatusInternalServerError, apierr.CodeAuthenticationFailed,
			"Token exchange is not configured on this server.")
	}

	form := url.Values{
		"grant_type":           {tokenExchangeGrant},
		"client_id":            {x.cfg.ClientID},
		"client_secret":        {x.cfg.ClientSecret},
		"subject_token":        {callerToken},
		"subject_token_type":   {"urn:ietf:params:oauth:token-type:access_token"},
		"requested_token_type": {"urn:ietf:params:oauth:token-type:access_token"},
		"requested_issuer":     {provider},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := x.client.Do(req)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("provider", provider).Error("Token exchange request failed")
		return "", apierr.Wrap(err, http.StatusBadGateway, apierr.CodeAuthenticationFailed,
			"Could not authenticate with the authentication provider.")
	}
	defer resp.Body.Close()

	var body exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apierr.Wrap(err, http.StatusBadGateway, apierr.CodeAuthenticationFailed,
			"Could not authenticate with the authentication provider.")
	}

	if resp.StatusCode >= 400 {
		if body.Error == "not_linked" {
			return "", apierr.New(http.StatusUnauthorized, apierr.CodeAuthenticationFailed,
				fmt.Sprintf("Please link your account with %s in the Account Dashboard.", provider))
		}
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"provider":    provider,
			"status_code": resp.StatusCode,
			"error":       body.Error,
		}).Warn("Token exchange rejected")
		return "", apierr.New(http.StatusUnauthorized, apierr.CodeAuthenticationFailed,
			"Could not authenticate with the authentication provider.").WithDetails(body.ErrorDescription)
	}

	if body.AccessToken == "" {
		return "", apierr.New(http.StatusBadGateway, apierr.CodeAuthenticationFailed,
			"Could not authenticate with the authentication provider.")
	}
	return body.AccessToken, nil
}
