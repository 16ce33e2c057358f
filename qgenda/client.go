// Package qgenda is a small client for the QGenda REST API.
// It logs in with an email and password, caches the bearer token and issues authenticated GETs.
package qgenda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/logger"
	"golang.org/x/net/context/ctxhttp"
)

const (
	loginPath          = "/login"
	tokenRefreshMargin = 5 * time.Minute
	maxErrorBodyBytes  = 512
)

// Credentials are the QGenda login details plus the company the data is fetched for.
type Credentials struct {
	Email      string `errorTxt:"QGenda email" mandatory:"yes"`
	Password   string `errorTxt:"QGenda password" mandatory:"yes"`
	CompanyKey string `errorTxt:"QGenda company key" mandatory:"yes"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Url        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v %v returned status %v: %v", e.Method, e.Url, e.StatusCode, e.Body)
}

// Getter fetches the raw body of an authenticated GET request.
type Getter interface {
	Get(ctx context.Context, path string, params url.Values) ([]byte, error)
}

// Client talks to the QGenda REST API.
type Client struct {
	log        logger.Logger
	baseUrl    string
	creds      Credentials
	httpClient *http.Client
	tokens     *cache.Cache
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewClient returns a Client for baseUrl. A nil httpClient uses http.DefaultClient.
func NewClient(log logger.Logger, baseUrl string, creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		log:        log,
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		creds:      creds,
		httpClient: httpClient,
		tokens:     cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// Token returns a cached access token, logging in again when the cached one is close to expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	if t, ok := c.tokens.Get(c.creds.Email); ok {
		return t.(string), nil
	}
	form := url.Values{}
	form.Set("email", c.creds.Email)
	form.Set("password", c.creds.Password)
	c.log.Debug("authenticating with QGenda API as ", c.creds.Email)
	resp, err := ctxhttp.PostForm(ctx, c.httpClient, c.baseUrl+loginPath, form)
	if err != nil {
		return "", errors.Wrap(err, "QGenda login request failed")
	}
	body, err := readBody(resp, http.MethodPost, c.baseUrl+loginPath)
	if err != nil {
		return "", err
	}
	lr := loginResponse{}
	if err = json.Unmarshal(body, &lr); err != nil {
		return "", errors.Wrap(err, "unable to decode QGenda login response")
	}
	if lr.AccessToken == "" {
		return "", errors.New("QGenda login response did not contain an access token")
	}
	if ttl := time.Duration(lr.ExpiresIn)*time.Second - tokenRefreshMargin; ttl > 0 {
		c.tokens.Set(c.creds.Email, lr.AccessToken, ttl)
	}
	c.log.Debug("authentication with QGenda API successful")
	return lr.AccessToken, nil
}

// Get requests path with params plus the company key and returns the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("companyKey", c.creds.CompanyKey)
	u := c.baseUrl + path + "?" + q.Encode()
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build request for %v", path)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Accept", "application/json")
	c.log.Debug("requesting ", path, " from QGenda API")
	resp, err := ctxhttp.Do(ctx, c.httpClient, req)
	if err != nil {
		return nil, errors.Wrapf(err, "QGenda request for %v failed", path)
	}
	if resp.StatusCode == http.StatusUnauthorized { // force a fresh login next time.
		c.tokens.Delete(c.creds.Email)
	}
	return readBody(resp, http.MethodGet, c.baseUrl+path)
}

func readBody(resp *http.Response, method string, u string) ([]byte, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read response body from %v", u)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b := string(body)
		if len(b) > maxErrorBodyBytes {
			b = b[:maxErrorBodyBytes]
		}
		return nil, &StatusError{Method: method, Url: u, StatusCode: resp.StatusCode, Body: b}
	}
	return body, nil
}
