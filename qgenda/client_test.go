package qgenda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{Email: "etl@example.org", Password: "secret", CompanyKey: "ck-1"}

func newTestServer(t *testing.T, logins *int32, scheduleStatus int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(logins, 1)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("email") != testCreds.Email || r.PostForm.Get("password") != testCreds.Password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/schedule", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("companyKey") != testCreds.CompanyKey {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(scheduleStatus)
		_, _ = w.Write([]byte(`[{"ScheduleKey":1,"select":"` + r.URL.Query().Get("$select") + `"}]`))
	})
	return httptest.NewServer(mux)
}

func TestClient_GetCachesToken(t *testing.T) {
	var logins int32
	srv := newTestServer(t, &logins, http.StatusOK)
	defer srv.Close()
	c := NewClient(logrus.New(), srv.URL+"/", testCreds, srv.Client())
	params := url.Values{"$select": []string{"ScheduleKey"}}
	for i := 0; i < 3; i++ {
		body, err := c.Get(context.Background(), "/schedule", params)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"ScheduleKey":1,"select":"ScheduleKey"}]`, string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins), "expected one login for three requests")
}

func TestClient_LoginFailure(t *testing.T) {
	var logins int32
	srv := newTestServer(t, &logins, http.StatusOK)
	defer srv.Close()
	creds := testCreds
	creds.Password = "wrong"
	_, err := NewClient(logrus.New(), srv.URL, creds, srv.Client()).Get(context.Background(), "/schedule", nil)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestClient_Non2xxIsStatusError(t *testing.T) {
	var logins int32
	srv := newTestServer(t, &logins, http.StatusInternalServerError)
	defer srv.Close()
	_, err := NewClient(logrus.New(), srv.URL, testCreds, srv.Client()).Get(context.Background(), "/schedule", nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.MethodGet, se.Method)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestClient_CancelledContext(t *testing.T) {
	var logins int32
	srv := newTestServer(t, &logins, http.StatusOK)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(logrus.New(), srv.URL, testCreds, srv.Client()).Get(ctx, "/schedule", nil)
	assert.Error(t, err)
}
