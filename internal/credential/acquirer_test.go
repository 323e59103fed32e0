package credential

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesTokenSlot(t *testing.T) {
	var gotLogin map[string]interface{}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/suite-api/api/auth/token/acquire", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotLogin))
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-xyz"})
	}))
	defer srv.Close()

	tokenPath := filepath.Join(t.TempDir(), "token.txt")
	host := strings.TrimPrefix(srv.URL, "https://")
	acquirer := NewTokenAcquirer(host,
		map[string]interface{}{"username": "admin"}, tokenPath, true)

	require.NoError(t, acquirer.Acquire())

	data, err := os.ReadFile(tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", string(data))
	assert.Equal(t, "admin", gotLogin["username"])
}

func TestAcquireRejectedLogin(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokenPath := filepath.Join(t.TempDir(), "token.txt")
	host := strings.TrimPrefix(srv.URL, "https://")
	acquirer := NewTokenAcquirer(host, map[string]interface{}{}, tokenPath, true)

	err := acquirer.Acquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, statErr := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAcquireEmptyTokenResponse(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": ""})
	}))
	defer srv.Close()

	tokenPath := filepath.Join(t.TempDir(), "token.txt")
	host := strings.TrimPrefix(srv.URL, "https://")
	acquirer := NewTokenAcquirer(host, map[string]interface{}{}, tokenPath, true)

	require.Error(t, acquirer.Acquire())
}
