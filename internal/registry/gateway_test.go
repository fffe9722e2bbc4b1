package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsbind/internal/shared/testutil"
)

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/1234567/verification", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"verified","business_name":"Al Noor Motors"}`))
	}))
	defer server.Close()

	logger, _ := testutil.NewTestLogger(t)
	client := NewClient(server.URL, 5*time.Second, logger)

	result, err := client.Verify(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, result.Status)
	assert.Equal(t, "Al Noor Motors", result.BusinessName)
}

func TestClientVerifyEscapesLicenseNumber(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer server.Close()

	logger, _ := testutil.NewTestLogger(t)
	client := NewClient(server.URL, 5*time.Second, logger)

	result, err := client.Verify(context.Background(), "12/34")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.Equal(t, "/businesses/12%2F34/verification", gotPath)
}

func TestClientVerifyUnavailable(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, 5*time.Second, logger)
		_, err := client.Verify(context.Background(), "1234567")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		client := NewClient(server.URL, time.Second, logger)
		_, err := client.Verify(context.Background(), "1234567")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("garbage body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}))
		defer server.Close()

		client := NewClient(server.URL, 5*time.Second, logger)
		_, err := client.Verify(context.Background(), "1234567")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestStaticGateway(t *testing.T) {
	gateway := NewStaticGateway(map[string]string{
		"1234567": "verified",
		"5550001": "pending",
	})

	result, err := gateway.Verify(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, result.Status)

	result, err = gateway.Verify(context.Background(), "5550001")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)

	// Unknown licenses are unverified, not errors
	result, err = gateway.Verify(context.Background(), "0000000")
	require.NoError(t, err)
	assert.Equal(t, StatusUnverified, result.Status)

	gateway.Set("5550001", VerificationResult{Status: StatusVerified, BusinessName: "Upgraded"})
	result, err = gateway.Verify(context.Background(), "5550001")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, result.Status)
}

// countingGateway records how many times each license is looked up
type countingGateway struct {
	calls  map[string]int
	result VerificationResult
	err    error
}

func (g *countingGateway) Verify(_ context.Context, licenseNumber string) (VerificationResult, error) {
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[licenseNumber]++
	if g.err != nil {
		return VerificationResult{}, g.err
	}
	return g.result, nil
}

func TestCachingGateway(t *testing.T) {
	inner := &countingGateway{result: VerificationResult{Status: StatusVerified}}
	cached := NewCachingGateway(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := cached.Verify(ctx, "1234567")
		require.NoError(t, err)
		assert.Equal(t, StatusVerified, result.Status)
	}
	assert.Equal(t, 1, inner.calls["1234567"])

	// Different license, different entry
	_, err := cached.Verify(ctx, "7654321")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls["7654321"])

	cached.Invalidate("1234567")
	_, err = cached.Verify(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls["1234567"])
}

func TestCachingGatewayDoesNotCacheErrors(t *testing.T) {
	inner := &countingGateway{err: errors.New("registry down")}
	cached := NewCachingGateway(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.Verify(ctx, "1234567")
		require.Error(t, err)
	}
	assert.Equal(t, 3, inner.calls["1234567"])

	// Recovery is observed immediately
	inner.err = nil
	inner.result = VerificationResult{Status: StatusVerified}
	result, err := cached.Verify(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, result.Status)
}

func TestCachingGatewayExpiry(t *testing.T) {
	inner := &countingGateway{result: VerificationResult{Status: StatusVerified}}
	cached := NewCachingGateway(inner, 10*time.Millisecond)
	ctx := context.Background()

	_, err := cached.Verify(ctx, "1234567")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cached.Verify(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls["1234567"])
}
