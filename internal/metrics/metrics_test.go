package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := listingPagesTotal
	Init()

	if listingPagesTotal == nil || listingPagesTotal != first {
		t.Fatal("Init() did not initialize collectors exactly once")
	}
}

func TestObserveListingPage(t *testing.T) {
	ObserveListingPage("test-open", nil)
	ObserveListingPage("test-open", nil)
	ObserveListingPage("test-open", errors.New("boom"))

	if val := testutil.ToFloat64(listingPagesTotal.WithLabelValues("test-open")); val != 2 {
		t.Errorf("expected 2 listing pages, got %f", val)
	}
	if val := testutil.ToFloat64(listingFetchFailuresTotal.WithLabelValues("test-open")); val != 1 {
		t.Errorf("expected 1 listing failure, got %f", val)
	}
}

func TestObservePipelineCounters(t *testing.T) {
	ObserveCandidate("test-closed")
	ObserveNew("test-source", 3)
	ObserveNew("test-source", 0)
	ObserveIngest("test-source")
	ObserveFailure("test-stage")
	ObserveFetch("https://Example.org/page", 200, 512)
	ObserveRun("test-source", "success", 2*time.Second)
	ObserveRateLimitDelay("example.org", 150*time.Millisecond)

	if val := testutil.ToFloat64(candidatesTotal.WithLabelValues("test-closed")); val != 1 {
		t.Errorf("expected 1 candidate, got %f", val)
	}
	if val := testutil.ToFloat64(newGrantsTotal.WithLabelValues("test-source")); val != 3 {
		t.Errorf("expected 3 new grants, got %f", val)
	}
	if val := testutil.ToFloat64(ingestedGrantsTotal.WithLabelValues("test-source")); val != 1 {
		t.Errorf("expected 1 ingested grant, got %f", val)
	}
	if val := testutil.ToFloat64(grantFailuresTotal.WithLabelValues("test-stage")); val != 1 {
		t.Errorf("expected 1 failure, got %f", val)
	}
	if val := testutil.ToFloat64(detailFetchBytesTotal.WithLabelValues("example.org")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}
	if val := testutil.ToFloat64(syncRunsTotal.WithLabelValues("test-source", "success")); val != 1 {
		t.Errorf("expected 1 run, got %f", val)
	}
	if val := testutil.CollectAndCount(rateLimitDelaysSeconds); val <= 0 {
		t.Errorf("expected rate limit delays to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
