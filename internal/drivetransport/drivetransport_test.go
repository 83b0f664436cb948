package drivetransport

import (
	"errors"
	"sync"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/syncrules/cloudsync/internal/domain"
)

func TestNormalizeRoot(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"/":           "",
		"backup":      "/backup",
		"/backup":     "/backup",
		"/backup/":    "/backup",
		"  /backup  ": "/backup",
	}
	for in, want := range cases {
		if got := normalizeRoot(in); got != want {
			t.Fatalf("normalizeRoot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeQueryString(t *testing.T) {
	cases := map[string]string{
		"plain":      "plain",
		"o'brien":    "o\\'brien",
		`back\slash`: `back\\slash`,
	}
	for in, want := range cases {
		if got := escapeQueryString(in); got != want {
			t.Fatalf("escapeQueryString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSecurityQueryInjection(t *testing.T) {
	malicious := "x' or 'a'='a"
	escaped := escapeQueryString(malicious)
	if escaped == malicious {
		t.Fatalf("expected the injected quote to be escaped")
	}
}

func TestIDCacheGetSet(t *testing.T) {
	c := newIDCache()
	if _, ok := c.get("/a"); ok {
		t.Fatalf("expected a miss on an empty cache")
	}
	c.set("/a", "id-1")
	id, ok := c.get("/a")
	if !ok || id != "id-1" {
		t.Fatalf("expected to retrieve id-1, got %q, %v", id, ok)
	}
}

func TestIDCacheConcurrentAccess(t *testing.T) {
	c := newIDCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.set("/p", "id")
			c.get("/p")
		}(i)
	}
	wg.Wait()
}

func TestParseDriveTimeInvalidReturnsZero(t *testing.T) {
	if got := parseDriveTime("not-a-timestamp"); !got.IsZero() {
		t.Fatalf("expected a zero time for an unparseable timestamp, got %v", got)
	}
}

func TestMapError(t *testing.T) {
	var tr Transport

	if got := tr.mapError(nil); got != nil {
		t.Fatalf("mapError(nil) = %v, want nil", got)
	}

	cases := []struct {
		code int
		want error
	}{
		{404, domain.ErrNotFound},
		{403, domain.ErrPermissionDenied},
		{409, domain.ErrAlreadyExists},
		{429, domain.ErrNetworkError},
	}
	for _, c := range cases {
		apiErr := &googleapi.Error{Code: c.code, Message: "boom"}
		if got := tr.mapError(apiErr); !errors.Is(got, c.want) {
			t.Fatalf("mapError(code %d) = %v, want %v", c.code, got, c.want)
		}
	}

	if got := tr.mapError(&googleapi.Error{Code: 500, Message: "server error"}); errors.Is(got, domain.ErrNotFound) {
		t.Fatalf("mapError(500) unexpectedly mapped to ErrNotFound")
	}

	if got := tr.mapError(errors.New("item notFound in folder")); !errors.Is(got, domain.ErrNotFound) {
		t.Fatalf("mapError(notFound substring) = %v, want ErrNotFound", got)
	}

	plain := errors.New("some other failure")
	if got := tr.mapError(plain); got != plain {
		t.Fatalf("mapError(plain) = %v, want unchanged %v", got, plain)
	}
}
