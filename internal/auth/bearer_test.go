package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		target string
		header string
		want   string
		err    error
	}{
		{name: "header", target: "/", header: "Bearer abc", want: "abc"},
		{name: "query fallback", target: "/?access_token=xyz", want: "xyz"},
		{name: "header wins", target: "/?access_token=xyz", header: "Bearer abc", want: "abc"},
		{name: "missing", target: "/", err: ErrMissingBearerToken},
		{name: "empty bearer", target: "/", header: "Bearer   ", err: ErrMissingBearerToken},
		{name: "basic scheme", target: "/", header: "Basic Zm9vOmJhcg==", err: ErrMalformedHeader},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, testCase.target, http.NoBody)
			if testCase.header != "" {
				request.Header.Set("Authorization", testCase.header)
			}
			token, err := BearerToken(request)
			if testCase.err != nil {
				if !errors.Is(err, testCase.err) {
					t.Fatalf("expected %v, got %v", testCase.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token != testCase.want {
				t.Fatalf("expected token %q, got %q", testCase.want, token)
			}
		})
	}

	if _, err := BearerToken(nil); !errors.Is(err, ErrMissingBearerToken) {
		t.Fatalf("expected missing token for nil request, got %v", err)
	}
}
