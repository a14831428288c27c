package parser

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sigv4-gate/internal/rawbody"
)

func newJSONParser(t *testing.T) *JSON {
	t.Helper()
	p, err := NewJSON(json.Unmarshal)
	require.NoError(t, err)
	return p
}

func TestNewJSONRequiresDecoder(t *testing.T) {
	_, err := NewJSON(nil)
	assert.ErrorIs(t, err, ErrNoDecoder)
}

func TestJSONMatch(t *testing.T) {
	p := newJSONParser(t)
	assert.True(t, p.Match("application/json"))
	assert.True(t, p.Match("application/vnd.api+json"))
	assert.False(t, p.Match("application/xml"))
	assert.False(t, p.Match("text/plain"))
}

func TestJSONParse(t *testing.T) {
	p := newJSONParser(t)

	t.Run("empty body is an empty mapping", func(t *testing.T) {
		params, err := p.Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, Params{}, params)

		params, err = p.Parse([]byte("  \n\t"))
		require.NoError(t, err)
		assert.Equal(t, Params{}, params)
	})

	t.Run("top-level object decodes to itself", func(t *testing.T) {
		params, err := p.Parse([]byte(`{"name":"widget","count":2}`))
		require.NoError(t, err)
		assert.Equal(t, Params{"name": "widget", "count": float64(2)}, params)
	})

	t.Run("non-object values are wrapped", func(t *testing.T) {
		params, err := p.Parse([]byte(`[1,2,3]`))
		require.NoError(t, err)
		assert.Equal(t, Params{JSONKey: []any{float64(1), float64(2), float64(3)}}, params)

		params, err = p.Parse([]byte(`"just a string"`))
		require.NoError(t, err)
		assert.Equal(t, Params{JSONKey: "just a string"}, params)
	})

	t.Run("invalid json is a parse error", func(t *testing.T) {
		_, err := p.Parse([]byte(`{"broken`))
		var perr *ParseError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestFormParse(t *testing.T) {
	p := NewForm()

	assert.True(t, p.Match("application/x-www-form-urlencoded"))
	assert.False(t, p.Match("multipart/form-data"))

	t.Run("single and repeated keys", func(t *testing.T) {
		params, err := p.Parse([]byte("name=widget&tag=a&tag=b"))
		require.NoError(t, err)
		assert.Equal(t, "widget", params["name"])
		assert.Equal(t, []string{"a", "b"}, params["tag"])
	})

	t.Run("invalid utf-8 is rejected", func(t *testing.T) {
		_, err := p.Parse([]byte{'a', '=', 0xff, 0xfe})
		var perr *ParseError
		assert.ErrorAs(t, err, &perr)
	})

	t.Run("invalid encoding is rejected", func(t *testing.T) {
		_, err := p.Parse([]byte("a=%zz"))
		var perr *ParseError
		assert.ErrorAs(t, err, &perr)
	})
}

func chain(t *testing.T, next http.Handler) http.Handler {
	t.Helper()
	mw := Middleware(Config{
		Read:   rawbody.ReadConfig{MaxBytes: 64},
		Logger: zerolog.Nop(),
	}, newJSONParser(t), NewForm())
	return mw(next)
}

func TestMiddlewareAttachesParamsAndRawBody(t *testing.T) {
	var (
		gotParams Params
		gotBody   []byte
	)
	h := chain(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParams, _ = ParamsFromContext(r.Context())
		gotBody, _ = rawbody.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	raw := `{"name":"widget"}`
	r := httptest.NewRequest("POST", "/v1/echo", strings.NewReader(raw))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Params{"name": "widget"}, gotParams)
	assert.Equal(t, []byte(raw), gotBody)
}

func TestMiddlewarePassesThroughUnmatchedContentType(t *testing.T) {
	var seenBody []byte
	h := chain(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The body stream must be untouched for content types no parser
		// handles.
		seenBody, _ = io.ReadAll(r.Body)
		_, annotated := rawbody.FromContext(r.Context())
		assert.False(t, annotated)
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("POST", "/v1/echo", strings.NewReader("<xml/>"))
	r.Header.Set("Content-Type", "application/xml")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("<xml/>"), seenBody)
}

func TestMiddlewareRejectsMalformedBody(t *testing.T) {
	h := chain(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest("POST", "/v1/echo", strings.NewReader(`{"broken`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiddlewareRejectsOversizedBody(t *testing.T) {
	h := chain(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest("POST", "/v1/echo", strings.NewReader(strings.Repeat("x", 128)))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
