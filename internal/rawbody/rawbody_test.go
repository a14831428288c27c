package rawbody

import (
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestResolveReadsAndCaches(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", strings.NewReader("hello body"))
	w := httptest.NewRecorder()

	body, r, err := Resolve(w, r, ReadConfig{MaxBytes: 1024})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello body"), body)

	cached, ok := FromContext(r.Context())
	require.True(t, ok)
	assert.Equal(t, []byte("hello body"), cached)

	// r.Body is restored so a later stage sees the same bytes.
	restored, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello body"), restored)
}

func TestResolveReturnsCacheWithoutTouchingTransport(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", strings.NewReader("first read"))
	w := httptest.NewRecorder()

	body, r, err := Resolve(w, r, ReadConfig{})
	require.NoError(t, err)

	// A second resolve must come from the cache, so a broken transport
	// stream must not matter.
	r.Body = io.NopCloser(&failingReader{err: errors.New("stream gone")})

	again, r, err := Resolve(w, r, ReadConfig{})
	require.NoError(t, err)
	assert.Equal(t, body, again)

	cached, ok := FromContext(r.Context())
	require.True(t, ok)
	assert.Equal(t, body, cached)
}

func TestResolveTooLarge(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", strings.NewReader("0123456789"))
	w := httptest.NewRecorder()

	_, r, err := Resolve(w, r, ReadConfig{MaxBytes: 4})
	require.Error(t, err)

	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(4), tooLarge.Limit)
	assert.Equal(t, []byte("0123"), tooLarge.Partial)

	// A failed read leaves no annotation behind.
	_, ok := FromContext(r.Context())
	assert.False(t, ok)
}

func TestResolveClassifiesTimeout(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", &failingReader{err: os.ErrDeadlineExceeded})
	w := httptest.NewRecorder()

	_, _, err := Resolve(w, r, ReadConfig{MaxBytes: 1024})
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestResolveClassifiesMalformed(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", &failingReader{err: errors.New("unexpected EOF")})
	w := httptest.NewRecorder()

	_, _, err := Resolve(w, r, ReadConfig{MaxBytes: 1024})
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestWithBodyNeverOverwrites(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	r = WithBody(r, []byte("first"))
	r = WithBody(r, []byte("second"))

	cached, ok := FromContext(r.Context())
	require.True(t, ok)
	assert.Equal(t, []byte("first"), cached)
}

func TestFromContextAbsent(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok := FromContext(r.Context())
	assert.False(t, ok)
}
