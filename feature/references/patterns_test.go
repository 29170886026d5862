package references

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParser(t *testing.T) *Parser {
	t.Helper()
	patterns, err := CompilePatterns(DefaultPatterns)
	require.NoError(t, err)
	return NewParser(patterns)
}

func TestParser_Parse(t *testing.T) {
	p := defaultParser(t)

	tests := []struct {
		name   string
		raw    string
		bucket string
		object string
		ok     bool
	}{
		{
			name:   "download url",
			raw:    "https://firebasestorage.googleapis.com/v0/b/app.appspot.com/o/photos%2Fa%20b.jpg?alt=media&token=abc",
			bucket: "app.appspot.com",
			object: "photos/a b.jpg",
			ok:     true,
		},
		{
			name:   "direct url",
			raw:    "https://storage.googleapis.com/app.appspot.com/chat_files/c1/report%281%29.pdf",
			bucket: "app.appspot.com",
			object: "chat_files/c1/report(1).pdf",
			ok:     true,
		},
		{
			name:   "signed url",
			raw:    "https://storage.googleapis.com/bkt/user_photos/u1.png?X-Goog-Algorithm=GOOG4-RSA-SHA256&X-Goog-Signature=ff",
			bucket: "bkt",
			object: "user_photos/u1.png",
			ok:     true,
		},
		{
			name:   "virtual host url",
			raw:    "https://bkt.storage.googleapis.com/photos/x.jpg",
			bucket: "bkt",
			object: "photos/x.jpg",
			ok:     true,
		},
		{
			name:   "gs location",
			raw:    "gs://bkt/photos/y.jpg",
			bucket: "bkt",
			object: "photos/y.jpg",
			ok:     true,
		},
		{name: "unknown host", raw: "https://cdn.example.com/photos/a.jpg"},
		{name: "bad escape", raw: "https://storage.googleapis.com/bkt/photos/%zz.jpg"},
		{name: "not a url", raw: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, ok := p.Parse(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}

func TestCompilePatterns_RequiresGroups(t *testing.T) {
	_, err := CompilePatterns([]string{`^https://x/(?P<object>.+)`})
	assert.Error(t, err)

	_, err = CompilePatterns([]string{`(`})
	assert.Error(t, err)
}

func TestLooksLikeURL(t *testing.T) {
	assert.True(t, LooksLikeURL("https://a/b"))
	assert.True(t, LooksLikeURL("gs://a/b"))
	assert.False(t, LooksLikeURL("photos/a.jpg"))
}
