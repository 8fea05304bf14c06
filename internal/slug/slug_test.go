package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	cases := map[string]string{
		"Test News":                            "test-news",
		"  Berita Terkini: Banjir di Jakarta!": "berita-terkini-banjir-di-jakarta",
		"Café Olé à Bandung":                   "cafe-ole-a-bandung",
		"2025 -- Pemilu   Raya":                "2025-pemilu-raya",
		"!!!":                                  "",
		"Sepak_Bola  Futsal":                   "sepak-bola-futsal",
		"Cafe\u0301 Baru":                      "cafe-baru",
	}
	for in, want := range cases {
		assert.Equal(t, want, Make(in), in)
	}
}

func TestMake_TruncatesWithoutTrailingHyphen(t *testing.T) {
	got := Make(strings.Repeat("ab ", 60))
	assert.LessOrEqual(t, len(got), maxLength)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "test-news", WithSuffix("test-news", 0))
	assert.Equal(t, "test-news-1", WithSuffix("test-news", 1))
	assert.Equal(t, "test-news-12", WithSuffix("test-news", 12))
}

func TestMake_OutputAlwaysValidates(t *testing.T) {
	for _, title := range []string{"Test News", "Sepak_Bola -- Futsal", "Ëkonomi Ñasional 2025", "Olahraga@Pagi"} {
		assert.NoError(t, Validate(Make(title)), title)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("test-news-1"))
	assert.ErrorIs(t, Validate(""), ErrInvalid)
	assert.ErrorIs(t, Validate("Test News"), ErrInvalid)
	assert.ErrorIs(t, Validate("double--hyphen"), ErrInvalid)
	assert.ErrorIs(t, Validate("-leading"), ErrInvalid)
	assert.ErrorIs(t, Validate("under_score"), ErrInvalid)
}
