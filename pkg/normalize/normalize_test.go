package normalize_test

import (
	"testing"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/normalize"
	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"<p>Senior <b>Engineer</b></p>", "Senior Engineer"},
		{"line\none\n\ttwo", "line one two"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalize.CleanText(tc.in), tc.in)
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "jane@acme.io", normalize.Email("  Jane@Acme.IO "))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "acme.io", normalize.Domain("https://www.Acme.io/"))
	assert.Equal(t, "acme.io", normalize.Domain("acme.io"))
}

func TestURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"acme.io/about", "https://acme.io/about"},
		{"http://Acme.io/About", "https://acme.io/About"},
		{"https://acme.io/p?utm_source=x&utm_medium=y&id=7", "https://acme.io/p?id=7"},
		{"https://acme.io/p?fbclid=abc", "https://acme.io/p"},
		{"https://acme.io/docs#intro", "https://acme.io/docs"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalize.URL(tc.in), tc.in)
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "Jane Doe", normalize.Name("jane doe"))
	// Mixed case survives so acronyms are not mangled.
	assert.Equal(t, "IBM", normalize.Name("IBM"))
	assert.Equal(t, "McDonald", normalize.Name("McDonald"))
}

func TestRecord(t *testing.T) {
	in := map[string]any{
		"email":   " A@B.com ",
		"website": "acme.io?utm_campaign=q3",
		"domain":  "https://www.acme.io",
		"name":    "jane doe",
		"title":   "<b>VP  Sales</b>",
		"years":   float64(7),
	}
	out := normalize.Record(in)

	assert.Equal(t, "a@b.com", out["email"])
	assert.Equal(t, "https://acme.io", out["website"])
	assert.Equal(t, "acme.io", out["domain"])
	assert.Equal(t, "Jane Doe", out["name"])
	assert.Equal(t, "VP Sales", out["title"])
	assert.Equal(t, float64(7), out["years"])

	// Input map is not mutated.
	assert.Equal(t, " A@B.com ", in["email"])
}
