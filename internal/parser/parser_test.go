package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("doc.md"))
	assert.True(t, IsSupported("DOC.PDF"))
	assert.True(t, IsSupported("page.html"))
	assert.False(t, IsSupported("archive.zip"))
	assert.False(t, IsSupported("noextension"))
}

func TestReadFilePlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text body"), 0o644))

	content, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "plain text body", content)
}

func TestReadFileUnsupported(t *testing.T) {
	_, err := ReadFile("something.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestReadFileHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	src := `<html><head><title>T</title><script>var x = 1;</script></head>
<body><nav>menu</nav><p>visible paragraph</p><footer>fine print</footer></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	content, err := ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, content, "visible paragraph")
	assert.NotContains(t, content, "var x")
	assert.NotContains(t, content, "menu")
	assert.NotContains(t, content, "fine print")
}

func TestExtractHTMLTextPrefersMain(t *testing.T) {
	src := `<html><body><div>sidebar junk</div><main><p>the real content</p></main></body></html>`

	content, err := ExtractHTMLText(src)
	require.NoError(t, err)
	assert.Contains(t, content, "the real content")
	assert.NotContains(t, content, "sidebar junk")
}

func TestExtractHTMLTitle(t *testing.T) {
	assert.Equal(t, "Employee Handbook",
		ExtractHTMLTitle(`<html><head><title> Employee Handbook </title></head><body></body></html>`))
	assert.Equal(t, "", ExtractHTMLTitle(`<html><body>no title</body></html>`))
}
