package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessForm_HTMLEscapes(t *testing.T) {
	form := NewPostForm("https://www.paypal.com/cgi-bin/webscr")
	form.Add("item_name", `Invoice "100" <b>`)
	form.AddIfSet("empty", "")

	html, err := form.HTML()
	require.NoError(t, err)

	assert.Contains(t, html, `action="https://www.paypal.com/cgi-bin/webscr"`)
	assert.Contains(t, html, `name="item_name"`)
	assert.NotContains(t, html, "<b>")
	assert.NotContains(t, html, `name="empty"`)
	assert.Contains(t, html, `document.forms["gateway_process"].submit()`)
}

func TestProcessForm_Redirect(t *testing.T) {
	form := NewRedirect("https://bitpay.com/invoice?id=abc")
	form.Add("v", "1")

	assert.Equal(t, "https://bitpay.com/invoice?id=abc&v=1", form.URL())

	html, err := form.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, `href="https://bitpay.com/invoice?id=abc&amp;v=1"`)

	resp, err := form.Response()
	require.NoError(t, err)
	assert.Equal(t, "GET", resp.Method)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "v", resp.Fields[0].Name)
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "", withQuery("", map[string]string{"client_id": "5"}))
	assert.Equal(t, "https://x.test/cb?client_id=5&tenant_id=t1",
		withQuery("https://x.test/cb?tenant_id=t1", map[string]string{"client_id": "5", "empty": ""}))
}
