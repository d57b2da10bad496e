package devserver

import (
	"bytes"
	_ "embed"
)

//go:embed client.html
var clientSnippet []byte

//go:embed client.js
var clientScript []byte

var closingBody = []byte("</body>")

// Inject inserts the reload client snippet before the last closing body tag,
// or appends it when the document has none.
func Inject(html []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(html), closingBody)
	if idx < 0 {
		return append(append([]byte(nil), html...), clientSnippet...)
	}
	out := make([]byte, 0, len(html)+len(clientSnippet))
	out = append(out, html[:idx]...)
	out = append(out, clientSnippet...)
	return append(out, html[idx:]...)
}
