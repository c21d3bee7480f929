package texts

import (
	"bytes"
	"embed"
	"encoding/xml"
	"fmt"
	"html"
	"path"
	"strings"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_texts.go -package mocks fedi_core/texts ITexts

//go:embed snippets
var fs embed.FS

// ITexts serves embedded response templates, such as the host-meta XRD.
type ITexts interface {
	Get(id string) string
	// WithVals fills {{name}} placeholders, escaping values for the snippet's markup.
	WithVals(id string, vals map[string]string) string
}

func NewTexts() ITexts {
	return &texts{}
}

type texts struct {
}

// Escapers by snippet extension. Snippets of any other kind get values verbatim.
var escapers = map[string]func(string) string{
	".html": html.EscapeString,
	".xml":  escapeXml,
}

func escapeXml(val string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(val))
	return buf.String()
}

func (t *texts) Get(id string) string {
	fn := fmt.Sprintf("snippets/%s", id)
	data, err := fs.ReadFile(fn)
	if err != nil {
		return ""
	}
	return string(data)
}

func (t *texts) WithVals(id string, vals map[string]string) string {
	res := t.Get(id)
	escape := escapers[path.Ext(id)]
	for ph, val := range vals {
		if escape != nil {
			val = escape(val)
		}
		res = strings.ReplaceAll(res, "{{"+ph+"}}", val)
	}
	return res
}
