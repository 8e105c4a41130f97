package source

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/backgroundcheck/breachmon/internal/hasher"
	"github.com/backgroundcheck/breachmon/internal/model"
)

// credentialPatterns recognize exposed identifiers inside dump text.
// Paste dumps are overwhelmingly "email:password" lines, so the email
// pattern does most of the work; phone numbers show up in SIM-swap and
// doxxing dumps.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+[1-9][0-9]{7,14}`)
)

// extractor turns fetched HTML into hashed disclosures.
type extractor struct {
	hasher    *hasher.Hasher
	severity  int
	dataTypes []string
}

// extract parses the page, walks its text nodes, and hashes every
// credential-shaped token found. Script and style subtrees are skipped
// since their text is code, not dump content. Duplicate credentials
// within one page collapse to a single disclosure.
func (e *extractor) extract(r io.Reader) ([]model.RawDisclosure, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page := text.String()
	seen := make(map[string]struct{})
	var out []model.RawDisclosure

	for _, raw := range append(emailPattern.FindAllString(page, -1), phonePattern.FindAllString(page, -1)...) {
		fullHash, _, err := e.hasher.Hash(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[fullHash]; dup {
			continue
		}
		seen[fullHash] = struct{}{}
		out = append(out, model.RawDisclosure{
			BreachHash:    fullHash,
			DataTypes:     e.dataTypes,
			SeverityScore: e.severity,
		})
	}
	return out, nil
}
