package gateway

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrMalformedResponse is returned when a processor response cannot be parsed
var ErrMalformedResponse = errors.New("malformed gateway response")

// Field is one name/value pair of an outbound request
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered list of request fields. Several processors
// require fields in a fixed order, so a map is not enough.
type Fields []Field

// Add appends a field
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Get returns the first value for name
func (f Fields) Get(name string) string {
	for _, field := range f {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

// Map returns the fields as a map; later duplicates are ignored
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, field := range f {
		if _, ok := m[field.Name]; !ok {
			m[field.Name] = field.Value
		}
	}
	return m
}

// Encode returns the fields URL-encoded in order
func (f Fields) Encode() string {
	var sb strings.Builder
	for i, field := range f {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(field.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(field.Value))
	}
	return sb.String()
}

// EncodeLengthTagged returns NAME[len]=value pairs joined with '&'. The
// length is the byte length of the value, so values may contain '&' and '='.
func (f Fields) EncodeLengthTagged() string {
	var sb strings.Builder
	for i, field := range f {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(field.Name)
		sb.WriteByte('[')
		sb.WriteString(strconv.Itoa(len(field.Value)))
		sb.WriteString("]=")
		sb.WriteString(field.Value)
	}
	return sb.String()
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlDocument struct {
	XMLName xml.Name
	Fields  []xmlField
}

// EncodeXML renders the fields as child elements of root, in order
func (f Fields) EncodeXML(root string) (string, error) {
	doc := xmlDocument{XMLName: xml.Name{Local: root}}
	for _, field := range f {
		doc.Fields = append(doc.Fields, xmlField{XMLName: xml.Name{Local: field.Name}, Value: field.Value})
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s request: %w", root, err)
	}
	return string(out), nil
}

type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// ParseXML flattens the immediate children of the document root into a map
// of element name to trimmed text. The first occurrence of a name wins.
func ParseXML(raw string) (map[string]string, error) {
	_, out, err := ParseXMLRoot(raw)
	return out, err
}

// ParseXMLRoot returns the root element name along with the flattened children
func ParseXMLRoot(raw string) (string, map[string]string, error) {
	var root xmlNode
	decoder := xml.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	decoder.CharsetReader = charsetReader
	if err := decoder.Decode(&root); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make(map[string]string, len(root.Nodes))
	for _, node := range root.Nodes {
		if _, ok := out[node.XMLName.Local]; !ok {
			out[node.XMLName.Local] = strings.TrimSpace(node.Content)
		}
	}
	return root.XMLName.Local, out, nil
}

// charsetReader decodes responses declared in a legacy encoding such as
// ISO-8859-1
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// ParseNVP splits a raw name/value response on '&' and then on the first '='.
// Values are taken literally.
func ParseNVP(raw string) map[string]string {
	return splitPairs(strings.TrimSpace(raw), false)
}

// ParseQuery is ParseNVP for URL-encoded responses. Values that fail to
// decode are kept as received.
func ParseQuery(raw string) map[string]string {
	return splitPairs(strings.TrimSpace(raw), true)
}

func splitPairs(raw string, unescape bool) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if unescape {
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if v, err := url.QueryUnescape(value); err == nil {
				value = v
			}
		}
		if _, ok := out[key]; !ok {
			out[key] = value
		}
	}
	return out
}

// formatAmount renders an amount with two decimal places
func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// parseAmount reads a processor amount; unparsable values read as zero
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
