package apticket

import (
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
)

// manifest private tags
const (
	tagMANB = 1296125506 // MANB
	tagMANP = 1296125520 // MANP
	tagTstp = 1953723504 // tstp
)

// CryptexNonceHashName is the property holding the cryptex nonce hash
const CryptexNonceHashName = "cnch"

// Property is one IM4M property. Value is an int64, bool, string or []byte.
type Property struct {
	Name  string
	Value any
}

func (p Property) String() string {
	switch v := p.Value.(type) {
	case []byte:
		return fmt.Sprintf("%s: %x", p.Name, v)
	case time.Time:
		return fmt.Sprintf("%s: %s", p.Name, v.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s: %v", p.Name, v)
	}
}

// Image is an image descriptor of the manifest body
type Image struct {
	Name       string
	Properties []Property
}

// Ticket is a parsed IM4M apticket
type Ticket struct {
	Version    int
	Properties []Property
	Images     []Image
}

type im4m struct {
	Name      string
	Version   int
	Body      asn1.RawValue `asn1:"set"`
	Signature []byte        `asn1:"optional"`
	CertChain asn1.RawValue `asn1:"optional"`
}

// named is a SEQUENCE of a four character name and a SET
type named struct {
	Name string
	Set  asn1.RawValue `asn1:"set"`
}

// Open reads and parses the apticket at path
func Open(path string) (*Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apticket: %w", err)
	}
	return Parse(data)
}

// Parse parses a DER encoded IM4M manifest
func Parse(data []byte) (*Ticket, error) {
	var m im4m
	rest, err := asn1.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected trailing data in manifest")
	}
	if m.Name != "IM4M" {
		return nil, fmt.Errorf("invalid manifest magic: expected 'IM4M', got '%s'", m.Name)
	}

	t := &Ticket{Version: m.Version}

	for _, entry := range privateEntries(m.Body.Bytes) {
		if entry.Tag != tagMANB {
			log.Debugf("skipping top-level entry %s", fourCC(entry.Tag))
			continue
		}
		var manb named
		if _, err := asn1.Unmarshal(entry.Bytes, &manb); err != nil {
			return nil, fmt.Errorf("failed to parse MANB: %w", err)
		}
		if manb.Name != "MANB" {
			return nil, fmt.Errorf("expected MANB, got %s", manb.Name)
		}
		for _, e := range privateEntries(manb.Set.Bytes) {
			var desc named
			if _, err := asn1.Unmarshal(e.Bytes, &desc); err != nil {
				continue
			}
			props := parseProperties(desc.Set.Bytes)
			if e.Tag == tagMANP {
				t.Properties = props
			} else {
				t.Images = append(t.Images, Image{Name: desc.Name, Properties: props})
			}
		}
	}

	return t, nil
}

// privateEntries returns the private class entries of a DER SET body
func privateEntries(data []byte) []asn1.RawValue {
	var entries []asn1.RawValue
	for len(data) > 0 {
		var entry asn1.RawValue
		rest, err := asn1.Unmarshal(data, &entry)
		if err != nil {
			break
		}
		if entry.Class == asn1.ClassPrivate {
			entries = append(entries, entry)
		}
		data = rest
	}
	return entries
}

func parseProperties(data []byte) []Property {
	var props []Property
	for _, entry := range privateEntries(data) {
		var prop struct {
			Name  string
			Value asn1.RawValue
		}
		if _, err := asn1.Unmarshal(entry.Bytes, &prop); err != nil {
			continue
		}
		if v := propertyValue(prop.Value, entry.Tag); v != nil {
			props = append(props, Property{Name: prop.Name, Value: v})
		}
	}
	return props
}

func propertyValue(raw asn1.RawValue, tag int) any {
	switch raw.Tag {
	case asn1.TagInteger:
		var n int64
		if _, err := asn1.Unmarshal(raw.FullBytes, &n); err != nil {
			return raw.Bytes
		}
		if tag == tagTstp {
			return time.Unix(n, 0).UTC()
		}
		return n
	case asn1.TagBoolean:
		var b bool
		if _, err := asn1.Unmarshal(raw.FullBytes, &b); err != nil {
			return nil
		}
		return b
	case asn1.TagIA5String, asn1.TagUTF8String, asn1.TagPrintableString:
		return string(raw.Bytes)
	default:
		return raw.Bytes
	}
}

func fourCC(tag int) string {
	return string([]byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)})
}

// Property returns the manifest property called name
func (t *Ticket) Property(name string) (any, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// CryptexNonceHash returns the cnch property as hex
func (t *Ticket) CryptexNonceHash() (string, error) {
	v, ok := t.Property(CryptexNonceHashName)
	if !ok {
		return "", fmt.Errorf("apticket has no %s property", CryptexNonceHashName)
	}
	b, ok := v.([]byte)
	if !ok {
		return "", fmt.Errorf("apticket %s property is %T, want bytes", CryptexNonceHashName, v)
	}
	return hex.EncodeToString(b), nil
}

func (t *Ticket) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "IM4M (version %d)\n", t.Version)
	props := append([]Property(nil), t.Properties...)
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	for _, p := range props {
		fmt.Fprintf(&sb, "  %s\n", p)
	}
	for _, img := range t.Images {
		fmt.Fprintf(&sb, "  %s\n", img.Name)
		for _, p := range img.Properties {
			fmt.Fprintf(&sb, "    %s\n", p)
		}
	}
	return sb.String()
}
