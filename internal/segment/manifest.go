package segment

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/keys"
	"github.com/roach88/plos/internal/merkle"
	"github.com/roach88/plos/internal/value"
)

// Version is the only manifest version this package reads or writes.
const Version = "0.2.1"

// HashScheme is the digest descriptor recorded in manifests.
const HashScheme = "sha-256"

// Algo names the algorithms a manifest was produced with.
type Algo struct {
	Canonical string `json:"canonical"`
	Hash      string `json:"hash"`
	Merkle    string `json:"merkle"`
	Sig       string `json:"sig"`
}

// SupportedAlgo is the algorithm set of Version.
var SupportedAlgo = Algo{
	Canonical: canonical.Scheme,
	Hash:      HashScheme,
	Merkle:    merkle.Scheme,
	Sig:       keys.Algorithm,
}

// Manifest describes one sealed segment.
type Manifest struct {
	Version         string  `json:"version"`
	SegmentID       string  `json:"segmentId"`
	CreatedAt       int64   `json:"createdAt"`
	Origin          string  `json:"origin"`
	KeyID           string  `json:"keyId"`
	Events          int64   `json:"events"`
	FirstEventID    *string `json:"firstEventId"`
	LastEventID     *string `json:"lastEventId"`
	Root            string  `json:"root"`
	PrevSegmentRoot *string `json:"prevSegmentRoot"`
	Algo            Algo    `json:"algo"`
	Signature       string  `json:"signature"`

	// doc is the document the manifest was parsed from, if any.
	doc value.Object
}

// ParseManifest decodes a manifest file. Only JSON syntax errors and
// non-object documents fail; field problems are left to ValidateShape so
// they can be reported individually.
func ParseManifest(data []byte) (Manifest, error) {
	v, err := value.Parse(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	doc, ok := v.(value.Object)
	if !ok {
		return Manifest{}, fmt.Errorf("parse manifest: expected object, got %T", v)
	}

	m := Manifest{doc: doc}
	m.Version = str(doc["version"])
	m.SegmentID = str(doc["segmentId"])
	m.Origin = str(doc["origin"])
	m.KeyID = str(doc["keyId"])
	m.Root = str(doc["root"])
	m.Signature = str(doc["signature"])
	m.CreatedAt = num(doc["createdAt"])
	m.Events = num(doc["events"])
	m.FirstEventID = optStr(doc["firstEventId"])
	m.LastEventID = optStr(doc["lastEventId"])
	m.PrevSegmentRoot = optStr(doc["prevSegmentRoot"])
	if algo, ok := doc["algo"].(value.Object); ok {
		m.Algo = Algo{
			Canonical: str(algo["canonical"]),
			Hash:      str(algo["hash"]),
			Merkle:    str(algo["merkle"]),
			Sig:       str(algo["sig"]),
		}
	}
	return m, nil
}

// Document returns the manifest as a JSON document: the parsed file when
// the manifest was read from disk, otherwise one built from its fields.
func (m Manifest) Document() (value.Object, error) {
	if m.doc != nil {
		return m.doc, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	v, err := value.Parse(data)
	if err != nil {
		return nil, err
	}
	return v.(value.Object), nil
}

// SigningMessage returns the bytes the signature covers: the canonical form
// of the manifest document with the signature field set to "".
func (m Manifest) SigningMessage() ([]byte, error) {
	if m.doc == nil {
		unsigned := m
		unsigned.Signature = ""
		return canonical.MarshalAny(unsigned)
	}

	unsigned := m.doc.Clone()
	unsigned["signature"] = value.String("")
	return canonical.Marshal(unsigned)
}

// Encode returns the on-disk form: indented JSON with a trailing newline.
func (m Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Prev returns PrevSegmentRoot, or "" for the first segment.
func (m Manifest) Prev() string {
	if m.PrevSegmentRoot == nil {
		return ""
	}
	return *m.PrevSegmentRoot
}

func str(v value.Value) string {
	s, _ := v.(value.String)
	return string(s)
}

func num(v value.Value) int64 {
	n, _ := v.(value.Number)
	return int64(n)
}

func optStr(v value.Value) *string {
	s, ok := v.(value.String)
	if !ok {
		return nil
	}
	out := string(s)
	return &out
}
