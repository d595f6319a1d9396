package pkpass

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TextAlignment values for pass fields
type TextAlignment string

const (
	AlignLeft    TextAlignment = "PKTextAlignmentLeft"
	AlignCenter  TextAlignment = "PKTextAlignmentCenter"
	AlignRight   TextAlignment = "PKTextAlignmentRight"
	AlignNatural TextAlignment = "PKTextAlignmentNatural"
)

// Barcode formats
const (
	BarcodeQR      = "PKBarcodeFormatQR"
	BarcodePDF417  = "PKBarcodeFormatPDF417"
	BarcodeAztec   = "PKBarcodeFormatAztec"
	BarcodeCode128 = "PKBarcodeFormatCode128"
)

// field groups inside the style dictionary
const (
	headerFields    = "headerFields"
	primaryFields   = "primaryFields"
	secondaryFields = "secondaryFields"
	auxiliaryFields = "auxiliaryFields"
	backFields      = "backFields"
)

var fieldGroups = []string{headerFields, primaryFields, secondaryFields, auxiliaryFields, backFields}

// Field is a pass field dictionary.
type Field struct {
	Key           string        `json:"key"`
	Label         string        `json:"label,omitempty"`
	Value         string        `json:"value"`
	TextAlignment TextAlignment `json:"textAlignment,omitempty"`
}

// Barcode is a pass barcode dictionary.
type Barcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

// Pass is a pass under construction. It is not safe for concurrent use.
type Pass struct {
	style string
	doc   map[string]any
	files map[string][]byte
}

func (p *Pass) AddHeaderField(f Field)    { p.addField(headerFields, f) }
func (p *Pass) AddPrimaryField(f Field)   { p.addField(primaryFields, f) }
func (p *Pass) AddSecondaryField(f Field) { p.addField(secondaryFields, f) }
func (p *Pass) AddAuxiliaryField(f Field) { p.addField(auxiliaryFields, f) }
func (p *Pass) AddBackField(f Field)      { p.addField(backFields, f) }

func (p *Pass) addField(group string, f Field) {
	styleDict := p.doc[p.style].(map[string]any)
	existing, _ := styleDict[group].([]any)
	styleDict[group] = append(existing, fieldMap(f))
}

// SetBarcode sets the barcode, written to both the barcodes array and the barcode key
// read by wallets before iOS 9.
func (p *Pass) SetBarcode(b Barcode) {
	m := map[string]any{
		"format":          b.Format,
		"message":         b.Message,
		"messageEncoding": b.MessageEncoding,
	}
	if b.AltText != "" {
		m["altText"] = b.AltText
	}
	p.doc["barcodes"] = []any{m}
	p.doc["barcode"] = deepCopy(m)
}

// AddFile adds or replaces a file in the pass (e.g. "thumbnail@2x.png").
func (p *Pass) AddFile(name string, data []byte) error {
	if !validFileName(name) {
		return NewValidationError(fmt.Sprintf("invalid pass file name %q", name))
	}
	if reservedFiles[name] {
		return NewValidationError(fmt.Sprintf("%s is generated and cannot be added", name))
	}
	if len(data) == 0 {
		return NewValidationError(fmt.Sprintf("%s is empty", name))
	}
	p.files[name] = data
	return nil
}

// SerialNumber returns the pass serial number.
func (p *Pass) SerialNumber() string {
	s, _ := p.doc["serialNumber"].(string)
	return s
}

// Fields returns the fields of one group ("primaryFields", "backFields", ...) as written to pass.json.
func (p *Pass) Fields(group string) []map[string]any {
	styleDict := p.doc[p.style].(map[string]any)
	items, _ := styleDict[group].([]any)
	fields := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			fields = append(fields, m)
		}
	}
	return fields
}

// PassJSON returns the canonical pass.json.
func (p *Pass) PassJSON() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(p.doc)
	if err != nil {
		return nil, WrapInternalError(err, "failed to marshal pass.json")
	}

	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return nil, WrapInternalError(err, "failed to canonicalize pass.json")
	}
	return canonical, nil
}

// Serialize produces the signed .pkpass archive.
func (p *Pass) Serialize(identity *SigningIdentity) ([]byte, error) {
	if identity == nil {
		return nil, NewInternalError("no signing identity")
	}

	passJSON, err := p.PassJSON()
	if err != nil {
		return nil, err
	}

	entries := make(map[string][]byte, len(p.files)+3)
	for name, data := range p.files {
		entries[name] = data
	}
	entries["pass.json"] = passJSON

	manifest := BuildManifest(entries)
	manifestJSON, err := manifest.Marshal()
	if err != nil {
		return nil, err
	}

	signature, err := SignManifest(manifestJSON, identity)
	if err != nil {
		return nil, err
	}

	entries["manifest.json"] = manifestJSON
	entries["signature"] = signature

	return WriteArchive(entries)
}

// validate checks the pass contents required by wallet clients
func (p *Pass) validate() error {
	for _, key := range []string{"formatVersion", "passTypeIdentifier", "teamIdentifier", "organizationName", "description", "serialNumber"} {
		v, ok := p.doc[key]
		if !ok || v == nil || v == "" {
			return NewValidationError(fmt.Sprintf("pass.json is missing %s", key))
		}
	}

	seen := make(map[string]string)
	for _, group := range fieldGroups {
		for _, f := range p.Fields(group) {
			key, _ := f["key"].(string)
			if key == "" {
				return NewValidationError(fmt.Sprintf("%s contains a field without a key", group))
			}
			if prev, dup := seen[key]; dup {
				return NewValidationError(fmt.Sprintf("field key %q is used in both %s and %s", key, prev, group))
			}
			seen[key] = group
		}
	}
	return nil
}

// FileNames returns the names of the files that will be packaged with pass.json, sorted.
func (p *Pass) FileNames() []string {
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldMap(f Field) map[string]any {
	m := map[string]any{
		"key":   f.Key,
		"value": f.Value,
	}
	if f.Label != "" {
		m["label"] = f.Label
	}
	if f.TextAlignment != "" {
		m["textAlignment"] = string(f.TextAlignment)
	}
	return m
}
