package pkpass

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// Pass styles. A pass.json must contain exactly one of these keys.
const (
	StyleBoardingPass = "boardingPass"
	StyleCoupon       = "coupon"
	StyleEventTicket  = "eventTicket"
	StyleGeneric      = "generic"
	StyleStoreCard    = "storeCard"
)

var passStyles = []string{StyleBoardingPass, StyleCoupon, StyleEventTicket, StyleGeneric, StyleStoreCard}

// files generated during serialization, never taken from a model directory
var reservedFiles = map[string]bool{
	"pass.json":     true,
	"manifest.json": true,
	"signature":     true,
}

// maxTemplateFileBytes bounds each file read from a model directory
const maxTemplateFileBytes = 10 << 20

// Template is a pass model: the base pass.json plus the images and localisations shipped with it.
// A Template is read-only after loading and safe for concurrent use.
type Template struct {
	style    string
	passJSON map[string]any
	files    map[string][]byte
}

// LoadTemplate loads a .pass model directory from disk.
func LoadTemplate(dir string) (*Template, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, WrapTemplateError(err, fmt.Sprintf("failed to open model directory %s", dir))
	}
	if !info.IsDir() {
		return nil, NewTemplateError(fmt.Sprintf("model path %s is not a directory", dir))
	}
	return LoadTemplateFS(os.DirFS(dir))
}

// LoadTemplateFS loads a pass model from fsys.
// Hidden files and the generated manifest.json and signature are ignored.
func LoadTemplateFS(fsys fs.FS) (*Template, error) {
	raw, err := fs.ReadFile(fsys, "pass.json")
	if err != nil {
		return nil, WrapTemplateError(err, "failed to read pass.json")
	}

	var passJSON map[string]any
	if err := json.Unmarshal(raw, &passJSON); err != nil {
		return nil, WrapTemplateError(err, "pass.json is not a JSON object")
	}

	style, err := detectStyle(passJSON)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte)
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || reservedFiles[p] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxTemplateFileBytes {
			return fmt.Errorf("%s exceeds %d bytes", p, maxTemplateFileBytes)
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		files[p] = data
		return nil
	})
	if err != nil {
		return nil, WrapTemplateError(err, "failed to read model files")
	}

	if _, ok := files["icon.png"]; !ok {
		return nil, NewTemplateError("model has no icon.png")
	}

	return &Template{
		style:    style,
		passJSON: passJSON,
		files:    files,
	}, nil
}

// Style returns the pass style key of the template (e.g. "generic").
func (t *Template) Style() string { return t.style }

// Files returns the names of the files shipped with the template, sorted.
func (t *Template) Files() []string {
	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPass returns a pass based on the template with the given serial number and authentication token.
// The template itself is not modified.
func (t *Template) NewPass(serialNumber, authenticationToken string) *Pass {
	doc := deepCopy(t.passJSON).(map[string]any)
	doc["serialNumber"] = serialNumber
	if authenticationToken != "" {
		doc["authenticationToken"] = authenticationToken
	}

	files := make(map[string][]byte, len(t.files)+2)
	for name, data := range t.files {
		files[name] = data
	}

	return &Pass{
		style: t.style,
		doc:   doc,
		files: files,
	}
}

func detectStyle(passJSON map[string]any) (string, error) {
	var found []string
	for _, style := range passStyles {
		if _, ok := passJSON[style]; ok {
			found = append(found, style)
		}
	}

	switch len(found) {
	case 0:
		return "", NewTemplateError("pass.json has no pass style (expected one of " + strings.Join(passStyles, ", ") + ")")
	case 1:
		if _, ok := passJSON[found[0]].(map[string]any); !ok {
			return "", NewTemplateError(fmt.Sprintf("pass.json %s must be an object", found[0]))
		}
		return found[0], nil
	default:
		return "", NewTemplateError("pass.json has more than one pass style: " + strings.Join(found, ", "))
	}
}

// validFileName rejects names that would escape the archive root
func validFileName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	return path.Clean(name) == name && !strings.HasPrefix(name, "../") && name != ".."
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = deepCopy(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = deepCopy(item)
		}
		return s
	default:
		return val
	}
}
