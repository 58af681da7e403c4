// Package templates loads the ordered template catalog.
//
// A catalog is read once at startup and shared read-only by every request.
// Its order is the order of rendered output. Template and mask rasters are
// decoded lazily, once per template, and cached for the process lifetime.
package templates

import (
	"bytes"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

// Format selects the catalog decoder.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Spec is one template definition with its asset paths already resolved.
type Spec struct {
	Name         string
	Size         image.Point // required source size (w,h)
	Position     image.Point // placement offset inside the template
	TemplatePath string
	MaskPath     string
}

// record is the on-disk shape. The misspelled templat_addr key is part of
// the established file format.
type record struct {
	Size     []int  `json:"source_photo_size" yaml:"source_photo_size" toml:"source_photo_size"`
	Position []int  `json:"source_photo_position" yaml:"source_photo_position" toml:"source_photo_position"`
	Template string `json:"templat_addr" yaml:"templat_addr" toml:"templat_addr"`
	Mask     string `json:"mask_addr" yaml:"mask_addr" toml:"mask_addr"`
}

type tomlCatalog struct {
	Templates []record `toml:"template"`
}

// Assets are the decoded rasters of one template. They must not be modified.
type Assets struct {
	Template image.Image
	Mask     image.Image
}

type entry struct {
	spec   Spec
	mu     sync.Mutex
	assets *Assets
}

// Catalog is the immutable, ordered list of templates.
type Catalog struct {
	entries []*entry
}

// FormatFromPath picks a decoder from the file extension; unknown
// extensions are read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Load reads the catalog at path and resolves asset paths against prefix.
func Load(path, prefix string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeConfig, err, "read template catalog %s", path)
	}
	return Decode(data, FormatFromPath(path), prefix)
}

// Decode parses a catalog document. Any malformed or incomplete record
// fails the whole catalog with a CONFIG error.
func Decode(data []byte, format Format, prefix string) (*Catalog, error) {
	var records []record
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &records)
	case FormatTOML:
		var doc tomlCatalog
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&doc)
		records = doc.Templates
	default:
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeConfig, err, "decode %s template catalog", format)
	}
	if len(records) == 0 {
		return nil, apperr.New(apperr.ErrCodeConfig, "template catalog is empty")
	}

	c := &Catalog{entries: make([]*entry, 0, len(records))}
	for i, r := range records {
		spec, err := r.toSpec(prefix)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrCodeConfig, err, "template %d", i)
		}
		c.entries = append(c.entries, &entry{spec: spec})
	}
	return c, nil
}

func (r record) toSpec(prefix string) (Spec, error) {
	if len(r.Size) != 2 {
		return Spec{}, apperr.New(apperr.ErrCodeConfig, "source_photo_size needs 2 values, got %d", len(r.Size))
	}
	if r.Size[0] <= 0 || r.Size[1] <= 0 {
		return Spec{}, apperr.New(apperr.ErrCodeConfig, "source_photo_size must be positive, got %v", r.Size)
	}
	if len(r.Position) != 2 {
		return Spec{}, apperr.New(apperr.ErrCodeConfig, "source_photo_position needs 2 values, got %d", len(r.Position))
	}
	if r.Position[0] < 0 || r.Position[1] < 0 {
		return Spec{}, apperr.New(apperr.ErrCodeConfig, "source_photo_position must not be negative, got %v", r.Position)
	}
	if strings.TrimSpace(r.Template) == "" {
		return Spec{}, apperr.New(apperr.ErrCodeConfig, "templat_addr is empty")
	}
	if strings.TrimSpace(r.Mask) == "" {
		return Spec{}, apperr.New(apperr.ErrCodeConfig, "mask_addr is empty")
	}
	return Spec{
		Name:         strings.TrimSuffix(filepath.Base(r.Template), filepath.Ext(r.Template)),
		Size:         image.Pt(r.Size[0], r.Size[1]),
		Position:     image.Pt(r.Position[0], r.Position[1]),
		TemplatePath: resolve(prefix, r.Template),
		MaskPath:     resolve(prefix, r.Mask),
	}, nil
}

func resolve(prefix, p string) string {
	if filepath.IsAbs(p) || prefix == "" {
		return p
	}
	return filepath.Join(prefix, p)
}

// Len is the number of templates; it never changes.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Spec returns the i-th template definition.
func (c *Catalog) Spec(i int) Spec {
	return c.entries[i].spec
}

// Specs returns a copy of all definitions in catalog order.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.spec
	}
	return out
}

// Assets returns the decoded template and mask of the i-th template,
// decoding them on first use. A failed load is not cached.
func (c *Catalog) Assets(i int) (*Assets, error) {
	e := c.entries[i]
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.assets != nil {
		return e.assets, nil
	}

	tmpl, err := imaging.Open(e.spec.TemplatePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeDecode, err, "open template %s", e.spec.TemplatePath)
	}
	mask, err := imaging.Open(e.spec.MaskPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeDecode, err, "open mask %s", e.spec.MaskPath)
	}
	e.assets = &Assets{Template: tmpl, Mask: mask}
	return e.assets, nil
}

// Preload decodes every template's assets, failing on the first
// unreadable one.
func (c *Catalog) Preload() error {
	for i := range c.entries {
		if _, err := c.Assets(i); err != nil {
			return err
		}
	}
	return nil
}
