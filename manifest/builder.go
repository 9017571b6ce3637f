// Package manifest assembles a IIIF Presentation v3 manifest from
// boilerplate, catalogue metadata, and the METS physical structure. It
// never emits items[]; canvases are synthesised downstream from
// paintedResources.
package manifest

import (
	"fmt"
	"strings"

	"github.com/digirati-co-uk/iiif-builder/mets"
	"github.com/digirati-co-uk/iiif-builder/preservation"
	"github.com/digirati-co-uk/iiif-builder/result"
)

// LangValues is a language-tag to values map, e.g. {"en": ["A Book"]}.
type LangValues map[string][]string

// MetadataEntry is one metadata[] entry.
type MetadataEntry struct {
	Label LangValues `json:"label"`
	Value LangValues `json:"value"`
}

// Homepage is the manifest's optional homepage entry.
type Homepage struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Format   string     `json:"format"`
	Language []string   `json:"language"`
	Label    LangValues `json:"label"`
}

// CanvasPainting is the canvas half of a PaintedResource.
type CanvasPainting struct {
	CanvasID    string     `json:"canvasId"`
	CanvasOrder int        `json:"canvasOrder"`
	Label       LangValues `json:"label"`
}

// Asset is the asset half of a PaintedResource.
type Asset struct {
	ID        string `json:"id"`
	MediaType string `json:"mediaType"`
	Space     string `json:"space"`
	Origin    string `json:"origin"`
}

// PaintedResource lets the IIIF cloud service synthesise a canvas from an
// asset without this worker enumerating items[].
type PaintedResource struct {
	CanvasPainting CanvasPainting `json:"canvasPainting"`
	Asset          Asset          `json:"asset"`
	Reingest       bool           `json:"reingest,omitempty"`
}

// Manifest is the in-memory IIIF Presentation v3 document this worker
// builds. It deliberately has no Items field.
type Manifest struct {
	Type             string            `json:"type"`
	Provider         []interface{}     `json:"provider"`
	Label            LangValues        `json:"label"`
	Metadata         []MetadataEntry   `json:"metadata,omitempty"`
	Rights           string            `json:"rights,omitempty"`
	Homepage         []Homepage        `json:"homepage,omitempty"`
	PublicID         string            `json:"publicId,omitempty"`
	PaintedResources []PaintedResource `json:"paintedResources"`
}

// boilerplate is the static Leeds University Library provider block every
// manifest is seeded with.
func boilerplate() Manifest {
	return Manifest{
		Type: "Manifest",
		Provider: []interface{}{
			map[string]interface{}{
				"id":   "https://www.leeds.ac.uk/",
				"type": "Agent",
				"label": map[string]interface{}{
					"en": []string{"University of Leeds"},
				},
				"homepage": []interface{}{
					map[string]interface{}{
						"id":       "https://library.leeds.ac.uk/",
						"type":     "Text",
						"label":    map[string]interface{}{"en": []string{"University of Leeds Library"}},
						"format":   "text/html",
						"language": []string{"en"},
					},
				},
				"logo": []interface{}{
					map[string]interface{}{
						"id":     "https://library.leeds.ac.uk/asset/logo.png",
						"type":   "Image",
						"format": "image/png",
					},
				},
			},
		},
		PaintedResources: []PaintedResource{},
	}
}

// metadataLanguage maps each recognised catalogue key to the fixed
// language tag its metadata[] entry must carry.
var metadataLanguage = map[string]string{
	"Shelfmark":     "none",
	"Object Number": "none",
	"Date":          "none",
	"Dimensions":    "none",
	"Credit Line":   "none",

	"Description": "en",
	"Notes":       "en",
	"Collections": "en",
	"Attribution": "en",
	"Medium":      "en",
	"Technique":   "en",
	"Support":     "en",
	"Creators":    "en",
}

var metadataKeyOrder = []string{
	"Shelfmark", "Object Number", "Date", "Description", "Dimensions", "Notes",
	"Collections", "Credit Line", "Attribution", "Medium", "Technique", "Support", "Creators",
}

// Builder assembles a manifest from a configured asset-space and canvas/
// asset prefixes supplied by the identity resolver.
type Builder struct{}

// New builds a Builder.
func New() *Builder {
	return &Builder{}
}

// Decorate is Phase A: it sets label and metadata[] from catalogue data on
// a fresh boilerplate manifest.
func (b *Builder) Decorate(data map[string]interface{}) Manifest {
	m := boilerplate()

	title := stringField(data, "Title")
	if title == "" {
		title = stringField(data, "title")
	}
	if title == "" {
		title = "[NO TITLE]"
	}
	m.Label = LangValues{"en": {title}}

	for _, key := range metadataKeyOrder {
		values := stringSliceField(data, key)
		if len(values) == 0 {
			continue
		}
		m.Metadata = append(m.Metadata, MetadataEntry{
			Label: LangValues{"en": {key}},
			Value: LangValues{metadataLanguage[key]: values},
		})
	}

	if rights := stringSliceField(data, "Rights"); len(rights) > 0 {
		m.Rights = rights[0]
	}

	if homepage := stringField(data, "Homepage"); homepage != "" {
		m.Homepage = []Homepage{{
			ID:       homepage,
			Type:     "Text",
			Format:   "text/html",
			Language: []string{"en"},
			Label:    LangValues{"en": {fmt.Sprintf("Homepage for %s", title)}},
		}}
	}

	return m
}

// AddPaintedResources is Phase B: it removes any pre-existing items[] (the
// manifest never had one to begin with — see Manifest's shape) and walks
// the METS physical tree depth-first, files before sub-directories,
// appending one PaintedResource per image file.
func (b *Builder) AddPaintedResources(
	m Manifest,
	tree *mets.WorkingDirectory,
	ag preservation.ArchivalGroup,
	canvasIDPrefix, assetPrefix, assetSpace string,
) result.Envelope[Manifest] {
	m.PaintedResources = []PaintedResource{}
	order := 0

	var err error
	walk(tree, func(f mets.File) {
		if err != nil {
			return
		}
		if !strings.HasPrefix(f.ContentType, "image") {
			return
		}

		storageFile, ok := ag.StorageMap[f.LocalPath]
		if !ok {
			err = fmt.Errorf("no storage map entry for %s", f.LocalPath)
			return
		}

		flattened := strings.ReplaceAll(f.LocalPath, "/", "_")
		m.PaintedResources = append(m.PaintedResources, PaintedResource{
			CanvasPainting: CanvasPainting{
				CanvasID:    canvasIDPrefix + flattened,
				CanvasOrder: order,
				Label:       LangValues{"en": {f.Name}},
			},
			Asset: Asset{
				ID:        assetPrefix + flattened,
				MediaType: f.ContentType,
				Space:     assetSpace,
				Origin:    fmt.Sprintf("%s/%s", ag.Origin, storageFile.FullPath),
			},
		})
		order++
	})

	if err != nil {
		return result.Err[Manifest](err.Error())
	}
	return result.Ok(m)
}

// walk visits files before sub-directories at each level, preserving
// sibling order, exactly as METS declared them.
func walk(dir *mets.WorkingDirectory, visit func(mets.File)) {
	if dir == nil {
		return
	}
	for _, f := range dir.Files {
		visit(f)
	}
	for _, sub := range dir.Dirs {
		walk(sub, visit)
	}
}

func stringField(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringSliceField(data map[string]interface{}, key string) []string {
	v, ok := data[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
