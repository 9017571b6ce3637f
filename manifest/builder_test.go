package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirati-co-uk/iiif-builder/mets"
	"github.com/digirati-co-uk/iiif-builder/preservation"
)

func TestDecorateUsesTitleFallbackChain(t *testing.T) {
	b := New()

	m := b.Decorate(map[string]interface{}{"Title": "A Proper Title"})
	assert.Equal(t, []string{"A Proper Title"}, m.Label["en"])

	m = b.Decorate(map[string]interface{}{"title": "lowercase title"})
	assert.Equal(t, []string{"lowercase title"}, m.Label["en"])

	m = b.Decorate(map[string]interface{}{})
	assert.Equal(t, []string{"[NO TITLE]"}, m.Label["en"])
}

func TestDecorateAppliesMetadataLanguageTable(t *testing.T) {
	b := New()
	m := b.Decorate(map[string]interface{}{
		"Shelfmark":   "MS 123",
		"Description": "A long description",
	})

	require.Len(t, m.Metadata, 2)
	assert.Equal(t, LangValues{"none": {"MS 123"}}, m.Metadata[0].Value)
	assert.Equal(t, LangValues{"en": {"A long description"}}, m.Metadata[1].Value)
}

func TestDecorateCarriesBoilerplateProvider(t *testing.T) {
	b := New()
	m := b.Decorate(map[string]interface{}{})
	require.Len(t, m.Provider, 1)
	assert.Equal(t, "Manifest", m.Type)
}

func TestAddPaintedResourcesWalksFilesBeforeDirsInOrder(t *testing.T) {
	b := New()
	tree := &mets.WorkingDirectory{
		LocalPath: "",
		Files: []mets.File{
			{LocalPath: "front.jpg", Name: "front.jpg", ContentType: "image/jpeg"},
		},
		Dirs: []*mets.WorkingDirectory{
			{
				LocalPath: "inner",
				Files: []mets.File{
					{LocalPath: "inner/page1.jpg", Name: "page1.jpg", ContentType: "image/jpeg"},
					{LocalPath: "inner/notes.txt", Name: "notes.txt", ContentType: "text/plain"},
				},
			},
		},
	}

	ag := preservation.ArchivalGroup{
		Origin: "https://preservation.example/ag/1",
		StorageMap: map[string]preservation.StorageFile{
			"front.jpg":       {FullPath: "store/front.jpg"},
			"inner/page1.jpg": {FullPath: "store/inner/page1.jpg"},
		},
	}

	envelope := b.AddPaintedResources(b.Decorate(nil), tree, ag, "https://cs.example/canvases/", "https://cs.example/assets/", "space-1")
	require.True(t, envelope.Success())

	resources := envelope.Value().PaintedResources
	require.Len(t, resources, 2)

	assert.Equal(t, "https://cs.example/canvases/front.jpg", resources[0].CanvasPainting.CanvasID)
	assert.Equal(t, 0, resources[0].CanvasPainting.CanvasOrder)
	assert.Equal(t, "https://preservation.example/ag/1/store/front.jpg", resources[0].Asset.Origin)

	assert.Equal(t, "https://cs.example/canvases/inner_page1.jpg", resources[1].CanvasPainting.CanvasID)
	assert.Equal(t, 1, resources[1].CanvasPainting.CanvasOrder)
}

func TestAddPaintedResourcesSkipsNonImageFiles(t *testing.T) {
	b := New()
	tree := &mets.WorkingDirectory{
		Files: []mets.File{
			{LocalPath: "readme.txt", Name: "readme.txt", ContentType: "text/plain"},
		},
	}
	ag := preservation.ArchivalGroup{StorageMap: map[string]preservation.StorageFile{}}

	envelope := b.AddPaintedResources(b.Decorate(nil), tree, ag, "p/", "a/", "space")
	require.True(t, envelope.Success())
	assert.Empty(t, envelope.Value().PaintedResources)
}

func TestAddPaintedResourcesFailsOnMissingStorageEntry(t *testing.T) {
	b := New()
	tree := &mets.WorkingDirectory{
		Files: []mets.File{
			{LocalPath: "front.jpg", Name: "front.jpg", ContentType: "image/jpeg"},
		},
	}
	ag := preservation.ArchivalGroup{StorageMap: map[string]preservation.StorageFile{}}

	envelope := b.AddPaintedResources(b.Decorate(nil), tree, ag, "p/", "a/", "space")
	assert.True(t, envelope.Failure())
	assert.Contains(t, envelope.Error(), "front.jpg")
}
