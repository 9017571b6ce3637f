// Package mets is a read-only navigator over a parsed METS XML document,
// exposing the physical structMap as a WorkingDirectory tree.
package mets

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/digirati-co-uk/iiif-builder/result"
)

// WorkingDirectory is one node of the physical structure tree: an ordered
// list of child directories and an ordered list of child files, in the
// order METS declared them.
type WorkingDirectory struct {
	LocalPath string
	Dirs      []*WorkingDirectory
	Files     []File
}

// File is a leaf of the physical structure tree.
type File struct {
	LocalPath   string
	Name        string
	ContentType string
}

// mets XML shapes. Only the physical structMap / fileSec fields this
// worker needs are modeled; everything else in a real METS document is
// ignored.
type metsXML struct {
	FileSec    fileSecXML     `xml:"fileSec"`
	StructMaps []structMapXML `xml:"structMap"`
}

type fileSecXML struct {
	FileGroups []fileGrpXML `xml:"fileGrp"`
}

type fileGrpXML struct {
	Files []fileXML `xml:"file"`
}

type fileXML struct {
	ID       string    `xml:"ID,attr"`
	MimeType string    `xml:"MIMETYPE,attr"`
	FLocat   flocatXML `xml:"FLocat"`
}

type flocatXML struct {
	Href string `xml:"href,attr"`
}

type structMapXML struct {
	Type string  `xml:"TYPE,attr"`
	Div  divXML  `xml:"div"`
}

type divXML struct {
	Label string   `xml:"LABEL,attr"`
	Type  string   `xml:"TYPE,attr"`
	Divs  []divXML `xml:"div"`
	FPtrs []fptrXML `xml:"fptr"`
}

type fptrXML struct {
	FileID string `xml:"FILEID,attr"`
}

// Wrapper is the parsed, navigable view over one METS document.
type Wrapper struct {
	PhysicalStructure *WorkingDirectory
}

// Load parses raw METS XML text and builds the physical structure tree.
// Construction failures propagate as a failure envelope rather than a Go
// error, matching every other component boundary in the pipeline.
func Load(xmlBytes []byte) result.Envelope[*Wrapper] {
	var doc metsXML
	if err := xml.Unmarshal(xmlBytes, &doc); err != nil {
		return result.Err[*Wrapper](fmt.Sprintf("malformed METS document: %v", err))
	}

	filesByID := make(map[string]fileXML)
	for _, grp := range doc.FileSec.FileGroups {
		for _, f := range grp.Files {
			filesByID[f.ID] = f
		}
	}

	structMap, ok := physicalStructMap(doc.StructMaps)
	if !ok {
		return result.Err[*Wrapper]("METS document has no physical structMap")
	}

	root := buildDirectory(structMap.Div, "", filesByID)
	return result.Ok(&Wrapper{PhysicalStructure: root})
}

// physicalStructMap picks the structMap whose TYPE attribute is "physical"
// (case-insensitive, per METS convention). A document may carry several
// structMaps (e.g. logical and physical); only the physical one describes
// the on-disk file layout this worker walks.
func physicalStructMap(maps []structMapXML) (structMapXML, bool) {
	for _, m := range maps {
		if strings.EqualFold(m.Type, "physical") {
			return m, true
		}
	}
	return structMapXML{}, false
}

func buildDirectory(div divXML, parentPath string, filesByID map[string]fileXML) *WorkingDirectory {
	dirPath := div.Label
	if parentPath != "" {
		dirPath = path.Join(parentPath, div.Label)
	}

	dir := &WorkingDirectory{LocalPath: dirPath}

	for _, fptr := range div.FPtrs {
		f, ok := filesByID[fptr.FileID]
		if !ok {
			continue
		}
		name := path.Base(f.FLocat.Href)
		localPath := name
		if dirPath != "" {
			localPath = path.Join(dirPath, name)
		}
		dir.Files = append(dir.Files, File{
			LocalPath:   localPath,
			Name:        name,
			ContentType: contentType(f),
		})
	}

	for _, child := range div.Divs {
		dir.Dirs = append(dir.Dirs, buildDirectory(child, dirPath, filesByID))
	}

	return dir
}

func contentType(f fileXML) string {
	if f.MimeType != "" {
		return f.MimeType
	}
	if strings.HasSuffix(strings.ToLower(f.FLocat.Href), ".jpg") || strings.HasSuffix(strings.ToLower(f.FLocat.Href), ".jpeg") {
		return "image/jpeg"
	}
	return "application/octet-stream"
}
