package mets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMETS = `<?xml version="1.0"?>
<mets>
  <fileSec>
    <fileGrp>
      <file ID="F1" MIMETYPE="image/jpeg"><FLocat href="01.jpg"/></file>
      <file ID="F2" MIMETYPE="text/xml"><FLocat href="metadata.xml"/></file>
    </fileGrp>
  </fileSec>
  <structMap TYPE="physical">
    <div LABEL="root" TYPE="directory">
      <div LABEL="sub" TYPE="directory">
        <fptr FILEID="F1"/>
      </div>
      <fptr FILEID="F2"/>
    </div>
  </structMap>
</mets>`

func TestLoadBuildsPhysicalTree(t *testing.T) {
	envelope := Load([]byte(sampleMETS))
	require.True(t, envelope.Success())

	root := envelope.Value().PhysicalStructure
	assert.Len(t, root.Files, 1)
	assert.Equal(t, "metadata.xml", root.Files[0].Name)
	assert.Equal(t, "text/xml", root.Files[0].ContentType)

	require.Len(t, root.Dirs, 1)
	sub := root.Dirs[0]
	assert.Len(t, sub.Files, 1)
	assert.Equal(t, "01.jpg", sub.Files[0].Name)
	assert.Equal(t, "image/jpeg", sub.Files[0].ContentType)
}

func TestLoadFailsOnMalformedXML(t *testing.T) {
	envelope := Load([]byte("not xml"))
	assert.True(t, envelope.Failure())
}

const metsWithLogicalAndPhysicalStructMaps = `<?xml version="1.0"?>
<mets>
  <fileSec>
    <fileGrp>
      <file ID="F1" MIMETYPE="image/jpeg"><FLocat href="01.jpg"/></file>
    </fileGrp>
  </fileSec>
  <structMap TYPE="logical">
    <div LABEL="logical-root" TYPE="volume">
      <fptr FILEID="F1"/>
    </div>
  </structMap>
  <structMap TYPE="physical">
    <div LABEL="physical-root" TYPE="directory">
      <fptr FILEID="F1"/>
    </div>
  </structMap>
</mets>`

func TestLoadPicksPhysicalStructMapOverLogical(t *testing.T) {
	envelope := Load([]byte(metsWithLogicalAndPhysicalStructMaps))
	require.True(t, envelope.Success())

	root := envelope.Value().PhysicalStructure
	assert.Equal(t, "physical-root", root.LocalPath)
	require.Len(t, root.Files, 1)
	assert.Equal(t, "01.jpg", root.Files[0].Name)
}

func TestLoadFailsWhenNoPhysicalStructMapPresent(t *testing.T) {
	const onlyLogical = `<?xml version="1.0"?>
<mets>
  <fileSec/>
  <structMap TYPE="logical">
    <div LABEL="root"/>
  </structMap>
</mets>`

	envelope := Load([]byte(onlyLogical))
	assert.True(t, envelope.Failure())
}
