package solrbulk

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// DatasetType says whether a document is a top-level dataset or a child
// of one. The wire values match the index schema.
type DatasetType string

const (
	// Level1 is a top-level dataset, a potential parent.
	Level1 = DatasetType("Level-1")
	// Level2 is a child dataset carrying a reference to its parent.
	Level2 = DatasetType("Level-2")
)

// Keys of passthrough fields the pipeline itself reads or writes. All
// other Extra fields travel through untouched.
const (
	WMSURLField      = "data_access_url_ogc_wms"
	WMSLayersField   = "data_access_wms_layers"
	OpendapURLField  = "data_access_url_opendap"
	ThumbnailField   = "thumbnail_url"
	FeatureTypeField = "feature_type"
)

// storeInternalFields are stripped from a fetched document before it is
// re-added. The index computes or injects these itself and rejects
// updates that carry them back.
var storeInternalFields = []string{
	"full_text",
	"bbox__maxX",
	"bbox__maxY",
	"bbox__minX",
	"bbox__minY",
	"bbox_rpt",
	"ss_access",
	"_version_",
}

// Document is one search-index document. The named fields are the ones
// the pipeline makes decisions on; everything else the transformer
// produces (geometry, keywords, citations, ...) rides along in Extra.
type Document struct {
	// ID is the index key, derived from MetadataIdentifier by
	// NormalizeID.
	ID string

	// MetadataIdentifier is the identifier as it appears in the record.
	MetadataIdentifier string

	// DatasetType is Level1 or Level2, mirroring IsChild.
	DatasetType DatasetType

	// IsParent is true once at least one child has been linked to this
	// document, in this run or any earlier one.
	IsParent bool

	// IsChild is true when the record referenced a parent dataset.
	IsChild bool

	// RelatedDataset is the parent reference as written in the record,
	// after URL prefixes and a trailing .xml are stripped. Empty for
	// Level1 documents.
	RelatedDataset string

	// RelatedDatasetID is NormalizeID(RelatedDataset); the key the
	// ParentTracker works with. Empty for Level1 documents.
	RelatedDatasetID string

	// Extra holds every other index field.
	Extra map[string]interface{}
}

// idReplacer folds the characters Solr ids cannot carry. Applying it
// twice is a no-op since '-' is not itself replaced.
var idReplacer = strings.NewReplacer(":", "-", "/", "-", ".", "-")

// NormalizeID derives a document id from a metadata identifier by
// replacing ':', '/' and '.' with '-'.
func NormalizeID(identifier string) string {
	return idReplacer.Replace(identifier)
}

// MarkedParent returns a copy of d suitable for an update-only re-add:
// IsParent set and the index-internal fields removed from Extra.
func (d Document) MarkedParent() Document {
	up := d
	up.IsParent = true
	up.Extra = make(map[string]interface{}, len(d.Extra))
	for k, v := range d.Extra {
		up.Extra[k] = v
	}
	for _, f := range storeInternalFields {
		delete(up.Extra, f)
	}
	return up
}

// MarshalJSON flattens the document into the single JSON object the
// index expects: named fields and Extra fields at the same level.
func (d Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(d.Extra)+7)
	for k, v := range d.Extra {
		m[k] = v
	}
	m["id"] = d.ID
	m["isParent"] = d.IsParent
	m["isChild"] = d.IsChild
	if d.MetadataIdentifier != "" {
		m["metadata_identifier"] = d.MetadataIdentifier
	}
	if d.DatasetType != "" {
		m["dataset_type"] = string(d.DatasetType)
	}
	if d.RelatedDataset != "" {
		m["related_dataset"] = d.RelatedDataset
	}
	if d.RelatedDatasetID != "" {
		m["related_dataset_id"] = d.RelatedDatasetID
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits a flat index document back into named fields and
// Extra passthrough.
func (d *Document) UnmarshalJSON(b []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return errors.Wrap(err, "decoding document object")
	}
	d.ID = popString(m, "id")
	d.MetadataIdentifier = popString(m, "metadata_identifier")
	d.DatasetType = DatasetType(popString(m, "dataset_type"))
	d.IsParent = popBool(m, "isParent")
	d.IsChild = popBool(m, "isChild")
	d.RelatedDataset = popString(m, "related_dataset")
	d.RelatedDatasetID = popString(m, "related_dataset_id")
	d.Extra = m
	return nil
}

func popString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	switch s := v.(type) {
	case string:
		return s
	case []interface{}:
		// multivalued field holding a single logical value
		if len(s) > 0 {
			if first, ok := s[0].(string); ok {
				return first
			}
		}
	}
	return ""
}

// popBool tolerates the older index schemas that stored the parent and
// child flags as the strings "true"/"false" rather than booleans.
func popBool(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	delete(m, key)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}
