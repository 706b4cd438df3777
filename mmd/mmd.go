// Package mmd reads MET Norway Metadata (MMD) XML records and maps
// them to search index documents.
package mmd

import (
	"encoding/xml"

	"github.com/pkg/errors"
)

// MMD models the subset of the MMD XML schema the index mapping
// consumes. Element names match on their local part, so both prefixed
// and unprefixed records decode.
type MMD struct {
	XMLName                 xml.Name             `xml:"mmd"`
	MetadataIdentifier      string               `xml:"metadata_identifier"`
	Titles                  []LangString         `xml:"title"`
	Abstracts               []LangString         `xml:"abstract"`
	MetadataStatus          string               `xml:"metadata_status"`
	Collections             []string             `xml:"collection"`
	LastMetadataUpdate      LastMetadataUpdate   `xml:"last_metadata_update"`
	TemporalExtents         []TemporalExtent     `xml:"temporal_extent"`
	GeographicExtents       []GeographicExtent   `xml:"geographic_extent"`
	DatasetProductionStatus string               `xml:"dataset_production_status"`
	DatasetLanguage         string               `xml:"dataset_language"`
	OperationalStatus       string               `xml:"operational_status"`
	AccessConstraint        string               `xml:"access_constraint"`
	UseConstraint           *UseConstraint       `xml:"use_constraint"`
	Personnel               []Personnel          `xml:"personnel"`
	DataCenters             []DataCenter         `xml:"data_center"`
	DataAccess              []DataAccess         `xml:"data_access"`
	RelatedDatasets         []RelatedDataset     `xml:"related_dataset"`
	RelatedInformation      []RelatedInformation `xml:"related_information"`
	StorageInformation      *StorageInformation  `xml:"storage_information"`
	ISOTopicCategories      []string             `xml:"iso_topic_category"`
	Keywords                []KeywordList        `xml:"keywords"`
	Projects                []Project            `xml:"project"`
	Platforms               []Platform           `xml:"platform"`
	ActivityTypes           []string             `xml:"activity_type"`
	DatasetCitations        []DatasetCitation    `xml:"dataset_citation"`
	QualityControl          string               `xml:"quality_control"`
}

// LangString is a text element with an optional xml:lang attribute.
type LangString struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

// LastMetadataUpdate carries either the current form with one or more
// update elements, or the retired flat form where the element body is
// the datetime itself (kept in Raw).
type LastMetadataUpdate struct {
	Raw     string   `xml:",chardata"`
	Updates []Update `xml:"update"`
}

type Update struct {
	Datetime string `xml:"datetime"`
	Type     string `xml:"type"`
	Note     string `xml:"note"`
}

type TemporalExtent struct {
	StartDate string `xml:"start_date"`
	EndDate   string `xml:"end_date"`
}

type GeographicExtent struct {
	Rectangle *Rectangle `xml:"rectangle"`
}

type Rectangle struct {
	SRSName string `xml:"srsName,attr"`
	North   string `xml:"north"`
	South   string `xml:"south"`
	East    string `xml:"east"`
	West    string `xml:"west"`
}

type UseConstraint struct {
	Identifier  string `xml:"identifier"`
	Resource    string `xml:"resource"`
	LicenseText string `xml:"license_text"`
}

type Personnel struct {
	Role           string          `xml:"role"`
	Name           string          `xml:"name"`
	Email          string          `xml:"email"`
	Phone          string          `xml:"phone"`
	Fax            string          `xml:"fax"`
	Organisation   string          `xml:"organisation"`
	ContactAddress *ContactAddress `xml:"contact_address"`
}

type ContactAddress struct {
	Address         string `xml:"address"`
	City            string `xml:"city"`
	ProvinceOrState string `xml:"province_or_state"`
	PostalCode      string `xml:"postal_code"`
	Country         string `xml:"country"`
}

type DataCenter struct {
	Name DataCenterName `xml:"data_center_name"`
	URL  string         `xml:"data_center_url"`
}

type DataCenterName struct {
	ShortName string `xml:"short_name"`
	LongName  string `xml:"long_name"`
}

type DataAccess struct {
	Type      string   `xml:"type"`
	Resource  string   `xml:"resource"`
	WMSLayers []string `xml:"wms_layers>wms_layer"`
}

type RelatedDataset struct {
	RelationType string `xml:"relation_type,attr"`
	Text         string `xml:",chardata"`
}

type RelatedInformation struct {
	Type        string `xml:"type"`
	Resource    string `xml:"resource"`
	Description string `xml:"description"`
}

type StorageInformation struct {
	FileName     string    `xml:"file_name"`
	FileLocation string    `xml:"file_location"`
	FileFormat   string    `xml:"file_format"`
	FileSize     *FileSize `xml:"file_size"`
	Checksum     *Checksum `xml:"checksum"`
}

type FileSize struct {
	Unit  string `xml:"unit,attr"`
	Value string `xml:",chardata"`
}

type Checksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type KeywordList struct {
	Vocabulary string   `xml:"vocabulary,attr"`
	Keyword    []string `xml:"keyword"`
}

type Project struct {
	ShortName string `xml:"short_name"`
	LongName  string `xml:"long_name"`
}

type Platform struct {
	ShortName  string      `xml:"short_name"`
	LongName   string      `xml:"long_name"`
	Resource   string      `xml:"resource"`
	Instrument *Instrument `xml:"instrument"`
}

type Instrument struct {
	ShortName string `xml:"short_name"`
	LongName  string `xml:"long_name"`
	Resource  string `xml:"resource"`
}

type DatasetCitation struct {
	Author          string `xml:"author"`
	PublicationDate string `xml:"publication_date"`
	Title           string `xml:"title"`
	Publisher       string `xml:"publisher"`
	DOI             string `xml:"doi"`
	URL             string `xml:"url"`
}

// Parse decodes one MMD record.
func Parse(data []byte) (*MMD, error) {
	var doc MMD
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing mmd xml")
	}
	return &doc, nil
}
