package mmd

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
)

// Rejection reasons for records the index must never see. They are
// data-quality failures, not retryable errors.
var (
	ErrNoIdentifier      = errors.New("no metadata identifier")
	ErrUnknownIdentifier = errors.New("metadata identifier is Unknown")
	ErrNoStartDate       = errors.New("no temporal extent start date")
)

// parentPrefixes are catalogue URL forms some records use to reference
// their parent instead of a bare identifier.
var parentPrefixes = []string{
	"https://data.npolar.no/dataset/",
	"http://data.npolar.no/dataset/",
	"http://api.npolar.no/dataset/",
}

var personnelRoles = map[string]string{
	"Investigator":        "investigator",
	"Technical contact":   "technical",
	"Metadata author":     "metadata_author",
	"Data center contact": "datacenter",
}

var relatedInformationTypes = map[string]string{
	"Dataset landing page":   "landing_page",
	"Users guide":            "user_guide",
	"Project home page":      "home_page",
	"Observation facility":   "obs_facility",
	"Extended metadata":      "ext_metadata",
	"Scientific publication": "scientific_publication",
	"Data paper":             "data_paper",
	"Data management plan":   "data_management_plan",
	"Other documentation":    "other_documentation",
	"Software":               "software",
}

// Transformer converts MMD XML records into index documents. It is
// stateless and safe for concurrent use.
type Transformer struct {
	log zerolog.Logger
}

func NewTransformer(log zerolog.Logger) *Transformer {
	return &Transformer{log: log.With().Str("component", "mmd").Logger()}
}

// Transform parses one raw MMD record and maps it. A non-nil error
// rejects the record.
func (t *Transformer) Transform(rec solrbulk.RawRecord) (solrbulk.Document, error) {
	m, err := Parse(rec.Data)
	if err != nil {
		return solrbulk.Document{}, err
	}
	return t.ToDocument(m, rec.Data)
}

// ToDocument maps a parsed MMD record. raw is the original XML, stored
// base64 encoded on the document.
func (t *Transformer) ToDocument(m *MMD, raw []byte) (solrbulk.Document, error) {
	identifier := strings.TrimSpace(m.MetadataIdentifier)
	if identifier == "" {
		return solrbulk.Document{}, ErrNoIdentifier
	}
	if identifier == "Unknown" {
		return solrbulk.Document{}, ErrUnknownIdentifier
	}

	extra := make(map[string]interface{})
	if err := t.temporal(m, extra); err != nil {
		return solrbulk.Document{}, err
	}
	if err := t.geographic(m, extra); err != nil {
		return solrbulk.Document{}, err
	}
	if err := t.lastUpdate(m, extra); err != nil {
		return solrbulk.Document{}, err
	}
	t.describe(m, extra)
	t.constraints(m, extra)
	t.personnel(m, extra)
	t.dataCenters(m, extra)
	t.dataAccess(m, extra)
	t.relatedInformation(m, extra)
	t.keywords(m, extra)
	t.projects(m, extra)
	t.platforms(m, extra)
	t.storage(m, extra)
	t.citations(m, extra)
	extra["mmd_xml_file"] = base64.StdEncoding.EncodeToString(raw)

	doc := solrbulk.Document{
		ID:                 solrbulk.NormalizeID(identifier),
		MetadataIdentifier: identifier,
		DatasetType:        solrbulk.Level1,
		Extra:              extra,
	}
	if parent := parentReference(m); parent != "" {
		doc.DatasetType = solrbulk.Level2
		doc.IsChild = true
		doc.RelatedDataset = parent
		doc.RelatedDatasetID = solrbulk.NormalizeID(parent)
	}
	return doc, nil
}

// parentReference returns the cleaned parent identifier, or "" when the
// record carries no usable parent relation. DOI references are skipped:
// they do not resolve to an indexed dataset.
func parentReference(m *MMD) string {
	for _, rel := range m.RelatedDatasets {
		if rel.RelationType != "parent" {
			continue
		}
		ref := strings.TrimSpace(rel.Text)
		for _, prefix := range parentPrefixes {
			ref = strings.TrimPrefix(ref, prefix)
		}
		ref = strings.TrimSuffix(ref, ".xml")
		if ref == "" || strings.Contains(ref, "doi.org") {
			continue
		}
		return ref
	}
	return ""
}

func (t *Transformer) describe(m *MMD, extra map[string]interface{}) {
	if len(m.Titles) == 0 {
		extra["title"] = "Unknown"
	} else if s := pickEnglish(m.Titles); s != "" {
		extra["title"] = s
	}
	if len(m.Abstracts) == 0 {
		extra["abstract"] = "Unknown"
	} else if s := pickEnglish(m.Abstracts); s != "" {
		extra["abstract"] = s
	}
	if s := strings.TrimSpace(m.MetadataStatus); s != "" {
		extra["metadata_status"] = s
	} else {
		extra["metadata_status"] = "Unknown"
	}

	setTrimmedList(extra, "collection", m.Collections)
	setTrimmedList(extra, "iso_topic_category", m.ISOTopicCategories)
	setTrimmedList(extra, "activity_type", m.ActivityTypes)

	setIfPresent(extra, "dataset_production_status", m.DatasetProductionStatus)
	setIfPresent(extra, "dataset_language", m.DatasetLanguage)
	setIfPresent(extra, "operational_status", m.OperationalStatus)
	setIfPresent(extra, "access_constraint", m.AccessConstraint)
	setIfPresent(extra, "quality_control", m.QualityControl)
}

func (t *Transformer) lastUpdate(m *MMD, extra map[string]interface{}) error {
	lmu := m.LastMetadataUpdate
	var datetimes, types, notes []string
	for _, u := range lmu.Updates {
		dt, err := ParseDate(u.Datetime)
		if err != nil {
			return errors.Wrap(err, "last_metadata_update")
		}
		datetimes = append(datetimes, dt)
		types = append(types, u.Type)
		if u.Note != "" {
			notes = append(notes, u.Note)
		} else {
			notes = append(notes, "Not provided")
		}
	}
	if len(lmu.Updates) == 0 {
		// Retired flat form: the element body is the datetime.
		if raw := strings.TrimSpace(lmu.Raw); raw != "" {
			dt, err := ParseDate(raw)
			if err != nil {
				return errors.Wrap(err, "last_metadata_update")
			}
			datetimes = append(datetimes, dt)
		}
	}
	if len(datetimes) > 0 {
		extra["last_metadata_update_datetime"] = datetimes
	}
	if len(types) > 0 {
		extra["last_metadata_update_type"] = types
		extra["last_metadata_update_note"] = notes
	}
	return nil
}

func (t *Transformer) temporal(m *MMD, extra map[string]interface{}) error {
	if len(m.TemporalExtents) == 0 {
		return ErrNoStartDate
	}
	if len(m.TemporalExtents) == 1 {
		te := m.TemporalExtents[0]
		start := cleanDate(te.StartDate)
		if start == "" {
			return ErrNoStartDate
		}
		startDt, err := ParseDate(start)
		if err != nil {
			return errors.Wrap(err, "temporal extent start")
		}
		extra["temporal_extent_start_date"] = startDt
		period := "[" + startDt + " TO *]"
		if end := cleanDate(te.EndDate); end != "" {
			endDt, err := ParseDate(end)
			if err != nil {
				return errors.Wrap(err, "temporal extent end")
			}
			extra["temporal_extent_end_date"] = endDt
			period = "[" + startDt + " TO " + endDt + "]"
		}
		extra["temporal_extent_period_dr"] = period
		return nil
	}

	// Several extents are flattened to their overall envelope.
	var earliest, latest time.Time
	for _, te := range m.TemporalExtents {
		for _, raw := range []string{te.StartDate, te.EndDate} {
			if cleanDate(raw) == "" {
				continue
			}
			ts, err := parseTime(cleanDate(raw))
			if err != nil {
				return errors.Wrap(err, "temporal extent")
			}
			if earliest.IsZero() || ts.Before(earliest) {
				earliest = ts
			}
			if latest.IsZero() || ts.After(latest) {
				latest = ts
			}
		}
	}
	if earliest.IsZero() {
		return ErrNoStartDate
	}
	start := earliest.Format(time.RFC3339)
	end := latest.Format(time.RFC3339)
	extra["temporal_extent_start_date"] = start
	extra["temporal_extent_end_date"] = end
	extra["temporal_extent_period_dr"] = "[" + start + " TO " + end + "]"
	return nil
}

func (t *Transformer) geographic(m *MMD, extra map[string]interface{}) error {
	if len(m.GeographicExtents) == 0 {
		return nil
	}
	if len(m.GeographicExtents) == 1 {
		rect := m.GeographicExtents[0].Rectangle
		if rect == nil {
			return errors.New("missing spatial bounds")
		}
		b, err := rectBounds(rect)
		if err != nil {
			return err
		}
		return spatialFields(b, rect.SRSName, extra)
	}

	// Multiple bounding boxes are not supported downstream; flatten
	// them to one covering rectangle.
	t.log.Warn().Msg("multiple geographic extents, flattening to one rectangle")
	var lats, lons []float64
	for _, ge := range m.GeographicExtents {
		rect := ge.Rectangle
		if rect == nil {
			continue
		}
		for _, s := range []string{rect.North, rect.South} {
			if v, err := parseCoordinate(s); err == nil {
				lats = append(lats, v)
			}
		}
		for _, s := range []string{rect.East, rect.West} {
			if v, err := parseCoordinate(s); err == nil {
				lons = append(lons, v)
			}
		}
	}
	if len(lats) == 0 || len(lons) == 0 {
		extra["geographic_extent_rectangle_north"] = 90.0
		extra["geographic_extent_rectangle_south"] = -90.0
		extra["geographic_extent_rectangle_east"] = 180.0
		extra["geographic_extent_rectangle_west"] = -180.0
		return nil
	}
	b := bounds{
		North: maxOf(lats), South: minOf(lats),
		East: maxOf(lons), West: minOf(lons),
	}
	return spatialFields(b, "", extra)
}

func rectBounds(rect *Rectangle) (bounds, error) {
	var b bounds
	var err error
	if b.North, err = parseCoordinate(rect.North); err != nil {
		return b, errors.Wrap(err, "rectangle north")
	}
	if b.South, err = parseCoordinate(rect.South); err != nil {
		return b, errors.Wrap(err, "rectangle south")
	}
	if b.East, err = parseCoordinate(rect.East); err != nil {
		return b, errors.Wrap(err, "rectangle east")
	}
	if b.West, err = parseCoordinate(rect.West); err != nil {
		return b, errors.Wrap(err, "rectangle west")
	}
	return b, nil
}

func parseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing spatial bounds")
	}
	return strconv.ParseFloat(s, 64)
}

func (t *Transformer) constraints(m *MMD, extra map[string]interface{}) {
	uc := m.UseConstraint
	if uc == nil {
		return
	}
	if uc.Identifier != "" && uc.Resource != "" {
		extra["use_constraint_identifier"] = uc.Identifier
		extra["use_constraint_resource"] = uc.Resource
	} else {
		t.log.Debug().Msg("use constraint without both identifier and resource")
		extra["use_constraint_identifier"] = "Not provided"
		extra["use_constraint_resource"] = "Not provided"
	}
	setIfPresent(extra, "use_constraint_license_text", uc.LicenseText)
}

func (t *Transformer) personnel(m *MMD, extra map[string]interface{}) {
	for _, p := range m.Personnel {
		role, ok := personnelRoles[strings.TrimSpace(p.Role)]
		if !ok {
			t.log.Warn().Str("role", p.Role).Msg("unknown personnel role")
			continue
		}
		appendField(extra, "personnel_role", p.Role)
		appendField(extra, "personnel_name", p.Name)
		appendField(extra, "personnel_organisation", p.Organisation)

		prefix := "personnel_" + role
		appendField(extra, prefix+"_role", p.Role)
		appendField(extra, prefix+"_name", p.Name)
		appendField(extra, prefix+"_email", p.Email)
		appendField(extra, prefix+"_phone", p.Phone)
		appendField(extra, prefix+"_fax", p.Fax)
		appendField(extra, prefix+"_organisation", p.Organisation)
		if a := p.ContactAddress; a != nil {
			appendField(extra, prefix+"_address", a.Address)
			appendField(extra, prefix+"_address_city", a.City)
			appendField(extra, prefix+"_address_province_or_state", a.ProvinceOrState)
			appendField(extra, prefix+"_address_postal_code", a.PostalCode)
			appendField(extra, prefix+"_address_country", a.Country)
		}
	}
}

func (t *Transformer) dataCenters(m *MMD, extra map[string]interface{}) {
	for _, dc := range m.DataCenters {
		appendField(extra, "data_center_short_name", dc.Name.ShortName)
		appendField(extra, "data_center_long_name", dc.Name.LongName)
		// The doubled name matches the index schema.
		appendField(extra, "data_center_data_center_url", dc.URL)
	}
}

func (t *Transformer) dataAccess(m *MMD, extra map[string]interface{}) {
	for _, da := range m.DataAccess {
		typ := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(da.Type), " ", "_"))
		if typ == "" || da.Resource == "" {
			continue
		}
		extra["data_access_url_"+typ] = da.Resource
		if typ == "ogc_wms" && len(da.WMSLayers) > 0 {
			extra[solrbulk.WMSLayersField] = da.WMSLayers
		}
	}
}

func (t *Transformer) relatedInformation(m *MMD, extra map[string]interface{}) {
	for _, ri := range m.RelatedInformation {
		key, ok := relatedInformationTypes[strings.TrimSpace(ri.Type)]
		if !ok {
			continue
		}
		appendField(extra, "related_url_"+key, ri.Resource)
		desc := ri.Description
		if desc == "" {
			desc = "Not Available"
		}
		appendField(extra, "related_url_"+key+"_desc", desc)
	}
}

func (t *Transformer) keywords(m *MMD, extra map[string]interface{}) {
	var keywords, vocabularies, gcmd []string
	for _, kl := range m.Keywords {
		for _, k := range kl.Keyword {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			keywords = append(keywords, k)
			vocabularies = append(vocabularies, kl.Vocabulary)
			if kl.Vocabulary == "GCMDSK" || kl.Vocabulary == "" {
				gcmd = append(gcmd, k)
			}
		}
	}
	if len(keywords) == 0 {
		return
	}
	extra["keywords_keyword"] = keywords
	extra["keywords_vocabulary"] = vocabularies
	if len(gcmd) > 0 {
		extra["keywords_gcmd"] = gcmd
	}
}

func (t *Transformer) projects(m *MMD, extra map[string]interface{}) {
	for _, p := range m.Projects {
		appendField(extra, "project_short_name", orNotProvided(p.ShortName))
		appendField(extra, "project_long_name", orNotProvided(p.LongName))
	}
}

func (t *Transformer) platforms(m *MMD, extra map[string]interface{}) {
	for _, p := range m.Platforms {
		appendField(extra, "platform_short_name", p.ShortName)
		appendField(extra, "platform_long_name", p.LongName)
		appendField(extra, "platform_resource", p.Resource)
		if ins := p.Instrument; ins != nil {
			appendField(extra, "platform_instrument_short_name", ins.ShortName)
			appendField(extra, "platform_instrument_long_name", ins.LongName)
			appendField(extra, "platform_instrument_resource", ins.Resource)
		}
	}
	// Satellite families facet on the name without the unit letter,
	// Sentinel-3A and Sentinel-3B both land under Sentinel-3.
	if names, ok := extra["platform_long_name"].([]string); ok && len(names) > 0 {
		if name := names[0]; strings.HasPrefix(name, "Sentinel") {
			extra["platform_sentinel"] = name[:len(name)-1]
		}
	}
}

func (t *Transformer) storage(m *MMD, extra map[string]interface{}) {
	si := m.StorageInformation
	if si == nil {
		return
	}
	setIfPresent(extra, "storage_information_file_name", si.FileName)
	setIfPresent(extra, "storage_information_file_location", si.FileLocation)
	setIfPresent(extra, "storage_information_file_format", si.FileFormat)
	if fs := si.FileSize; fs != nil {
		if fs.Unit == "" {
			t.log.Debug().Msg("file size without unit, skipping field")
		} else {
			extra["storage_information_file_size"] = strings.TrimSpace(fs.Value)
			extra["storage_information_file_size_unit"] = fs.Unit
		}
	}
	if cs := si.Checksum; cs != nil {
		if cs.Type == "" {
			t.log.Debug().Msg("checksum without type, skipping field")
		} else {
			extra["storage_information_file_checksum"] = strings.TrimSpace(cs.Value)
			extra["storage_information_file_checksum_type"] = cs.Type
		}
	}
}

func (t *Transformer) citations(m *MMD, extra map[string]interface{}) {
	for _, dc := range m.DatasetCitations {
		setIfPresent(extra, "dataset_citation_author", dc.Author)
		setIfPresent(extra, "dataset_citation_title", dc.Title)
		setIfPresent(extra, "dataset_citation_publisher", dc.Publisher)
		setIfPresent(extra, "dataset_citation_doi", dc.DOI)
		setIfPresent(extra, "dataset_citation_url", dc.URL)
		if dc.PublicationDate == "" {
			continue
		}
		// The index wants a full datetime where MMD allows bare dates.
		dt, err := ParseDate(dc.PublicationDate)
		if err != nil {
			t.log.Debug().Err(err).Msg("unparseable citation publication date")
			continue
		}
		extra["dataset_citation_publication_date"] = dt
	}
}

func pickEnglish(ls []LangString) string {
	if len(ls) == 1 && ls[0].Lang == "" {
		return strings.TrimSpace(ls[0].Text)
	}
	for _, l := range ls {
		if l.Lang == "en" {
			return strings.TrimSpace(l.Text)
		}
	}
	return ""
}

func cleanDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "--" {
		return ""
	}
	return s
}

func appendField(extra map[string]interface{}, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	list, _ := extra[key].([]string)
	extra[key] = append(list, value)
}

func setIfPresent(extra map[string]interface{}, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		extra[key] = v
	}
}

func setTrimmedList(extra map[string]interface{}, key string, values []string) {
	var list []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	if len(list) > 0 {
		extra[key] = list
	}
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not provided"
	}
	return s
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
