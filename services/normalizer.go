package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"realestate-ingest/layout"
	"realestate-ingest/models"
	"realestate-ingest/utils"
)

// SkipReason classifies why a raw record produced no canonical entity.
type SkipReason string

const (
	SkipTooFewFields          SkipReason = "too_few_fields"
	SkipMissingRequired       SkipReason = "missing_required"
	SkipUnresolvedCoordinates SkipReason = "unresolved_coordinates"
)

// SkipError reports a dropped record. It is never fatal to a run.
type SkipError struct {
	Reason SkipReason
	Source string
	Line   int
	Detail string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s:%d skipped (%s): %s", e.Source, e.Line, e.Reason, e.Detail)
}

// Normalized holds exactly one canonical entity, chosen by the layout kind.
type Normalized struct {
	Building *models.Building
	Facility *models.Facility
}

var numericNoise = strings.NewReplacer(
	",", "",
	"㎡", "",
	"m²", "",
	"층", "",
	"만원", "",
	"년", "",
	" ", "",
)

var categoryKeywords = []struct {
	keyword  string
	category models.FacilityCategory
}{
	{"편의점", models.CategoryConvenienceStore},
	{"convenience", models.CategoryConvenienceStore},
	{"대형마트", models.CategoryMart},
	{"슈퍼마켓", models.CategoryMart},
	{"마트", models.CategoryMart},
	{"mart", models.CategoryMart},
	{"병원", models.CategoryHospital},
	{"의원", models.CategoryHospital},
	{"hospital", models.CategoryHospital},
	{"clinic", models.CategoryHospital},
}

// convenienceBrands are the canonical chain names, matched with a typo tolerance of one edit.
var convenienceBrands = []string{"GS25", "CU", "세븐일레븐", "이마트24", "미니스톱"}

// Normalizer turns raw records into canonical buildings and facilities.
type Normalizer struct {
	registry *layout.Registry
	logger   *utils.Logger
}

// NewNormalizer creates a Normalizer using the registry's type tokens.
func NewNormalizer(registry *layout.Registry, logger *utils.Logger) *Normalizer {
	return &Normalizer{registry: registry, logger: logger}
}

// Normalize maps one raw record onto a canonical entity using the static
// column table of its source. A *SkipError is the only possible error.
func (n *Normalizer) Normalize(rec models.RawRecord, src layout.Source) (Normalized, error) {
	l := src.Layout
	if len(rec.Fields) < l.MinFields {
		return Normalized{}, &SkipError{
			Reason: SkipTooFewFields,
			Source: rec.Source,
			Line:   rec.Line,
			Detail: fmt.Sprintf("%d fields, need %d", len(rec.Fields), l.MinFields),
		}
	}

	key := models.EntityKey{
		Name:    joinFields(rec.Fields, l.Columns.Name),
		Address: joinFields(rec.Fields, l.Columns.Address),
	}
	if key.Name == "" || key.Address == "" {
		return Normalized{}, &SkipError{
			Reason: SkipMissingRequired,
			Source: rec.Source,
			Line:   rec.Line,
			Detail: fmt.Sprintf("name=%q address=%q", key.Name, key.Address),
		}
	}

	if l.Kind == layout.KindFacility {
		return Normalized{Facility: n.facility(rec, src, key)}, nil
	}
	return Normalized{Building: n.building(rec, src, key)}, nil
}

func (n *Normalizer) building(rec models.RawRecord, src layout.Source, key models.EntityKey) *models.Building {
	cols := src.Layout.Columns
	b := &models.Building{
		Key:              key,
		Type:             src.BuildingType,
		Area:             parseFloat(field(rec.Fields, cols.Area)),
		Floor:            parseInt(field(rec.Fields, cols.Floor)),
		ConstructionYear: parseYear(field(rec.Fields, cols.Year)),
		RoadName:         field(rec.Fields, cols.Road),
		Sources:          []string{rec.Source},
		IsSample:         src.Sample,
	}
	if b.Type == "" {
		b.Type = models.BuildingOther
	}
	if raw := field(rec.Fields, cols.Type); raw != "" {
		b.Type = n.registry.TypeFor(raw)
	}
	if p := parseInt64(field(rec.Fields, cols.Price)); p != nil {
		b.Prices = []int64{*p}
	}
	return b
}

func (n *Normalizer) facility(rec models.RawRecord, src layout.Source, key models.EntityKey) *models.Facility {
	cols := src.Layout.Columns
	f := &models.Facility{
		Key:            key,
		RoadAddress:    field(rec.Fields, cols.RoadAddress),
		Category:       classifyCategory(joinFields(rec.Fields, cols.Category)),
		SubCategory:    field(rec.Fields, cols.SubCategory),
		BusinessStatus: models.StatusOperating,
		Sources:        []string{rec.Source},
	}
	if f.Category == models.CategoryOther && src.Layout.DefaultCategory != "" {
		f.Category = src.Layout.DefaultCategory
	}
	if f.Category == models.CategoryConvenienceStore {
		if brand, ok := matchBrand(key.Name); ok {
			f.SubCategory = brand
		}
	}
	if cols.Status != nil {
		f.BusinessStatus = normaliseStatus(field(rec.Fields, cols.Status))
	}

	lat := parseFloat(field(rec.Fields, cols.Lat))
	lon := parseFloat(field(rec.Fields, cols.Lon))
	if validCoordinates(lat, lon) {
		f.Coordinates = &models.Coordinates{Latitude: *lat, Longitude: *lon}
		f.CoordinateSource = models.SourceFile
	} else if lat != nil || lon != nil {
		n.logger.Debug("[normalizer] %s:%d discarding out-of-range coordinates", rec.Source, rec.Line)
	}
	return f
}

// field returns the cleaned value at idx, or "" when the column is absent.
func field(fields []string, idx *int) string {
	if idx == nil || *idx < 0 || *idx >= len(fields) {
		return ""
	}
	return normaliseText(fields[*idx])
}

func joinFields(fields []string, idxs []int) string {
	parts := make([]string, 0, len(idxs))
	for _, i := range idxs {
		i := i
		if v := field(fields, &i); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// normaliseText strips quote characters, collapses internal whitespace and
// NFC-normalizes the result.
func normaliseText(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return norm.NFC.String(strings.Join(fields, " "))
}

// cleanNumeric folds full-width digits to ASCII and drops thousands
// separators and unit suffixes.
func cleanNumeric(s string) string {
	s = width.Fold.String(s)
	return strings.TrimSpace(numericNoise.Replace(s))
}

func parseFloat(s string) *float64 {
	s = cleanNumeric(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	s = cleanNumeric(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt64(s string) *int64 {
	s = cleanNumeric(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseYear accepts a bare year or a date such as 20030415 or 2003-04-15.
func parseYear(s string) *int {
	s = strings.NewReplacer("-", "", ".", "", "/", "").Replace(cleanNumeric(s))
	if len(s) < 4 {
		return nil
	}
	v, err := strconv.Atoi(s[:4])
	if err != nil || v < 1900 || v > 2100 {
		return nil
	}
	return &v
}

func validCoordinates(lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return false
	}
	return *lat != 0 || *lon != 0
}

func classifyCategory(s string) models.FacilityCategory {
	s = strings.ToLower(s)
	for _, kw := range categoryKeywords {
		if strings.Contains(s, kw.keyword) {
			return kw.category
		}
	}
	return models.CategoryOther
}

func normaliseStatus(s string) string {
	s = strings.ToLower(s)
	switch {
	case s == "":
		return models.StatusUnknown
	case strings.Contains(s, "폐업"), strings.Contains(s, "취소"), strings.Contains(s, "closed"):
		return models.StatusClosed
	case strings.Contains(s, "휴업"), strings.Contains(s, "suspended"):
		return models.StatusSuspended
	case strings.Contains(s, "영업"), strings.Contains(s, "정상"), strings.Contains(s, "operating"):
		return models.StatusOperating
	}
	return models.StatusUnknown
}

func foldBrand(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(width.Fold.String(s)), ""))
}

// matchBrand finds the chain whose name prefixes the store name within one edit.
// Brands of two runes or fewer must match exactly.
func matchBrand(name string) (string, bool) {
	folded := []rune(foldBrand(name))
	for _, brand := range convenienceBrands {
		b := []rune(foldBrand(brand))
		tolerance := 1
		if len(b) <= 2 {
			tolerance = 0
		}
		for l := len(b) - tolerance; l <= len(b)+tolerance; l++ {
			if l <= 0 || l > len(folded) {
				continue
			}
			if levenshtein.ComputeDistance(string(folded[:l]), string(b)) <= tolerance {
				return brand, true
			}
		}
	}
	return "", false
}
