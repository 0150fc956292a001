package layout

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"

	"realestate-ingest/models"
)

//go:embed layouts.yaml
var defaultLayouts []byte

//go:embed layouts.schema.json
var layoutSchema []byte

const schemaURL = "layouts.schema.json"

// Kind tells the normalizer which canonical record a layout produces.
type Kind string

const (
	KindBuilding Kind = "building"
	KindFacility Kind = "facility"
)

// Supported source encodings.
const (
	EncodingUTF8  = "utf-8"
	EncodingCP949 = "cp949"
)

// Columns maps canonical fields onto zero-based field indexes. A nil index
// means the source does not carry the field. Multi-index fields are joined
// with a single space.
type Columns struct {
	Name        []int `json:"name"`
	Address     []int `json:"address"`
	Category    []int `json:"category,omitempty"`
	Road        *int  `json:"road,omitempty"`
	RoadAddress *int  `json:"roadAddress,omitempty"`
	Type        *int  `json:"type,omitempty"`
	Area        *int  `json:"area,omitempty"`
	Floor       *int  `json:"floor,omitempty"`
	Year        *int  `json:"year,omitempty"`
	Price       *int  `json:"price,omitempty"`
	SubCategory *int  `json:"subCategory,omitempty"`
	Status      *int  `json:"status,omitempty"`
	Lat         *int  `json:"lat,omitempty"`
	Lon         *int  `json:"lon,omitempty"`
}

// Layout is the static column table of one family of source files.
type Layout struct {
	Name            string                  `json:"name"`
	Kind            Kind                    `json:"kind"`
	Match           []string                `json:"match"`
	Encoding        string                  `json:"encoding"`
	Delimiter       string                  `json:"delimiter"`
	SkipLines       int                     `json:"skipLines"`
	HeaderScanLines int                     `json:"headerScanLines"`
	MinFields       int                     `json:"minFields"`
	DefaultCategory models.FacilityCategory `json:"defaultCategory,omitempty"`
	Columns         Columns                 `json:"columns"`
}

// Delim returns the field delimiter as a rune, defaulting to a comma.
func (l *Layout) Delim() rune {
	if l.Delimiter == "" {
		return ','
	}
	return []rune(l.Delimiter)[0]
}

// TypeToken maps a filename or type-column token onto a building type.
type TypeToken struct {
	Token string              `json:"token"`
	Type  models.BuildingType `json:"type"`
}

// POIKind distinguishes the point-of-interest families used for walking times.
type POIKind string

const (
	POISchool  POIKind = "school"
	POIStation POIKind = "station"
)

// POI is a fixed point of interest (school, station).
type POI struct {
	Name string  `json:"name"`
	Kind POIKind `json:"kind"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Coordinates returns the POI position.
func (p POI) Coordinates() models.Coordinates {
	return models.Coordinates{Latitude: p.Lat, Longitude: p.Lon}
}

// Registry holds every known layout plus the token tables used to classify files.
type Registry struct {
	SampleToken      string      `json:"sampleToken"`
	BuildingTypes    []TypeToken `json:"buildingTypes"`
	Layouts          []Layout    `json:"layouts"`
	PointsOfInterest []POI       `json:"pointsOfInterest"`
}

// Source is a layout resolved for one concrete file.
type Source struct {
	File         string
	Layout       *Layout
	BuildingType models.BuildingType
	Sample       bool
}

// Default returns the registry compiled into the binary.
func Default() (*Registry, error) {
	return Parse(defaultLayouts)
}

// Load reads a registry from a YAML file, or the embedded default when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout file: %w", err)
	}
	return Parse(data)
}

// Parse validates YAML registry data against the embedded schema and decodes it.
func Parse(data []byte) (*Registry, error) {
	doc, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse layouts: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("decode layouts: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid layouts: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(doc, &reg); err != nil {
		return nil, fmt.Errorf("decode layouts: %w", err)
	}
	for i := range reg.Layouts {
		l := &reg.Layouts[i]
		if l.Encoding == "" {
			l.Encoding = EncodingUTF8
		}
		if l.Delimiter == "" {
			l.Delimiter = ","
		}
	}
	return &reg, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(layoutSchema)); err != nil {
		return nil, fmt.Errorf("load layout schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile layout schema: %w", err)
	}
	return schema, nil
}

// Match resolves the layout for a file from the tokens in its base name.
// Layouts are tried in registry order; the first token hit wins.
func (r *Registry) Match(file string) (Source, bool) {
	base := strings.ToLower(norm.NFC.String(filepath.Base(file)))
	for i := range r.Layouts {
		l := &r.Layouts[i]
		for _, tok := range l.Match {
			if strings.Contains(base, strings.ToLower(tok)) {
				return Source{
					File:         file,
					Layout:       l,
					BuildingType: r.TypeFor(base),
					Sample:       r.SampleToken != "" && strings.Contains(base, strings.ToLower(r.SampleToken)),
				}, true
			}
		}
	}
	return Source{}, false
}

// TypeFor returns the building type of the first token contained in s, or OTHER.
func (r *Registry) TypeFor(s string) models.BuildingType {
	s = strings.ToLower(s)
	for _, t := range r.BuildingTypes {
		if strings.Contains(s, strings.ToLower(t.Token)) {
			return t.Type
		}
	}
	return models.BuildingOther
}

// POIs returns the configured points of interest of one kind.
func (r *Registry) POIs(kind POIKind) []models.Coordinates {
	var out []models.Coordinates
	for _, p := range r.PointsOfInterest {
		if p.Kind == kind {
			out = append(out, p.Coordinates())
		}
	}
	return out
}
