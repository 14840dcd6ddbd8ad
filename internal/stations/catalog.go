package stations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/rs/zerolog"
)

// ErrEmptyCatalog indicates the dataset contained no usable station features.
var ErrEmptyCatalog = errors.New("station catalog is empty")

// The dataset embeds station attributes as an HTML table inside each
// feature's Description property. Only these three rows are used.
var (
	bldgPattern = regexp.MustCompile(`<th>BLDG</th>\s*<td>(.*?)</td>`)
	typePattern = regexp.MustCompile(`<th>TYPE</th>\s*<td>(.*?)</td>`)
	telPattern  = regexp.MustCompile(`<th>TEL</th>\s*<td>(.*?)</td>`)
)

// Fallback values when a description row is missing from the dataset.
const (
	fallbackName = "Police Station"
	fallbackType = "Police Station"
	fallbackTel  = "N/A"
)

// GeoJSON wire types for the station dataset.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry   geometry          `json:"geometry"`
	Properties featureProperties `json:"properties"`
}

type geometry struct {
	// Coordinates are [longitude, latitude, elevation].
	Coordinates []float64 `json:"coordinates"`
}

type featureProperties struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
}

// Catalog is the immutable set of local station records.
type Catalog struct {
	records []Record
}

// LoadCatalog reads a GeoJSON FeatureCollection of stations from r.
// Features without coordinates are skipped.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decoding station dataset: %w", err)
	}

	records := make([]Record, 0, len(fc.Features))
	for _, f := range fc.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		records = append(records, Record{
			Name:      extractField(f.Properties.Description, bldgPattern, fallbackName),
			Type:      extractField(f.Properties.Description, typePattern, fallbackType),
			Telephone: extractField(f.Properties.Description, telPattern, fallbackTel),
			Coordinates: Coordinate{
				Lat: f.Geometry.Coordinates[1],
				Lon: f.Geometry.Coordinates[0],
			},
		})
	}

	if len(records) == 0 {
		return nil, ErrEmptyCatalog
	}

	return &Catalog{records: records}, nil
}

// LoadCatalogFile loads the station dataset from a file path.
func LoadCatalogFile(path string, log zerolog.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening station dataset: %w", err)
	}
	defer f.Close()

	catalog, err := LoadCatalog(f)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("stations", catalog.Len()).
		Msg("station catalog loaded")

	return catalog, nil
}

// Records returns the catalog records in dataset order.
func (c *Catalog) Records() []Record {
	return c.records
}

// Len returns the number of stations in the catalog.
func (c *Catalog) Len() int {
	return len(c.records)
}

func extractField(description string, pattern *regexp.Regexp, fallback string) string {
	m := pattern.FindStringSubmatch(description)
	if len(m) < 2 || m[1] == "" {
		return fallback
	}
	return m[1]
}
