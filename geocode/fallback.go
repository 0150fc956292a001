package geocode

import (
	"hash/fnv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"realestate-ingest/models"
)

// District anchors fallback coordinates for addresses containing Token.
type District struct {
	Token  string
	Base   models.Coordinates
	Spread float64
}

// Suwon districts, matched in order. The last entry is the catch-all.
var DefaultDistricts = []District{
	{Token: "영통구", Base: models.Coordinates{Latitude: 37.2596, Longitude: 127.0465}, Spread: 0.010},
	{Token: "팔달구", Base: models.Coordinates{Latitude: 37.2827, Longitude: 127.0199}, Spread: 0.010},
	{Token: "장안구", Base: models.Coordinates{Latitude: 37.3039, Longitude: 127.0103}, Spread: 0.012},
	{Token: "권선구", Base: models.Coordinates{Latitude: 37.2575, Longitude: 126.9717}, Spread: 0.012},
	{Token: "", Base: models.Coordinates{Latitude: 37.2636, Longitude: 127.0286}, Spread: 0.020},
}

// Fallback computes a reproducible pseudo-coordinate for address.
//
// h is FNV-1a-64 over the UTF-8 bytes of the trimmed, NFC-normalized address.
// Its low 32 bits pick the latitude fraction and its high 32 bits the
// longitude fraction; each offset is (2*frac - 1) * spread around the base of
// the first district whose token occurs in the address.
func Fallback(address string, districts []District) models.Coordinates {
	key := norm.NFC.String(strings.TrimSpace(address))

	h := fnv.New64a()
	h.Write([]byte(key))
	sum := h.Sum64()

	d := pickDistrict(key, districts)
	latFrac := float64(uint32(sum)) / float64(1<<32)
	lonFrac := float64(uint32(sum>>32)) / float64(1<<32)

	return models.Coordinates{
		Latitude:  d.Base.Latitude + (2*latFrac-1)*d.Spread,
		Longitude: d.Base.Longitude + (2*lonFrac-1)*d.Spread,
	}
}

func pickDistrict(address string, districts []District) District {
	for _, d := range districts {
		if d.Token == "" || strings.Contains(address, d.Token) {
			return d
		}
	}
	return DefaultDistricts[len(DefaultDistricts)-1]
}
