package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"realestate-ingest/models"
)

const kakaoAddressURL = "https://dapi.kakao.com/v2/local/search/address.json"

// KakaoClient wraps the Kakao Local address search API.
type KakaoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewKakaoClient returns nil when apiKey is empty, so callers can leave the
// geocoder out instead of failing every lookup.
func NewKakaoClient(apiKey string) *KakaoClient {
	if apiKey == "" {
		return nil
	}
	return &KakaoClient{
		apiKey:  apiKey,
		baseURL: kakaoAddressURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type kakaoResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

// Kakao returns coordinates as decimal strings.
type kakaoDocument struct {
	AddressName string `json:"address_name"`
	X           string `json:"x"`
	Y           string `json:"y"`
}

func (c *KakaoClient) Name() string { return "kakao" }

// Geocode looks up address and returns the first document's position.
func (c *KakaoClient) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	u := c.baseURL + "?query=" + url.QueryEscape(address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, fmt.Errorf("kakao API returned HTTP %d", resp.StatusCode)
	}

	var body kakaoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(body.Documents) == 0 {
		return models.Coordinates{}, ErrNotFound
	}

	doc := body.Documents[0]
	lat, err := strconv.ParseFloat(doc.Y, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("parsing latitude %q: %w", doc.Y, err)
	}
	lon, err := strconv.ParseFloat(doc.X, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("parsing longitude %q: %w", doc.X, err)
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}, nil
}
