package sensor

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/swc-cli/internal/risk"
)

// RainfallName labels rainfall metrics and logs.
const RainfallName = "rainfall"

// DefaultRainfallURL is the NASA POWER climatology point endpoint.
const DefaultRainfallURL = "https://power.larc.nasa.gov/api/temporal/climatology/point"

// powerParameter is the precipitation-corrected daily mean in mm/day.
const powerParameter = "PRECTOTCORR"

// Rainfall reads long-term mean annual rainfall from NASA POWER.
type Rainfall struct {
	baseURL string
	client  *client
}

// NewRainfall creates a rainfall sensor against baseURL, or the NASA POWER
// endpoint when baseURL is empty.
func NewRainfall(baseURL string, opts Options) *Rainfall {
	if baseURL == "" {
		baseURL = DefaultRainfallURL
	}
	return &Rainfall{baseURL: baseURL, client: newClient(RainfallName, opts)}
}

type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// AnnualRainfall returns the annual rainfall in mm at a point, rounded to two
// decimals.
func (r *Rainfall) AnnualRainfall(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("parameters", powerParameter)
	q.Set("community", "AG")
	q.Set("format", "JSON")

	body, err := r.client.get(ctx, r.baseURL+"?"+q.Encode())
	if err != nil {
		return 0, err
	}
	return parseAnnualRainfall(body)
}

func parseAnnualRainfall(body []byte) (float64, error) {
	var resp powerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, eris.Wrap(err, "rainfall: decode response")
	}
	series, ok := resp.Properties.Parameter[powerParameter]
	if !ok {
		return 0, eris.Errorf("rainfall: response has no %s parameter", powerParameter)
	}
	mmPerDay, ok := series["ANN"]
	if !ok {
		return 0, eris.New("rainfall: response has no annual mean")
	}
	// POWER reports missing data as -999.
	if mmPerDay < 0 {
		return 0, eris.Errorf("rainfall: annual mean %g is a fill value", mmPerDay)
	}
	return risk.Round2(mmPerDay * 365.0), nil
}
