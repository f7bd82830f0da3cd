package models

import "time"

// Column names of the input dataset.
const (
	ColumnDate        = "Date Enrg"
	ColumnGPS         = "GPS"
	ColumnCountry     = "Country"
	ColumnRegion      = "Region"
	ColumnDistrict    = "District"
	ColumnWindSpeed   = "Wind speed(m/s)"
	ColumnTemperature = "Temperature (°C)"
	ColumnIrradiation = "Irradiation (W/m²)"
	ColumnHumidity    = "Relative Humidity (%)"
	ColumnProbability = "Probability"
	ColumnTime        = "Time"
)

// Reading is one timestamped sensor sample. Missing numeric cells are NaN;
// missing categorical cells are empty strings.
type Reading struct {
	Timestamp time.Time

	GPS      string
	Country  string
	Region   string
	District string

	WindSpeed   float64
	Temperature float64
	Irradiation float64
	Humidity    float64

	// Probability and Time are the weights summed by the distribution and
	// frequency aggregates.
	Probability float64
	Time        float64
}

// Upload is a dataset file held by the upload store between interactions.
// The raw bytes are kept so every request re-runs the full load.
type Upload struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Data       []byte    `json:"data"`
	UploadedAt time.Time `json:"uploadedAt"`
}
