package models

import "fmt"

// Variable identifies one of the measured quantities of a Reading.
type Variable int

const (
	WindSpeed Variable = iota
	Temperature
	Irradiation
	Humidity
)

// Variables lists the measured variables in dashboard order.
var Variables = []Variable{WindSpeed, Temperature, Irradiation, Humidity}

type variableInfo struct {
	key       string
	column    string
	unit      string
	slug      string
	section   string
	short     string
	hoverName string
}

var variableTable = map[Variable]variableInfo{
	WindSpeed: {
		key:       "wind",
		column:    ColumnWindSpeed,
		unit:      "m/s",
		slug:      "Wind_speed",
		section:   "Wind Section",
		short:     "Wind",
		hoverName: "Wind Speed",
	},
	Temperature: {
		key:       "temperature",
		column:    ColumnTemperature,
		unit:      "°C",
		slug:      "Temperature",
		section:   "Temperature Section",
		short:     "Temperature",
		hoverName: "Temperature (°C)",
	},
	Irradiation: {
		key:       "irradiation",
		column:    ColumnIrradiation,
		unit:      "W/m²",
		slug:      "Irradiation",
		section:   "Solar Irradiation Section",
		short:     "Irradiation",
		hoverName: "Irradiation (W/m²)",
	},
	Humidity: {
		key:       "humidity",
		column:    ColumnHumidity,
		unit:      "%",
		slug:      "Relative_Humidity",
		section:   "Relative Humidity Section",
		short:     "Relative Humidity",
		hoverName: "Relative Humidity (%)",
	},
}

// Key is the URL identifier of the variable (e.g. "wind").
func (v Variable) Key() string { return variableTable[v].key }

// Column is the dataset column holding the variable.
func (v Variable) Column() string { return variableTable[v].column }

// Unit is the measurement unit shown in hover text.
func (v Variable) Unit() string { return variableTable[v].unit }

// Slug is the file-name stem used for exports (e.g. "Wind_speed").
func (v Variable) Slug() string { return variableTable[v].slug }

// Section is the dashboard section title.
func (v Variable) Section() string { return variableTable[v].section }

// ShortName prefixes the frequency and time series chart titles.
func (v Variable) ShortName() string { return variableTable[v].short }

// HoverName is the label used after "Average" in pie hover text.
func (v Variable) HoverName() string { return variableTable[v].hoverName }

func (v Variable) String() string {
	if info, ok := variableTable[v]; ok {
		return info.key
	}
	return fmt.Sprintf("Variable(%d)", int(v))
}

// Value returns the variable's measurement from r.
func (v Variable) Value(r Reading) float64 {
	switch v {
	case WindSpeed:
		return r.WindSpeed
	case Temperature:
		return r.Temperature
	case Irradiation:
		return r.Irradiation
	case Humidity:
		return r.Humidity
	}
	panic(fmt.Sprintf("models: unknown variable %d", int(v)))
}

// ParseVariable resolves a URL key to a Variable.
func ParseVariable(key string) (Variable, bool) {
	for _, v := range Variables {
		if variableTable[v].key == key {
			return v, true
		}
	}
	return 0, false
}
