package models

import "testing"

func TestParseVariable(t *testing.T) {
	tests := []struct {
		key  string
		want Variable
		ok   bool
	}{
		{"wind", WindSpeed, true},
		{"temperature", Temperature, true},
		{"irradiation", Irradiation, true},
		{"humidity", Humidity, true},
		{"rain", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseVariable(tt.key)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseVariable(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestVariable_Value(t *testing.T) {
	r := Reading{WindSpeed: 1, Temperature: 2, Irradiation: 3, Humidity: 4}
	want := map[Variable]float64{WindSpeed: 1, Temperature: 2, Irradiation: 3, Humidity: 4}
	for v, w := range want {
		if got := v.Value(r); got != w {
			t.Errorf("%v.Value() = %v, want %v", v, got, w)
		}
	}
}

func TestVariable_Metadata(t *testing.T) {
	if got := WindSpeed.Slug(); got != "Wind_speed" {
		t.Errorf("WindSpeed.Slug() = %q, want Wind_speed", got)
	}
	if got := Irradiation.Column(); got != ColumnIrradiation {
		t.Errorf("Irradiation.Column() = %q, want %q", got, ColumnIrradiation)
	}
	if got := Humidity.Unit(); got != "%" {
		t.Errorf("Humidity.Unit() = %q, want %%", got)
	}
	if got := Variable(42).String(); got != "Variable(42)" {
		t.Errorf("String() = %q, want Variable(42)", got)
	}
}
