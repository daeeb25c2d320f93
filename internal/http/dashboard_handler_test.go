package http

import (
	"testing"

	"attriflow/internal/journeys"
	"attriflow/internal/timeframe"
)

func Test_convertCountryStats(t *testing.T) {
	tests := []struct {
		name     string
		input    []journeys.CountryJourneyCount
		expected []CountryStat
	}{
		{
			name: "Resolve known ISO codes to display names",
			input: []journeys.CountryJourneyCount{
				{Country: "US", Journeys: 15},
				{Country: "DE", Journeys: 6},
				{Country: "NL", Journeys: 1},
			},
			expected: []CountryStat{
				{Code: "US", Name: "United States", Journeys: 15},
				{Code: "DE", Name: "Germany", Journeys: 6},
				{Code: "NL", Name: "Netherlands", Journeys: 1},
			},
		},
		{
			name:     "Empty input",
			input:    []journeys.CountryJourneyCount{},
			expected: []CountryStat{},
		},
		{
			name: "Unknown code falls back to the uppercased code",
			input: []journeys.CountryJourneyCount{
				{Country: "zz", Journeys: 3},
			},
			expected: []CountryStat{
				{Code: "zz", Name: "ZZ", Journeys: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := convertCountryStats(tt.input)

			if len(result) != len(tt.expected) {
				t.Errorf("Expected %d items, got %d", len(tt.expected), len(result))
				return
			}

			for i, item := range result {
				if item != tt.expected[i] {
					t.Errorf("Expected %+v, got %+v", tt.expected[i], item)
				}
			}
		})
	}
}

func Test_convertToTimeSeries(t *testing.T) {
	input := []timeframe.DateStat{
		{Date: "2025-06-01", Count: 4},
		{Date: "2025-06-02", Count: 0},
		{Date: "2025-06-03", Count: 9},
	}

	result := convertToTimeSeries(input)

	if len(result) != len(input) {
		t.Fatalf("Expected %d points, got %d", len(input), len(result))
	}
	for i, point := range result {
		if point.Date != input[i].Date || point.Count != input[i].Count {
			t.Errorf("Expected %+v, got %+v", input[i], point)
		}
	}
}
