package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	StationCompleted = "completed"
	StationCurrent   = "current"
	StationUpcoming  = "upcoming"
)

var (
	liveNamePattern        = regexp.MustCompile(`Live Train Status of\s+(.+?)\s+and`)
	currentStationPattern  = regexp.MustCompile(`(?i)\bat\s+(.+)$`)
	lastUpdatedPattern     = regexp.MustCompile(`Last Updated:\s*([^,]+)`)
	liveNoDataPhrases      = []string{"no schedule data", "no data available", "service not available"}
	stationColumnsSelector = `div[class*="col-xs-"]`
)

func parseLiveStatus(doc *goquery.Document, trainNumber string) LiveStatus {
	result := LiveStatus{
		TrainNumber: trainNumber,
		TrainName:   liveTrainName(doc, trainNumber),
		Schedule:    []StationStatus{},
		HasData:     true,
	}

	update := doc.Find("div.train-update").First()
	if status := cleanText(update.Find("div.train-update__status").First().Text()); status != "" {
		result.CurrentStatus = status
		if strings.Contains(status, "Yet to start from") {
			result.CurrentStation = "Yet to start"
		} else if match := currentStationPattern.FindStringSubmatch(status); match != nil {
			result.CurrentStation = cleanText(match[1])
		}
	}
	if match := lastUpdatedPattern.FindStringSubmatch(update.Find("div.train-update__time").First().Text()); match != nil {
		result.LastUpdated = cleanText(match[1])
	}

	rows := doc.Find("div.rs__station-row")
	total := rows.Length()
	currentIndex := -1

	rows.Each(func(i int, row *goquery.Selection) {
		grid := row.Find("div.rs__station-grid").First()
		name := cleanText(grid.Find("span.rs__station-name").First().Text())
		if name == "" {
			return
		}

		station := StationStatus{Station: cleanStationName(name)}
		cols := row.Find(stationColumnsSelector)

		if spans := cols.Eq(1).Find("span"); spans.Length() >= 2 {
			station.Date = cleanText(cleanText(spans.Eq(0).Text()) + " " + cleanText(spans.Eq(1).Text()))
		}
		if cols.Length() >= 3 {
			station.Arrives = cleanText(cols.Eq(2).Find("span").First().Text())
			if station.Arrives == "" && i == 0 {
				station.Arrives = "Start"
			}
		}
		if cols.Length() >= 4 {
			station.Departs = cleanText(cols.Eq(3).Find("span").First().Text())
			if station.Departs == "" && i == total-1 {
				station.Departs = "End"
			}
		}
		if cols.Length() >= 5 {
			station.Delay = cleanText(cols.Eq(4).Find("div.rs__station-delay").First().Text())
		}

		switch {
		case currentIndex < 0 && grid.Find("div.circle.blink").Length() > 0:
			station.Status = StationCurrent
			currentIndex = len(result.Schedule)
			result.CurrentStation = station.Station
		case currentIndex < 0:
			station.Status = StationCompleted
		default:
			station.Status = StationUpcoming
		}
		result.Schedule = append(result.Schedule, station)
	})

	if currentIndex >= 0 && currentIndex+1 < len(result.Schedule) {
		result.NextStation = result.Schedule[currentIndex+1].Station
	}

	if len(result.Schedule) == 0 {
		result.HasData = false
		result.CurrentStatus = "Unable to fetch schedule data"
		pageText := strings.ToLower(doc.Text())
		for _, phrase := range liveNoDataPhrases {
			if strings.Contains(pageText, phrase) {
				result.CurrentStatus = "No schedule data available"
				break
			}
		}
	}

	return result
}

func liveTrainName(doc *goquery.Document, trainNumber string) string {
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if match := liveNamePattern.FindStringSubmatch(desc); match != nil {
			if name := cleanText(match[1]); name != "" {
				return name
			}
		}
	}
	if name := trainNameFromHeading(doc.Find("title").First().Text(), trainNumber); name != "" {
		return name
	}
	return "Train " + trainNumber
}
