package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var scheduleHeaderHints = []string{"station", "arrives", "departs"}

func parseSchedule(doc *goquery.Document, trainNumber string) Schedule {
	result := Schedule{
		TrainNumber: trainNumber,
		TrainName:   scheduleTrainName(doc, trainNumber),
		Stations:    []ScheduleStop{},
	}

	table := findTable(doc, scheduleHeaderHints)
	if table != nil {
		seen := make(map[string]struct{})
		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			stop, ok := parseScheduleRow(row.Find("td, th"))
			if !ok {
				return
			}
			if _, dup := seen[stop.Station]; dup {
				return
			}
			seen[stop.Station] = struct{}{}
			result.Stations = append(result.Stations, stop)
		})
	}

	if n := len(result.Stations); n >= 2 {
		result.Route = result.Stations[0].Station + " to " + result.Stations[n-1].Station
	}
	result.RunningDays = runningDays(doc.Text())
	return result
}

func scheduleTrainName(doc *goquery.Document, trainNumber string) string {
	if name := trainNameFromHeading(doc.Find("title").First().Text(), trainNumber); name != "" {
		return name
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if name := trainNameFromHeading(desc, trainNumber); name != "" {
			return name
		}
	}
	var name string
	doc.Find("h1, h2").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		name = trainNameFromHeading(heading.Text(), trainNumber)
		return name == ""
	})
	if name != "" {
		return name
	}
	return "Train"
}

// findTable returns the first table with at least one data row whose header
// row mentions any of hints.
func findTable(doc *goquery.Document, hints []string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		header := strings.ToLower(cleanText(rows.First().Find("th, td").Text()))
		for _, hint := range hints {
			if strings.Contains(header, hint) {
				found = table
				return false
			}
		}
		return true
	})
	return found
}

func parseScheduleRow(cols *goquery.Selection) (ScheduleStop, bool) {
	if cols.Length() < 3 {
		return ScheduleStop{}, false
	}
	col := func(i int) string {
		if i >= cols.Length() {
			return ""
		}
		return cleanText(cols.Eq(i).Text())
	}

	first := col(0)
	switch strings.ToLower(first) {
	case "", "s.no", "sr.no", "station", "stations":
		return ScheduleStop{}, false
	}

	stop := ScheduleStop{Day: "1"}
	if isDigits(first) {
		stop.SrNo = first
		stop.Station, stop.Code = splitStationCode(col(1))
		stop.Arrives = parseClockTime(col(2))
		stop.Departs = parseClockTime(col(3))
		stop.Halt = normalizeHalt(col(4))
		stop.Distance = digitsOnly(col(5))
		stop.AvgDelay = parseAverageDelay(col(6))
		if day := col(7); day != "" {
			stop.Day = day
		}
	} else {
		stop.Station, stop.Code = splitStationCode(first)
		stop.Arrives = parseClockTime(col(1))
		stop.Departs = parseClockTime(col(2))
		stop.Distance = digitsOnly(col(3))
	}

	if stop.Station == "" {
		return ScheduleStop{}, false
	}
	if stop.Arrives == "" {
		stop.Arrives = "Start"
	}
	if stop.Departs == "" {
		stop.Departs = "End"
	}
	return stop, true
}

func isDigits(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
