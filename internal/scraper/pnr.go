package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	pnrTrainNumberPattern = regexp.MustCompile(`(\d{5})`)
	pnrTrainNamePattern   = regexp.MustCompile(`(\d{5})\s*-\s*([A-Z][A-Z\s]*?(?:EXPRESS|EXP|MAIL|SF))\b`)
	pnrRoutePattern       = regexp.MustCompile(`([A-Za-z][A-Za-z ]*?)\s*-\s*([A-Z]{3,4}),\s*(\d{2}:\d{2})\s*→\s*([A-Za-z][A-Za-z ]*?)\s*-\s*([A-Z]{3,4}),\s*(\d{2}:\d{2})`)
	pnrJourneyPattern     = regexp.MustCompile(`([A-Za-z]{3}),\s*(\d{1,2}\s+[A-Za-z]{3})\s*\|\s*([A-Z0-9]{1,3})\s*\|\s*([A-Z]{1,3})\s*\|\s*Expected platform:\s*(\d+)`)
	pnrChartPattern       = regexp.MustCompile(`(?i)Chart (not prepared|prepared)`)
	pnrBerthPattern       = regexp.MustCompile(`(RAC|GNWL|CNF)\s*(\d+)`)
	pnrRatingPattern      = regexp.MustCompile(`(\d+\.\d+)`)
	passengerHeaderHints  = []string{"passenger", "current", "booking", "status", "coach"}
)

func parsePNRStatus(doc *goquery.Document, pnr string) PNRStatus {
	result := PNRStatus{
		PNR:         pnr,
		Passengers:  []Passenger{},
		ChartStatus: "Chart not prepared",
	}

	if match := pnrTrainNumberPattern.FindStringSubmatch(doc.Find("title").First().Text()); match != nil {
		result.TrainNumber = match[1]
	}

	leaves := leafTexts(doc)
	if match := firstMatch(leaves, pnrTrainNamePattern); match != nil {
		result.TrainNumber = match[1]
		result.TrainName = cleanText(match[2])
	}
	if match := firstMatch(leaves, pnrRoutePattern); match != nil {
		result.Journey.From = cleanText(match[1]) + " - " + match[2] + ", " + match[3]
		result.Journey.To = cleanText(match[4]) + " - " + match[5] + ", " + match[6]
	}
	if match := firstMatch(leaves, pnrJourneyPattern); match != nil {
		result.Journey.Date = match[1] + ", " + match[2]
		result.Journey.Class = match[3]
		result.Journey.Quota = match[4]
		result.Journey.Platform = match[5]
	}
	if match := pnrChartPattern.FindStringSubmatch(doc.Text()); match != nil {
		result.ChartStatus = "Chart " + strings.ToLower(match[1])
	}

	if table := findTable(doc, passengerHeaderHints); table != nil {
		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cols := row.Find("td, th")
			if cols.Length() < 3 {
				return
			}
			result.Passengers = append(result.Passengers, parsePassenger(len(result.Passengers)+1, cols))
		})
	}

	doc.Find(`span[class*="rating"], div[class*="rating"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		match := pnrRatingPattern.FindStringSubmatch(el.Text())
		if match == nil {
			return true
		}
		if rating, err := strconv.ParseFloat(match[1], 64); err == nil {
			result.Rating = &rating
			return false
		}
		return true
	})

	return result
}

func parsePassenger(index int, cols *goquery.Selection) Passenger {
	current := cols.Eq(1)
	status := cleanText(current.Text())

	passenger := Passenger{
		SrNo: strconv.Itoa(index),
		CurrentStatus: PassengerStatus{
			Status:    status,
			Available: strings.Contains(strings.ToLower(status), "available") || hasGreenSpan(current),
		},
		BookingStatus: cleanText(cols.Eq(2).Text()),
	}
	if match := pnrBerthPattern.FindStringSubmatch(status); match != nil {
		passenger.CurrentStatus.Coach = match[1]
		passenger.CurrentStatus.Berth = match[2]
	}
	if cols.Length() >= 4 {
		if coach := cleanText(cols.Eq(3).Text()); coach != "-" {
			passenger.Coach = coach
		}
	}
	return passenger
}

func hasGreenSpan(sel *goquery.Selection) bool {
	found := false
	sel.Find("span[style]").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		style, _ := span.Attr("style")
		found = strings.Contains(strings.ToLower(style), "green")
		return !found
	})
	return found
}

// leafTexts returns the cleaned text of every element without child
// elements, in document order.
func leafTexts(doc *goquery.Document) []string {
	var texts []string
	doc.Find("body *").Each(func(_ int, el *goquery.Selection) {
		if el.Children().Length() > 0 {
			return
		}
		if text := cleanText(el.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}

func firstMatch(texts []string, pattern *regexp.Regexp) []string {
	for _, text := range texts {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return match
		}
	}
	return nil
}
