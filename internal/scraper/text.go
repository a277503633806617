package scraper

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	whitespacePattern     = regexp.MustCompile(`\s+`)
	stationCodeSuffix     = regexp.MustCompile(`\s*-\s*[A-Z]{2,5}$`)
	stationTypeSuffix     = regexp.MustCompile(`(?i)\s+(?:Jn|Junction|Junc|Stn|Station|Halt|H|Terminal|Term)\.?$`)
	stationWithCode       = regexp.MustCompile(`^(.*?)\s*-\s*([A-Z]{2,5})$`)
	clockTimePattern      = regexp.MustCompile(`(\d{1,2}:\d{2})`)
	delayPattern          = regexp.MustCompile(`(?i)(?:Late by|Delay(?:ed)? by|Running late by)\s+(\d+)\s*(?:min|minutes|hrs|hours)`)
	haltPattern           = regexp.MustCompile(`(?i)(\d+)\s*(?:min|m)`)
	nonNumericPattern     = regexp.MustCompile(`[^\d.]`)
	titleSuffixPattern    = regexp.MustCompile(`(?i)\s*(?:Train Route|Train Schedule|Running Status|Live Status|Train running status|Spot your train|\|).*$`)
	trainNumberPattern    = regexp.MustCompile(`^\d{5}$`)
	pnrNumberPattern      = regexp.MustCompile(`^\d{10}$`)
	weekdayListPattern    = regexp.MustCompile(`(?i)(?:Running|Runs)\s+(?:Days|on|every)\s*[:\s]*((?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)(?:\s*[,&]\s*(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun))*)`)
	weekdayOnlyPattern    = regexp.MustCompile(`(?i)((?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)(?:\s*[,&]\s*(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun))*)\s+only`)
	weekdaySeparatorRegex = regexp.MustCompile(`\s*[,&]\s*`)
)

func cleanText(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// cleanStationName drops a trailing station code and station-type suffix.
func cleanStationName(text string) string {
	text = cleanText(text)
	text = stationCodeSuffix.ReplaceAllString(text, "")
	text = stationTypeSuffix.ReplaceAllString(text, "")
	return cleanText(text)
}

func splitStationCode(text string) (string, string) {
	text = cleanText(text)
	if match := stationWithCode.FindStringSubmatch(text); match != nil {
		return cleanStationName(match[1]), match[2]
	}
	return cleanStationName(text), ""
}

func parseClockTime(text string) string {
	if match := clockTimePattern.FindStringSubmatch(text); match != nil {
		return match[1]
	}
	return ""
}

func parseAverageDelay(text string) string {
	if match := delayPattern.FindStringSubmatch(text); match != nil {
		return match[1] + " Min"
	}
	return ""
}

func normalizeHalt(text string) string {
	text = cleanText(text)
	if match := haltPattern.FindStringSubmatch(text); match != nil {
		return match[1] + "m"
	}
	return text
}

func digitsOnly(text string) string {
	return nonNumericPattern.ReplaceAllString(text, "")
}

// trainNameFromHeading extracts NAME from "12345 - NAME ..." style text.
func trainNameFromHeading(text, trainNumber string) string {
	text = titleSuffixPattern.ReplaceAllString(cleanText(text), "")
	pattern := regexp.MustCompile(fmt.Sprintf(`%s\s*[-/]\s*([^-/]+)`, regexp.QuoteMeta(trainNumber)))
	if match := pattern.FindStringSubmatch(text); match != nil {
		if name := cleanText(match[1]); name != "" && name != trainNumber {
			return name
		}
	}
	return ""
}

func runningDays(pageText string) string {
	if strings.Contains(pageText, "Daily") || strings.Contains(pageText, "All Days") {
		return "Daily"
	}
	for _, pattern := range []*regexp.Regexp{weekdayListPattern, weekdayOnlyPattern} {
		if match := pattern.FindStringSubmatch(pageText); match != nil {
			return cleanText(weekdaySeparatorRegex.ReplaceAllString(match[1], ", "))
		}
	}
	return "Daily"
}

func validTrainNumber(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !trainNumberPattern.MatchString(trimmed) {
		return "", ErrInvalidTrainNumber
	}
	return trimmed, nil
}

func validPNR(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !pnrNumberPattern.MatchString(trimmed) {
		return "", ErrInvalidPNR
	}
	return trimmed, nil
}
