package support

import (
	"fmt"

	"github.com/oschwald/geoip2-golang"
)

// GeoLocator resolves proxy hosts to ISO country codes. A nil locator answers
// every lookup with "".
type GeoLocator struct {
	reader *geoip2.Reader
}

func OpenGeoLocator(path string) (*GeoLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &GeoLocator{reader: reader}, nil
}

// CountryCode only resolves literal IP hosts.
func (g *GeoLocator) CountryCode(proxyAddress string) string {
	if g == nil || g.reader == nil {
		return ""
	}
	ip := ProxyIP(proxyAddress)
	if ip == nil {
		return ""
	}
	record, err := g.reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (g *GeoLocator) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}
