package exifdata

import "strings"

// ResolveCoordinates converts raw GPS sexagesimal rationals plus hemisphere
// references into signed decimal degrees. Anything missing or malformed
// resolves to (nil, nil); a bad GPS block must never abort an ingestion run.
func ResolveCoordinates(gps *GPSInfo) (*float64, *float64) {
	if gps == nil || gps.LatitudeRef == "" || gps.LongitudeRef == "" {
		return nil, nil
	}

	lat, ok := toDegrees(gps.Latitude)
	if !ok {
		return nil, nil
	}
	lon, ok := toDegrees(gps.Longitude)
	if !ok {
		return nil, nil
	}

	if strings.EqualFold(gps.LatitudeRef, "S") {
		lat = -lat
	}
	if strings.EqualFold(gps.LongitudeRef, "W") {
		lon = -lon
	}
	return &lat, &lon
}

// toDegrees folds a (degrees, minutes, seconds) triple into decimal degrees.
func toDegrees(parts []Rational) (float64, bool) {
	if len(parts) != 3 {
		return 0, false
	}
	var vals [3]float64
	for i, p := range parts {
		if p.Den == 0 {
			return 0, false
		}
		vals[i] = float64(p.Num) / float64(p.Den)
	}
	return vals[0] + vals[1]/60.0 + vals[2]/3600.0, true
}
