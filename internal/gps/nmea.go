package gps

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/errors"
)

// Fix is one position report from the receiver
type Fix struct {
	Time       time.Time // UTC, date taken from the local clock at receipt
	Latitude   float64   // decimal degrees, north positive
	Longitude  float64   // decimal degrees, east positive
	Altitude   float64   // metres above mean sea level
	Quality    int       // GGA fix quality, 0 means invalid
	Satellites int
}

// ErrNoFix is returned for well-formed sentences that carry no position
var ErrNoFix = errors.NewStd("sentence carries no fix")

// ParseGGA decodes a $GPGGA or $GNGGA sentence. The checksum is verified
// when present. now supplies the date for the time-of-day field.
func ParseGGA(line string, now time.Time) (Fix, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, parseError(line, "missing sentence start")
	}

	body := line[1:]
	if star := strings.IndexByte(body, '*'); star >= 0 {
		if err := verifyChecksum(body[:star], body[star+1:]); err != nil {
			return Fix{}, parseError(line, err.Error())
		}
		body = body[:star]
	}

	fields := strings.Split(body, ",")
	if len(fields) < 10 {
		return Fix{}, parseError(line, "too few fields")
	}
	if len(fields[0]) != 5 || fields[0][2:] != "GGA" {
		return Fix{}, parseError(line, "not a GGA sentence")
	}

	quality, err := strconv.Atoi(fields[6])
	if err != nil {
		return Fix{}, parseError(line, "bad fix quality")
	}
	if quality == 0 || fields[2] == "" || fields[4] == "" {
		return Fix{}, ErrNoFix
	}

	lat, err := parseCoordinate(fields[2], fields[3], 2)
	if err != nil {
		return Fix{}, parseError(line, err.Error())
	}
	lon, err := parseCoordinate(fields[4], fields[5], 3)
	if err != nil {
		return Fix{}, parseError(line, err.Error())
	}

	fix := Fix{Latitude: lat, Longitude: lon, Quality: quality}
	fix.Satellites, _ = strconv.Atoi(fields[7])
	if fields[9] != "" {
		if fix.Altitude, err = strconv.ParseFloat(fields[9], 64); err != nil {
			return Fix{}, parseError(line, "bad altitude")
		}
	}
	if fix.Time, err = parseTimeOfDay(fields[1], now); err != nil {
		return Fix{}, parseError(line, err.Error())
	}
	return fix, nil
}

func parseError(line, reason string) error {
	return errors.Newf("invalid NMEA sentence: %s", reason).
		Component("gps").
		Category(errors.CategoryGPS).
		Context("sentence", line).
		Build()
}

func verifyChecksum(body, sum string) error {
	want, err := strconv.ParseUint(strings.TrimSpace(sum), 16, 8)
	if err != nil {
		return fmt.Errorf("bad checksum field %q", sum)
	}
	var got byte
	for i := 0; i < len(body); i++ {
		got ^= body[i]
	}
	if got != byte(want) {
		return fmt.Errorf("checksum mismatch: got %02X want %02X", got, want)
	}
	return nil
}

// parseCoordinate converts ddmm.mmmm / dddmm.mmmm plus hemisphere to degrees
func parseCoordinate(value, hemi string, degDigits int) (float64, error) {
	if len(value) < degDigits+2 {
		return 0, fmt.Errorf("short coordinate %q", value)
	}
	deg, err := strconv.Atoi(value[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("bad coordinate %q", value)
	}
	minutes, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate %q", value)
	}

	out := float64(deg) + minutes/60
	switch hemi {
	case "N", "E":
	case "S", "W":
		out = -out
	default:
		return 0, fmt.Errorf("bad hemisphere %q", hemi)
	}
	return out, nil
}

func parseTimeOfDay(value string, now time.Time) (time.Time, error) {
	if len(value) < 6 {
		return time.Time{}, fmt.Errorf("bad time %q", value)
	}
	hh, err1 := strconv.Atoi(value[0:2])
	mm, err2 := strconv.Atoi(value[2:4])
	secs, err3 := strconv.ParseFloat(value[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("bad time %q", value)
	}

	now = now.UTC()
	whole := int(secs)
	nanos := int((secs - float64(whole)) * 1e9)
	return time.Date(now.Year(), now.Month(), now.Day(), hh, mm, whole, nanos, time.UTC), nil
}
