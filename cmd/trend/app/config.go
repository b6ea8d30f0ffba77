package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	OutputFile    string
	Format        ImageFormat
	FontPath      string
	From          *time.Time
	To            *time.Time
	TimeZone      *time.Location
	Width         int
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		TimeZone: time.UTC,
		Width:    1200,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, from, to, tz string
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TrueType font file for annotations")
	flag.StringVar(&from, "from", "", "Start of the time range, RFC 3339 (default: full stored range)")
	flag.StringVar(&to, "to", "", "End of the time range, RFC 3339 (default: full stored range)")
	flag.StringVar(&tz, "tz", "UTC", "Timezone for time axis labels")
	flag.IntVar(&c.Width, "w", 1200, "Chart width in pixels")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and value scales")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if !c.NoAnnotations && c.FontPath == "" {
		err = errors.New("font path is required unless annotations are disabled")
	} else if c.Width < 400 {
		err = fmt.Errorf("chart width %d is too small, minimum is 400", c.Width)
	}

	if err == nil && from != "" {
		var t time.Time
		if t, err = time.Parse(time.RFC3339, from); err == nil {
			c.From = &t
		}
	}
	if err == nil && to != "" {
		var t time.Time
		if t, err = time.Parse(time.RFC3339, to); err == nil {
			c.To = &t
		}
	}
	if err == nil && c.From != nil && c.To != nil && !c.From.Before(*c.To) {
		err = errors.New("from must precede to")
	}
	if err == nil {
		c.TimeZone, err = time.LoadLocation(tz)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
