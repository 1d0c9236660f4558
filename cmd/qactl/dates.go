package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const dateLayout = "2006-01-02"

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDate YYYY-MM-DD, or a natural-language expression relative to base.
// The result is truncated to its calendar day.
func parseDate(s string, base time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(dateLayout, s, base.Location()); err == nil {
		return t, nil
	}
	r, err := dateParser.Parse(s, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot understand date %q", s)
	}
	return engine.DateOf(r.Time), nil
}
