package server

import (
	"net/url"
	"strconv"
	"strings"

	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/stock"
)

// parseQuery builds a stock query from URL parameters on top of the
// default query of d. A parameter that is present replaces the default even
// when empty, so "goods=" selects no goods. Set parameters are comma
// separated and may be repeated.
func parseQuery(d *stock.Data, values url.Values) (stock.Query, error) {
	q := stock.DefaultQuery(d)

	sets := map[string]*stock.Set{
		"regions":    &q.Regions,
		"areas":      &q.Areas,
		"goods":      &q.Goods,
		"legend":     &q.Legend,
		"categories": &q.Categories,
	}
	for name, dst := range sets {
		if vs, ok := values[name]; ok {
			*dst = splitSet(vs, ",")
		}
	}
	// Exact reasons may themselves contain commas, so they are only split
	// on repetition.
	if vs, ok := values["reasons"]; ok {
		q.Reasons = splitSet(vs, "")
	}

	for c := range q.Legend {
		if _, ok := stock.ParseClassification(c); !ok {
			return q, badParam("legend", c)
		}
	}

	if v := values.Get("onlyLatest"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, badParam("onlyLatest", v)
		}
		q.OnlyLatest = b
	}
	if v := values.Get("sortBy"); v != "" {
		f, ok := stock.ParseSortField(v)
		if !ok {
			return q, badParam("sortBy", v)
		}
		q.SortBy = f
	}
	if v := values.Get("sortOrder"); v != "" {
		o, ok := stock.ParseSortOrder(v)
		if !ok {
			return q, badParam("sortOrder", v)
		}
		q.SortOrder = o
	}
	q.SortArea = values.Get("sortArea")
	return q, nil
}

func splitSet(values []string, sep string) stock.Set {
	s := stock.NewSet()
	for _, v := range values {
		parts := []string{v}
		if sep != "" {
			parts = strings.Split(v, sep)
		}
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				s.Add(p)
			}
		}
	}
	return s
}

func badParam(name, value string) error {
	return rlerrors.New(rlerrors.CodeInvalidFormat, "invalid query parameter").
		WithContext("param", name).WithContext("value", value)
}
