package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vinceanalytics/beacon/internal/errs"
)

const (
	DefaultTake = 30
	MaxTake     = 150
)

// Page is the pagination window of list operations.
type Page struct {
	Take int
	Skip int
}

// ParsePage parses take and skip. take defaults to DefaultTake and is capped
// at MaxTake, skip defaults to 0.
func ParsePage(take, skip string) (Page, error) {
	p := Page{Take: DefaultTake}
	if take != "" {
		n, err := strconv.Atoi(take)
		if err != nil || n <= 0 {
			return Page{}, errs.Invalid(fmt.Sprintf("take must be a positive integer, got %q", take))
		}
		p.Take = min(n, MaxTake)
	}
	if skip != "" {
		n, err := strconv.Atoi(skip)
		if err != nil || n < 0 {
			return Page{}, errs.Invalid(fmt.Sprintf("skip must be a non negative integer, got %q", skip))
		}
		p.Skip = n
	}
	return p, nil
}

// ParseProjectIDs decodes a JSON array of project ids. Duplicates are
// removed, order is kept.
func ParseProjectIDs(raw string) ([]string, error) {
	var ls []string
	err := json.Unmarshal([]byte(raw), &ls)
	if err != nil {
		return nil, errs.Unprocessable.New("project ids must be a JSON array of strings")
	}
	if len(ls) == 0 {
		return nil, errs.Unprocessable.New("project ids must not be empty")
	}
	seen := make(map[string]struct{}, len(ls))
	o := ls[:0]
	for _, id := range ls {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errs.Unprocessable.New("project ids must not be blank")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		o = append(o, id)
	}
	return o, nil
}
