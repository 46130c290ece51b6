// Package flow builds the page to page transition graph of sessions.
package flow

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/store"
)

type Node struct {
	ID string `json:"id"`
}

// Link is a transition from Source to Target made by Value sessions.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int64  `json:"value"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

type Analyzer struct {
	db *store.DB
	// collapse folds consecutive views of the same page before edges are
	// built. When false reloads show up as self edges.
	collapse bool
	log      *slog.Logger
}

func New(db *store.DB, collapseReloads bool, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{db: db, collapse: collapseReloads, log: log.With("component", "flow")}
}

// Visit is one pageview of a session.
type Visit struct {
	SessionID string `gorm:"column:psid"`
	Page      string `gorm:"column:pg"`
}

func (a *Analyzer) UserFlow(ctx context.Context, q query.Query) (*Graph, error) {
	if q.CustomEvent {
		return nil, errs.Invalid("user flow can not be filtered by custom events")
	}
	where, args := q.Where("")
	var visits []Visit
	err := a.db.Select(ctx, "user_flow", &visits,
		`SELECT psid, pg FROM `+store.TableAnalytics+` WHERE `+where+` ORDER BY psid, created, id`, args...)
	if err != nil {
		return nil, err
	}
	return Build(visits, a.collapse), nil
}

// Build computes the graph of visits ordered by session then time. A session
// adds at most one to the weight of a transition.
func Build(visits []Visit, collapse bool) *Graph {
	type edge struct{ source, target string }
	weights := map[edge]int64{}
	seen := map[edge]struct{}{}
	for i := 1; i < len(visits); i++ {
		prev, cur := visits[i-1], visits[i]
		if prev.SessionID != cur.SessionID {
			clear(seen)
			continue
		}
		if collapse && prev.Page == cur.Page {
			continue
		}
		e := edge{source: prev.Page, target: cur.Page}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		weights[e]++
	}
	g := &Graph{Nodes: []Node{}, Links: make([]Link, 0, len(weights))}
	nodes := map[string]struct{}{}
	for e, w := range weights {
		g.Links = append(g.Links, Link{Source: e.source, Target: e.target, Value: w})
		nodes[e.source] = struct{}{}
		nodes[e.target] = struct{}{}
	}
	slices.SortFunc(g.Links, func(a, b Link) int {
		return cmp.Or(
			cmp.Compare(b.Value, a.Value),
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Target, b.Target),
		)
	})
	for id := range nodes {
		g.Nodes = append(g.Nodes, Node{ID: id})
	}
	slices.SortFunc(g.Nodes, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	return g
}
