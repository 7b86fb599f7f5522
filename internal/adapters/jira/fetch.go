/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
)

// childBatch bounds the number of epic keys in one child search.
const childBatch = 50

// Query selects what a snapshot pulls from Jira.
type Query struct {
	Projects       []string
	EpicJQL        string
	InitiativeJQL  string
	Workers        int
	// DiscoverFields looks up unset custom field ids by name before fetching.
	DiscoverFields bool
}

func QueryFromConfig(cfg config.Config) Query {
	return Query{
		Projects:       cfg.JiraProjects,
		EpicJQL:        cfg.JiraEpicJQL,
		InitiativeJQL:  cfg.JiraInitiativeJQL,
		Workers:        cfg.WorkersJira,
		DiscoverFields: cfg.JiraDiscoverFields,
	}
}

func NormalizerFromConfig(cfg config.Config) Normalizer {
	return Normalizer{
		StoryPointsField: cfg.StoryPointsField,
		ParentField:      cfg.ParentField,
		EpicLinkField:    cfg.EpicLinkField,
		TargetStartField: cfg.TargetStartField,
		TargetEndField:   cfg.TargetEndField,
	}
}

func (q Query) jql(custom, issueType string) (string, error) {
	if strings.TrimSpace(custom) != "" {
		return custom, nil
	}
	if len(q.Projects) == 0 {
		return "", errors.New("jira: no projects and no jql configured")
	}
	return fmt.Sprintf("project in (%s) AND issuetype = %s ORDER BY created ASC", strings.Join(q.Projects, ","), issueType), nil
}

// FetchSnapshot pulls initiatives, epics and their children. Children are
// fetched in key batches by a bounded worker pool.
func (c *Client) FetchSnapshot(ctx context.Context, q Query, n Normalizer) (domain.Snapshot, error) {
	snap := domain.Snapshot{TakenAt: time.Now().UTC(), Source: "jira"}
	if q.DiscoverFields {
		n = c.DiscoverFields(ctx, n)
	}

	initJQL, err := q.jql(q.InitiativeJQL, "Initiative")
	if err != nil {
		return snap, err
	}
	rawInits, err := c.SearchAll(ctx, initJQL)
	if err != nil {
		return snap, fmt.Errorf("fetch initiatives: %w", err)
	}
	for _, it := range rawInits {
		if in := n.NormalizeInitiative(it); in.Key != "" {
			snap.Initiatives = append(snap.Initiatives, in)
		}
	}

	epicJQL, err := q.jql(q.EpicJQL, "Epic")
	if err != nil {
		return snap, err
	}
	rawEpics, err := c.SearchAll(ctx, epicJQL)
	if err != nil {
		return snap, fmt.Errorf("fetch epics: %w", err)
	}
	keys := make([]string, 0, len(rawEpics))
	for _, it := range rawEpics {
		ep := n.NormalizeEpic(it)
		if ep.Key == "" {
			continue
		}
		snap.Epics = append(snap.Epics, ep)
		keys = append(keys, ep.Key)
	}

	children, err := c.fetchChildren(ctx, keys, q.Workers, n)
	if err != nil {
		return snap, err
	}
	for i := range snap.Epics {
		snap.Epics[i].Children = children[snap.Epics[i].Key]
		if snap.Epics[i].Children == nil {
			snap.Epics[i].Children = []domain.ChildIssue{}
		}
	}
	c.log.Info().Int("initiatives", len(snap.Initiatives)).Int("epics", len(snap.Epics)).Msg("jira: snapshot fetched")
	return snap, nil
}

func batches(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > 0 {
		n := min(size, len(keys))
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}

// childJQL matches children of the given epics by native parent and, when
// known, by Epic Link.
func childJQL(keys []string, epicLinkField string) string {
	list := strings.Join(keys, ",")
	if epicLinkField == "" {
		return fmt.Sprintf("parent in (%s)", list)
	}
	clause := `"Epic Link"`
	if id, ok := strings.CutPrefix(epicLinkField, "customfield_"); ok {
		clause = "cf[" + id + "]"
	}
	return fmt.Sprintf("(%s in (%s) OR parent in (%s))", clause, list, list)
}

func (c *Client) fetchChildren(ctx context.Context, epicKeys []string, workers int, n Normalizer) (map[string][]domain.ChildIssue, error) {
	if workers <= 0 {
		workers = 6
	}
	var (
		mu       sync.Mutex
		firstErr error
		out      = make(map[string][]domain.ChildIssue, len(epicKeys))
		wg       sync.WaitGroup
		jobs     = make(chan []string)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				issues, err := c.SearchAll(ctx, childJQL(batch, n.EpicLinkField))
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("fetch children: %w", err)
					}
				} else {
					for _, it := range issues {
						child, parent := n.NormalizeChild(it)
						if child.Key != "" && parent != "" {
							out[parent] = append(out[parent], child)
						}
					}
				}
				mu.Unlock()
			}
		}()
	}
	for _, b := range batches(epicKeys, childBatch) {
		jobs <- b
	}
	close(jobs)
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Payload is the Jira-shaped body accepted by snapshot ingestion: raw
// issues exactly as the search API returns them.
type Payload struct {
	Initiatives []map[string]any `json:"initiatives"`
	Epics       []EpicPayload    `json:"epics"`
}

type EpicPayload struct {
	Issue    map[string]any   `json:"issue"`
	Children []map[string]any `json:"children"`
}

// Build normalizes a pushed payload. Children belong to the epic they are
// nested under regardless of their own parent field.
func (n Normalizer) Build(p Payload) domain.Snapshot {
	snap := domain.Snapshot{TakenAt: time.Now().UTC(), Source: "push"}
	for _, raw := range p.Initiatives {
		snap.Initiatives = append(snap.Initiatives, n.NormalizeInitiative(raw))
	}
	for _, e := range p.Epics {
		ep := n.NormalizeEpic(e.Issue)
		ep.Children = make([]domain.ChildIssue, 0, len(e.Children))
		for _, raw := range e.Children {
			c, _ := n.NormalizeChild(raw)
			ep.Children = append(ep.Children, c)
		}
		snap.Epics = append(snap.Epics, ep)
	}
	return snap
}
