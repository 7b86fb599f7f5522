/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
)

// Normalizer turns raw Jira issue JSON into domain values. Field ids for
// the custom fields differ per Jira instance, so they are configurable.
type Normalizer struct {
	StoryPointsField string
	ParentField      string
	EpicLinkField    string
	TargetStartField string
	TargetEndField   string
}

func fieldsOf(issue map[string]any) map[string]any {
	f, _ := issue["fields"].(map[string]any)
	if f == nil {
		return map[string]any{}
	}
	return f
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// nested walks maps by key and returns the string at the end of the path.
func nested(m map[string]any, path ...string) string {
	var cur any = m
	for _, p := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = mm[p]
	}
	return str(cur)
}

func statusCategory(fields map[string]any) domain.StatusCategory {
	return domain.ParseStatusCategory(nested(fields, "status", "statusCategory", "key"))
}

func points(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func (n Normalizer) storyPoints(fields map[string]any) (float64, bool) {
	if n.StoryPointsField == "" {
		return 0, false
	}
	return points(fields[n.StoryPointsField])
}

// refKey reads an issue reference stored either as a key string or as an
// issue object.
func refKey(fields map[string]any, id string) string {
	if id == "" {
		return ""
	}
	switch v := fields[id].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return str(v["key"])
	}
	return ""
}

// parentKey is the initiative an epic rolls up to: the configured parent
// field first, then the native parent.
func (n Normalizer) parentKey(fields map[string]any) string {
	if k := refKey(fields, n.ParentField); k != "" {
		return k
	}
	return nested(fields, "parent", "key")
}

// epicKey is the epic a child belongs to. Server/DC links stories through
// the Epic Link field; Cloud uses the native parent.
func (n Normalizer) epicKey(fields map[string]any) string {
	if k := refKey(fields, n.EpicLinkField); k != "" {
		return k
	}
	if k := nested(fields, "epic", "key"); k != "" {
		return k
	}
	return nested(fields, "parent", "key")
}

func (n Normalizer) NormalizeInitiative(issue map[string]any) domain.Initiative {
	f := fieldsOf(issue)
	return domain.Initiative{
		Key:            str(issue["key"]),
		Summary:        str(f["summary"]),
		StatusCategory: statusCategory(f),
	}
}

// NormalizeChild returns the child and the key of the epic it belongs to.
func (n Normalizer) NormalizeChild(issue map[string]any) (domain.ChildIssue, string) {
	f := fieldsOf(issue)
	c := domain.ChildIssue{Key: str(issue["key"]), StatusCategory: statusCategory(f)}
	if pts, ok := n.storyPoints(f); ok && pts > 0 {
		c.StoryPoints = pts
	}
	return c, n.epicKey(f)
}

// NormalizeEpic maps the epic fields. Children are attached by the caller.
func (n Normalizer) NormalizeEpic(issue map[string]any) domain.Epic {
	f := fieldsOf(issue)
	ep := domain.Epic{
		Key:            str(issue["key"]),
		Summary:        str(f["summary"]),
		Status:         nested(f, "status", "name"),
		StatusCategory: statusCategory(f),
		Priority:       nested(f, "priority", "name"),
		Assignee:       nested(f, "assignee", "displayName"),
		Labels:         labels(f["labels"]),
		Created:        domain.ParseTime(f["created"]),
		DueDate:        domain.ParseTime(f["duedate"]),
		Resolved:       domain.ParseTime(f["resolutiondate"]),
		InitiativeKey:  n.parentKey(f),
		Dependencies:   links(f["issuelinks"]),
		Fields:         f,
	}
	if ep.Assignee == "" {
		ep.Assignee = nested(f, "assignee", "name")
	}
	if n.TargetStartField != "" {
		ep.TargetStart = domain.ParseTime(f[n.TargetStartField])
	}
	if n.TargetEndField != "" {
		ep.TargetEnd = domain.ParseTime(f[n.TargetEndField])
	}
	if pts, ok := n.storyPoints(f); ok {
		ep.StoryPoints = &pts
	}
	return ep
}

func labels(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, l := range arr {
		if s := str(l); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// links splits issuelinks into blocking, blocked-by and everything else.
// For the Blocks link type the outward side is the issue this epic blocks.
func links(v any) domain.Dependencies {
	deps := domain.Dependencies{Blocks: []domain.Link{}, BlockedBy: []domain.Link{}, RelatesTo: []domain.Link{}}
	arr, _ := v.([]any)
	for _, raw := range arr {
		l, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		blocking := isBlockType(l["type"])
		if out, ok := l["outwardIssue"].(map[string]any); ok {
			link := domain.Link{Key: str(out["key"]), Status: nested(out, "fields", "status", "name")}
			if blocking {
				deps.Blocks = append(deps.Blocks, link)
			} else {
				deps.RelatesTo = append(deps.RelatesTo, link)
			}
		}
		if in, ok := l["inwardIssue"].(map[string]any); ok {
			link := domain.Link{Key: str(in["key"]), Status: nested(in, "fields", "status", "name")}
			if blocking {
				deps.BlockedBy = append(deps.BlockedBy, link)
			} else {
				deps.RelatesTo = append(deps.RelatesTo, link)
			}
		}
	}
	return deps
}

func isBlockType(v any) bool {
	t, _ := v.(map[string]any)
	if t == nil {
		return false
	}
	if strings.EqualFold(str(t["name"]), "blocks") {
		return true
	}
	return strings.Contains(strings.ToLower(str(t["inward"])), "blocked by")
}
