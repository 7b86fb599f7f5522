/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
	"strings"
	"time"
)

// StatusCategory is the tracker-level grouping of a workflow status.
type StatusCategory string

const (
	StatusNew           StatusCategory = "new"
	StatusIndeterminate StatusCategory = "indeterminate"
	StatusDone          StatusCategory = "done"
)

// ParseStatusCategory folds tracker spellings into a category; unknown values are new.
func ParseStatusCategory(s string) StatusCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "done", "complete", "completed":
		return StatusDone
	case "indeterminate", "in progress", "in-progress":
		return StatusIndeterminate
	default:
		return StatusNew
	}
}

type ChildIssue struct {
	Key            string         `json:"key"`
	StatusCategory StatusCategory `json:"statusCategory"`
	StoryPoints    float64        `json:"storyPoints"`
}

// Link is one side of an issue link as seen from the epic.
type Link struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

type Dependencies struct {
	Blocks    []Link `json:"blocks"`
	BlockedBy []Link `json:"blockedBy"`
	RelatesTo []Link `json:"relatesTo"`
}

type Epic struct {
	Key            string         `json:"key"`
	Summary        string         `json:"summary"`
	Status         string         `json:"status"`
	StatusCategory StatusCategory `json:"statusCategory"`
	Priority       string         `json:"priority"`
	Assignee       string         `json:"assignee"`
	Labels         []string       `json:"labels"`
	Created        *time.Time     `json:"created"`
	DueDate        *time.Time     `json:"dueDate"`
	Resolved       *time.Time     `json:"resolved"`
	TargetStart    *time.Time     `json:"targetStart"`
	TargetEnd      *time.Time     `json:"targetEnd"`
	StoryPoints    *float64       `json:"storyPoints"`
	InitiativeKey  string         `json:"initiativeKey"`
	Children       []ChildIssue   `json:"children"`
	Dependencies   Dependencies   `json:"dependencies"`
	Fields         map[string]any `json:"fields,omitempty"`
}

type Initiative struct {
	Key            string         `json:"key"`
	Summary        string         `json:"summary"`
	StatusCategory StatusCategory `json:"statusCategory"`
}

// Snapshot is one materialized pull of tracker data.
type Snapshot struct {
	ID          string       `json:"id"`
	TakenAt     time.Time    `json:"takenAt"`
	Source      string       `json:"source"`
	Initiatives []Initiative `json:"initiatives"`
	Epics       []Epic       `json:"epics"`
}

// FieldMapping points WSJF and MoSCoW inputs at tracker custom fields.
type FieldMapping struct {
	BusinessValue   string `json:"businessValue"`
	TimeCriticality string `json:"timeCriticality"`
	RiskReduction   string `json:"riskReduction"`
	JobSize         string `json:"jobSize"`
	MoSCoW          string `json:"moscow"`
}

// HasWSJF reports whether any WSJF component is mapped.
func (m *FieldMapping) HasWSJF() bool {
	if m == nil {
		return false
	}
	return m.BusinessValue != "" || m.TimeCriticality != "" || m.RiskReduction != "" || m.JobSize != ""
}
