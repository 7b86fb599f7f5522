/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/adapters/telegram"
	"github.com/HamedShams/portfolio-pulse/internal/analytics"
)

const digestTopEpics = 5

// KPIs is the compact portfolio state fed to the digest and the LLM.
type KPIs struct {
	TakenAt          time.Time                       `json:"takenAt"`
	Epics            int                             `json:"epics"`
	EpicHealth       map[analytics.HealthVerdict]int `json:"epicHealth"`
	InitiativeHealth map[analytics.HealthVerdict]int `json:"initiativeHealth"`
	Blocked          []string                        `json:"blocked"`
	WIP              int                             `json:"wip"`
	WIPAverageAge    int                             `json:"wipAverageAgeDays"`
	LastThroughput   *analytics.ThroughputPoint      `json:"lastThroughput,omitempty"`
	LeadTimeP50      int                             `json:"leadTimeP50Days"`
	LeadTimeP85      int                             `json:"leadTimeP85Days"`
	TopWSJF          []analytics.PrioritizedEpic     `json:"topWsjf"`
	Forecast         analytics.ForecastReport        `json:"forecast"`
}

func (s *Service) kpis(ctx context.Context, p portfolio) (KPIs, error) {
	k := KPIs{
		TakenAt:          p.snap.TakenAt,
		Epics:            len(p.views),
		EpicHealth:       map[analytics.HealthVerdict]int{},
		InitiativeHealth: map[analytics.HealthVerdict]int{},
		Blocked:          []string{},
	}
	for _, v := range p.views {
		k.EpicHealth[v.Health.Verdict]++
		if v.Health.Verdict == analytics.HealthBlocked {
			k.Blocked = append(k.Blocked, v.Key)
		}
	}
	for _, in := range s.engine.AggregateInitiatives(p.snap.Initiatives, p.views) {
		k.InitiativeHealth[in.Health]++
	}
	wip := s.engine.ComputeWIP(p.views, p.snap.Initiatives)
	k.WIP, k.WIPAverageAge = wip.Total, wip.AverageAgeDays

	tp, err := s.engine.ComputeThroughput(p.views, analytics.PeriodMonth)
	if err != nil {
		return KPIs{}, err
	}
	if len(tp) > 0 {
		last := tp[len(tp)-1]
		k.LastThroughput = &last
	}
	lt := s.engine.ComputeLeadCycleTime(p.views).LeadTime
	k.LeadTimeP50, k.LeadTimeP85 = lt.Percentiles["p50"], lt.Percentiles["p85"]

	pr := s.engine.Prioritize(p.views, s.cfg.Mapping)
	k.TopWSJF = pr.Epics[:min(digestTopEpics, len(pr.Epics))]

	k.Forecast, err = s.forecast(ctx, p, OpenRemaining, 0)
	if err != nil {
		return KPIs{}, err
	}
	return k, nil
}

// RunWeeklyDigest renders the portfolio digest and sends it to every
// configured chat. The LLM narrative is optional.
func (s *Service) RunWeeklyDigest(ctx context.Context) error {
	runID, err := s.store.StartJobRun(ctx, "digest")
	if err != nil {
		s.log.Warn().Err(err).Msg("digest: job run not recorded")
	}
	epics, err := s.weeklyDigest(ctx)
	if runID > 0 {
		if ferr := s.store.FinishJobRun(ctx, runID, epics, err); ferr != nil {
			s.log.Warn().Err(ferr).Msg("digest: finish job run failed")
		}
	}
	return err
}

func (s *Service) weeklyDigest(ctx context.Context) (int, error) {
	p, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	k, err := s.kpis(ctx, p)
	if err != nil {
		return 0, err
	}
	narrative := ""
	if s.llm != nil && strings.TrimSpace(s.cfg.OpenAIKey) != "" {
		if narrative, err = s.llm.Summarize(ctx, k); err != nil {
			s.log.Warn().Err(err).Msg("digest: summary unavailable")
			narrative = ""
		}
	}
	digest := renderDigest(k, narrative)
	if s.tg == nil || len(s.cfg.TelegramChatIDs) == 0 {
		s.log.Info().Int("chars", len(digest)).Msg("digest: no chats configured, not sent")
		return k.Epics, nil
	}
	parts := telegram.Chunk(digest, telegram.MaxMessage)
	var firstErr error
	for _, chat := range s.cfg.TelegramChatIDs {
		for _, part := range parts {
			err := s.tg.SendMarkdownV2(ctx, chat, part)
			if err != nil {
				// entity parse errors still deliver as plain text
				s.log.Warn().Err(err).Int64("chat", chat).Msg("digest: markdown rejected, sending plain")
				err = s.tg.SendPlain(ctx, chat, part)
			}
			if err != nil {
				s.log.Error().Err(err).Int64("chat", chat).Msg("digest: send failed")
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}
	s.log.Info().Int("chats", len(s.cfg.TelegramChatIDs)).Int("parts", len(parts)).Msg("digest: sent")
	return k.Epics, firstErr
}

var verdictOrder = []analytics.HealthVerdict{
	analytics.HealthOnTrack, analytics.HealthAtRisk, analytics.HealthBlocked, analytics.HealthNoData, analytics.HealthDone,
}

// renderDigest builds the MarkdownV2 message. Every dynamic value is escaped.
func renderDigest(k KPIs, narrative string) string {
	esc := telegram.Escape
	b := &strings.Builder{}
	fmt.Fprintf(b, "*%s*\n", esc("Portfolio Pulse"))
	fmt.Fprintf(b, "%s\n\n", esc("Snapshot "+k.TakenAt.Format("2006-01-02 15:04 MST")))

	fmt.Fprintf(b, "*Epics:* %d\n", k.Epics)
	for _, v := range verdictOrder {
		if n := k.EpicHealth[v]; n > 0 {
			fmt.Fprintf(b, "%s %d\n", esc("- "+string(v)+":"), n)
		}
	}
	if len(k.Blocked) > 0 {
		fmt.Fprintf(b, "*Blocked:* %s\n", esc(strings.Join(k.Blocked, ", ")))
	}
	atRisk := k.InitiativeHealth[analytics.HealthAtRisk] + k.InitiativeHealth[analytics.HealthBlocked]
	fmt.Fprintf(b, "*Initiatives needing attention:* %d\n\n", atRisk)

	fmt.Fprintf(b, "*WIP:* %d %s\n", k.WIP, esc(fmt.Sprintf("(avg age %dd)", k.WIPAverageAge)))
	if k.LastThroughput != nil {
		fmt.Fprintf(b, "*Throughput %s:* %d\n", esc(k.LastThroughput.Period), k.LastThroughput.Completed)
	}
	fmt.Fprintf(b, "*Lead time:* %s\n\n", esc(fmt.Sprintf("p50 %dd, p85 %dd", k.LeadTimeP50, k.LeadTimeP85)))

	if len(k.TopWSJF) > 0 {
		fmt.Fprintf(b, "*Top WSJF:*\n")
		for i, e := range k.TopWSJF {
			fmt.Fprintf(b, "%d\\. %s\n", i+1, esc(fmt.Sprintf("%s %s (%.2f, %s)", e.Key, e.Summary, e.WSJF.Score, e.MoSCoW.Category)))
		}
		b.WriteString("\n")
	}

	if k.Forecast.InsufficientData {
		fmt.Fprintf(b, "*Forecast:* %s\n", esc(k.Forecast.Message))
	} else if p85, ok := k.Forecast.Percentiles["p85"]; ok {
		fmt.Fprintf(b, "*Forecast:* %s\n", esc(fmt.Sprintf("%d open epics, 85%% by %s (%d months)",
			k.Forecast.RemainingItems, p85.Date.Format("2006-01-02"), p85.Periods)))
	}
	if narrative != "" {
		fmt.Fprintf(b, "\n%s\n", esc(narrative))
	}
	return b.String()
}
