package core

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/sinan/internal/table"
)

// Count is one category of a breakdown. Percent is relative to the
// summarised row total, so multi-label breakdowns can exceed 100 overall.
type Count struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary is the set of breakdowns shown next to the processed table.
type Summary struct {
	Total int `json:"total"`

	ByYear         []Count `json:"by_year"`
	ByMonth        []Count `json:"by_month"`
	ByUF           []Count `json:"by_uf"`
	ByAgeBucket    []Count `json:"by_age_bucket"`
	BySex          []Count `json:"by_sex"`
	ByViolenceType []Count `json:"by_violence_type"`
	ByRelationship []Count `json:"by_relationship"`
	ByAggressorSex []Count `json:"by_aggressor_sex"`
	ByLocation     []Count `json:"by_location"`
	ByRace         []Count `json:"by_race"`
	ByEducation    []Count `json:"by_education"`
	ByReferral     []Count `json:"by_referral"`

	// ReportDelaySamples rows had a usable TEMPO_OCOR_DENUNCIA.
	ReportDelaySamples  int     `json:"report_delay_samples"`
	MeanReportDelayDays float64 `json:"mean_report_delay_days"`
}

// Summarize computes every breakdown of t. An empty table yields zero
// counts and zero percentages.
func Summarize(t *table.Table) Summary {
	s := Summary{Total: t.Len()}

	s.ByYear = byLabel(countColumn(t, ColAnoNotific, false), s.Total)
	s.ByMonth = byLabel(countMonths(t), s.Total)
	s.ByUF = byCount(countColumn(t, ColUFNotific, false), s.Total)
	s.ByAgeBucket = ordered(countColumn(t, ColFaixaEtaria, false), AgeBuckets, s.Total)
	s.BySex = byCount(countColumn(t, ColSexoNorm, false), s.Total)
	s.ByViolenceType = byCount(countColumn(t, ColTipoViolencia, true), s.Total)
	s.ByRelationship = byCount(countColumn(t, ColGrauParentesco, true), s.Total)
	s.ByAggressorSex = byCount(countColumn(t, ColAutorSexoCorr, false), s.Total)
	s.ByLocation = byCount(countColumn(t, ColLocalOcorrencia, false), s.Total)
	s.ByRace = byCount(countColumn(t, ColRaca, false), s.Total)
	s.ByEducation = byCount(countColumn(t, ColEscolaridade, false), s.Total)
	s.ByReferral = byCount(countColumn(t, ColEncJustica, true), s.Total)

	sum := 0
	for _, c := range t.Column(ColTempoDenuncia) {
		if d, ok := ParseInt(c); ok {
			sum += d
			s.ReportDelaySamples++
		}
	}
	if s.ReportDelaySamples > 0 {
		s.MeanReportDelayDays = float64(sum) / float64(s.ReportDelaySamples)
	}
	return s
}

// countColumn tallies a column. Nulls count as "Não informado"; split
// breaks combined ", "-joined labels into their parts.
func countColumn(t *table.Table, column string, split bool) map[string]int {
	counts := make(map[string]int)
	for _, c := range t.Column(column) {
		if c.IsBlank() {
			counts[LabelNaoInformado]++
			continue
		}
		if !split {
			counts[c.String]++
			continue
		}
		for _, part := range splitLabels(c) {
			counts[part]++
		}
	}
	return counts
}

func countMonths(t *table.Table) map[string]int {
	counts := make(map[string]int)
	for _, c := range t.Column(ColDataNotificacao) {
		if d, ok := ParseDate(c); ok {
			counts[fmt.Sprintf("%02d", int(d.Month()))]++
		}
	}
	return counts
}

func toCounts(m map[string]int, total int) []Count {
	out := make([]Count, 0, len(m))
	for label, n := range m {
		out = append(out, Count{Label: label, Count: n, Percent: percent(n, total)})
	}
	return out
}

// byCount orders by descending count, then label.
func byCount(m map[string]int, total int) []Count {
	out := toCounts(m, total)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// byLabel orders by label; used for years and months.
func byLabel(m map[string]int, total int) []Count {
	out := toCounts(m, total)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// ordered lists the known labels first in the given order, then any other
// label by count.
func ordered(m map[string]int, labels []string, total int) []Count {
	var out []Count
	rest := make(map[string]int, len(m))
	for k, v := range m {
		rest[k] = v
	}
	for _, l := range labels {
		if n, ok := rest[l]; ok {
			out = append(out, Count{Label: l, Count: n, Percent: percent(n, total)})
			delete(rest, l)
		}
	}
	return append(out, byCount(rest, total)...)
}
