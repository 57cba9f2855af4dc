package core

import (
	"sort"
	"strings"

	"github.com/JonMunkholm/sinan/internal/dictionary"
)

// Source columns the pipeline and its consumers rely on.
const (
	ColDataNotificacao = "DT_NOTIFIC"
	ColAno             = "NU_ANO"
	ColUFNotificacao   = "SG_UF_NOT"
	ColUF              = "SG_UF"
	ColMunicipio       = "ID_MUNICIP"
	ColMunicipioResid  = "ID_MN_RESI"
	ColIdade           = dictionary.AgeColumn
	ColSexo            = "CS_SEXO"
	ColAutorSexo       = "AUTOR_SEXO"
	ColDataOcorrencia  = "DT_OCOR"
	ColLocalOcorrencia = "LOCAL_OCOR"
	ColRaca            = "CS_RACA"
	ColEscolaridade    = "CS_ESCOL_N"
)

// Derived columns added by the pipeline.
const (
	ColAnoNotific     = "ANO_NOTIFIC"
	ColUFNotific      = "UF_NOTIFIC"
	ColMunicNotific   = "MUNICIPIO_NOTIFIC"
	ColTipoViolencia  = "TIPO_VIOLENCIA"
	ColFaixaEtaria    = "FAIXA_ETARIA"
	ColSexoNorm       = "SEXO"
	ColAutorSexoCorr  = "AUTOR_SEXO_CORRIGIDO"
	ColGrauParentesco = "GRAU_PARENTESCO"
	ColTempoDenuncia  = "TEMPO_OCOR_DENUNCIA"
	ColEncJustica     = "ENCAMINHAMENTOS_JUSTICA"
)

// EssentialColumns are loaded by every build.
var EssentialColumns = []string{
	ColDataNotificacao, ColAno, ColUFNotificacao, ColUF, ColMunicipio, ColMunicipioResid,
	ColIdade, ColSexo, "VIOL_FISIC", "VIOL_PSICO", "VIOL_SEXU", "VIOL_INFAN",
	ColLocalOcorrencia, ColAutorSexo, "AUTOR_ALCO", ColEscolaridade, ColRaca,
	"SIT_CONJUG", "ID_OCUPA_N", "REDE_SAU", "REDE_EDUCA",
}

// AdditionalColumns feed the supplementary derived columns and summaries.
var AdditionalColumns = []string{
	ColDataOcorrencia, "DT_ENCERRA", "DT_DIGITA", "DT_INVEST", "EVOLUCAO",
	"ENC_DELEG", "ENC_DPCA", "ENC_MPU", "ENC_VARA",
	"DELEG", "DELEG_CRIA", "DELEG_IDOS", "DELEG_MULH", "HORA_OCOR", "CLASSI_FIN",
}

// ArtifactRequiredColumns must be present in a precomputed artifact.
var ArtifactRequiredColumns = []string{ColIdade, ColDataNotificacao, ColSexo}

// DerivedColumns lists the derived columns in output order.
var DerivedColumns = []string{
	ColAnoNotific, ColUFNotific, ColMunicNotific, ColTipoViolencia, ColFaixaEtaria,
	ColSexoNorm, ColAutorSexoCorr, ColGrauParentesco, ColTempoDenuncia, ColEncJustica,
}

// ColumnSet describes which source columns a query wants: exact names plus
// every column starting with one of the prefixes, minus Exclude. The zero
// value selects every column.
type ColumnSet struct {
	Names    []string
	Prefixes []string
	Exclude  []string
}

// PipelineColumns is the column set requested by a pipeline build.
func PipelineColumns() ColumnSet {
	names := make([]string, 0, len(EssentialColumns)+len(AdditionalColumns))
	names = append(names, EssentialColumns...)
	names = append(names, AdditionalColumns...)
	return ColumnSet{
		Names:    names,
		Prefixes: []string{dictionary.RelationshipPrefix},
		Exclude:  []string{"REL_TRAB", "REL_CAT"},
	}
}

// All reports whether the set selects every column.
func (s ColumnSet) All() bool {
	return len(s.Names) == 0 && len(s.Prefixes) == 0
}

// Resolve returns the selected columns among available: requested names
// that exist in request order, then prefix matches sorted by name.
func (s ColumnSet) Resolve(available []string) []string {
	excluded := make(map[string]bool, len(s.Exclude))
	for _, c := range s.Exclude {
		excluded[c] = true
	}
	if s.All() {
		out := make([]string, 0, len(available))
		for _, c := range available {
			if !excluded[c] {
				out = append(out, c)
			}
		}
		return out
	}

	have := make(map[string]bool, len(available))
	for _, c := range available {
		have[c] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, n := range s.Names {
		if have[n] && !excluded[n] && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	var matched []string
	for _, c := range available {
		if seen[c] || excluded[c] {
			continue
		}
		for _, p := range s.Prefixes {
			if strings.HasPrefix(c, p) {
				seen[c] = true
				matched = append(matched, c)
				break
			}
		}
	}
	sort.Strings(matched)
	return append(out, matched...)
}

// unionColumns merges column lists keeping first-appearance order.
func unionColumns(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, c := range l {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
