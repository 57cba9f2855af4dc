package core

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/table"
)

// Placeholder labels used by the derived columns.
const (
	LabelNaoInformado    = "Não informado"
	LabelNaoEspecificado = "Não especificado"
	LabelNaoDisponivel   = "N/A"
	LabelNenhum          = "Nenhum"
)

// maxReportDelayDays bounds TEMPO_OCOR_DENUNCIA; longer gaps are data
// entry errors.
const maxReportDelayDays = 3650

// JusticeReferral is a referral flag column and its label.
type JusticeReferral struct {
	Column string
	Label  string
}

// JusticeReferrals are the referral flags combined into
// ENCAMINHAMENTOS_JUSTICA, in label order.
var JusticeReferrals = []JusticeReferral{
	{"ENC_DELEG", "Delegacia"},
	{"ENC_DPCA", "DPCA"},
	{"ENC_MPU", "Ministério Público"},
	{"ENC_VARA", "Vara da Infância"},
}

// AgeBuckets are the FAIXA_ETARIA labels in ascending order.
var AgeBuckets = []string{"0-1 anos", "2-5 anos", "6-9 anos", "10-13 anos", "14-17 anos"}

var ageLabelRegex = regexp.MustCompile(`^(\d{1,3})\s+anos?$`)

type deriveFunc func(row []table.Cell) table.Cell

// deriver holds the column positions of one table.
type deriver struct {
	t   *table.Table
	reg *dictionary.Registry
}

func (d deriver) col(name string) (int, bool) {
	return d.t.Index(name)
}

// firstCol returns the first of names present in the table.
func (d deriver) firstCol(names ...string) (int, bool) {
	for _, n := range names {
		if j, ok := d.t.Index(n); ok {
			return j, true
		}
	}
	return 0, false
}

func constant(s string) deriveFunc {
	c := table.Text(s)
	return func([]table.Cell) table.Cell { return c }
}

// DeriveColumns adds the named derived columns (all of DerivedColumns when
// names is empty) to a decoded table. Existing columns with the same names
// are overwritten. The input table is not modified.
func DeriveColumns(t *table.Table, reg *dictionary.Registry, names ...string) *table.Table {
	if len(names) == 0 {
		names = DerivedColumns
	}
	d := deriver{t: t, reg: reg}
	builders := map[string]func() deriveFunc{
		ColAnoNotific:     d.year,
		ColUFNotific:      d.state,
		ColMunicNotific:   d.municipality,
		ColTipoViolencia:  d.violenceType,
		ColFaixaEtaria:    d.ageBucket,
		ColSexoNorm:       d.sex,
		ColAutorSexoCorr:  d.aggressorSex,
		ColGrauParentesco: d.relationship,
		ColTempoDenuncia:  d.reportDelay,
		ColEncJustica:     d.justiceReferrals,
	}

	var cols []string
	var fns []deriveFunc
	for _, n := range names {
		b, ok := builders[n]
		if !ok {
			continue
		}
		cols = append(cols, n)
		fns = append(fns, b())
	}
	return t.WithColumns(cols, func(row []table.Cell) []table.Cell {
		out := make([]table.Cell, len(fns))
		for i, f := range fns {
			out[i] = f(row)
		}
		return out
	})
}

// missingDerived returns the derived columns t lacks.
func missingDerived(t *table.Table) []string {
	var out []string
	for _, c := range DerivedColumns {
		if !t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// year resolves the notification year from DT_NOTIFIC, falling back per
// row to NU_ANO.
func (d deriver) year() deriveFunc {
	dateCol, hasDate := d.col(ColDataNotificacao)
	yearCol, hasYear := d.col(ColAno)
	return func(row []table.Cell) table.Cell {
		if hasDate {
			if t, ok := ParseDate(row[dateCol]); ok {
				return table.Text(strconv.Itoa(t.Year()))
			}
		}
		if hasYear {
			if y, ok := ParseInt(row[yearCol]); ok && y > 0 {
				return table.Text(strconv.Itoa(y))
			}
		}
		return table.Null
	}
}

func (d deriver) state() deriveFunc {
	j, ok := d.firstCol(ColUFNotificacao, ColUF)
	if !ok {
		return constant(LabelNaoDisponivel)
	}
	return func(row []table.Cell) table.Cell {
		c := row[j]
		if c.IsBlank() {
			return table.Text(LabelNaoInformado)
		}
		if name, ok := d.reg.StateName(c.String); ok {
			return table.Text(name)
		}
		return table.Text(strings.TrimSpace(c.String))
	}
}

func (d deriver) municipality() deriveFunc {
	j, ok := d.firstCol(ColMunicipio, ColMunicipioResid)
	if !ok {
		return constant(LabelNaoDisponivel)
	}
	return func(row []table.Cell) table.Cell {
		c := row[j]
		if c.IsBlank() {
			return table.Text(LabelNaoInformado)
		}
		raw := strings.TrimSpace(c.String)
		if code, ok := municipalityCode(c); ok {
			if name, ok := d.reg.Municipality(code); ok {
				return table.Text(name)
			}
		}
		return table.Text(raw)
	}
}

// municipalityCode normalises an IBGE municipality code to six digits.
// Seven-digit codes carry a check digit, which the lookup files omit.
func municipalityCode(c table.Cell) (string, bool) {
	n, ok := ParseInt(c)
	if !ok || n <= 0 {
		return "", false
	}
	s := strconv.Itoa(n)
	switch len(s) {
	case 6:
		return s, true
	case 7:
		return s[:6], true
	default:
		return "", false
	}
}

func (d deriver) violenceType() deriveFunc {
	type flag struct {
		idx   int
		label string
	}
	var flags []flag
	for _, c := range ViolenceColumns {
		if j, ok := d.col(c); ok {
			flags = append(flags, flag{j, ViolenceLabels[c]})
		}
	}
	return func(row []table.Cell) table.Cell {
		var labels []string
		for _, f := range flags {
			if cellAffirmative(row[f.idx]) {
				labels = append(labels, f.label)
			}
		}
		if len(labels) == 0 {
			return table.Text(LabelNaoEspecificado)
		}
		return table.Text(strings.Join(labels, ", "))
	}
}

func (d deriver) ageBucket() deriveFunc {
	j, ok := d.col(ColIdade)
	if !ok {
		return constant(LabelNaoInformado)
	}
	return func(row []table.Cell) table.Cell {
		years, ok := ageYears(row[j])
		if !ok {
			return table.Text(LabelNaoInformado)
		}
		switch {
		case years <= 1:
			return table.Text(AgeBuckets[0])
		case years <= 5:
			return table.Text(AgeBuckets[1])
		case years <= 9:
			return table.Text(AgeBuckets[2])
		case years <= 13:
			return table.Text(AgeBuckets[3])
		case years <= 17:
			return table.Text(AgeBuckets[4])
		default:
			return table.Text(LabelNaoInformado)
		}
	}
}

// ageYears reads an age in years from a raw 40NN code or its decoded label.
func ageYears(c table.Cell) (int, bool) {
	if c.IsBlank() {
		return 0, false
	}
	if n, ok := ParseInt(c); ok {
		if n >= 4000 && n <= 4150 {
			return n - 4000, true
		}
		return 0, false
	}
	s := strings.ToLower(strings.TrimSpace(c.String))
	if strings.HasPrefix(s, "menor de") {
		return 0, true
	}
	if m := ageLabelRegex.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	return 0, false
}

func normalizeSex(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "M", "MASCULINO", "MAS":
		return "Masculino", true
	case "2", "F", "FEMININO", "FEM":
		return "Feminino", true
	}
	return "", false
}

func (d deriver) sex() deriveFunc {
	j, ok := d.col(ColSexo)
	if !ok {
		return constant(LabelNaoInformado)
	}
	return func(row []table.Cell) table.Cell {
		if v, ok := normalizeSex(row[j].String); ok && row[j].Valid {
			return table.Text(v)
		}
		return table.Text(LabelNaoInformado)
	}
}

// aggressorSex also accepts the "others" and "ignored" codes. Any other
// value, such as relationship words typed into the field, is not informed.
func (d deriver) aggressorSex() deriveFunc {
	j, ok := d.col(ColAutorSexo)
	if !ok {
		return constant(LabelNaoInformado)
	}
	return func(row []table.Cell) table.Cell {
		c := row[j]
		if !c.Valid {
			return table.Text(LabelNaoInformado)
		}
		if v, ok := normalizeSex(c.String); ok {
			return table.Text(v)
		}
		switch strings.ToUpper(strings.TrimSpace(c.String)) {
		case "3", "OUTROS", "OUTRO":
			return table.Text("Outros")
		case "9", "IGNORADO", "IGN":
			return table.Text("Ignorado")
		}
		return table.Text(LabelNaoInformado)
	}
}

func (d deriver) relationship() deriveFunc {
	type flag struct {
		idx   int
		label string
	}
	var flags []flag
	for _, c := range d.reg.RelationshipColumns(d.t.Columns()) {
		j, _ := d.col(c)
		flags = append(flags, flag{j, d.reg.RelationshipLabel(c)})
	}
	return func(row []table.Cell) table.Cell {
		var labels []string
		seen := make(map[string]bool)
		for _, f := range flags {
			if cellAffirmative(row[f.idx]) && !seen[f.label] {
				seen[f.label] = true
				labels = append(labels, f.label)
			}
		}
		if len(labels) == 0 {
			return table.Text(LabelNaoInformado)
		}
		return table.Text(strings.Join(labels, ", "))
	}
}

// reportDelay is the number of days from occurrence to notification.
func (d deriver) reportDelay() deriveFunc {
	occ, hasOcc := d.col(ColDataOcorrencia)
	notif, hasNotif := d.col(ColDataNotificacao)
	if !hasOcc || !hasNotif {
		return func([]table.Cell) table.Cell { return table.Null }
	}
	return func(row []table.Cell) table.Cell {
		from, ok1 := ParseDate(row[occ])
		to, ok2 := ParseDate(row[notif])
		if !ok1 || !ok2 {
			return table.Null
		}
		days := int(to.Sub(from).Hours() / 24)
		if days < 0 || days > maxReportDelayDays {
			return table.Null
		}
		return table.Text(strconv.Itoa(days))
	}
}

func (d deriver) justiceReferrals() deriveFunc {
	type flag struct {
		idx   int
		label string
	}
	var flags []flag
	for _, r := range JusticeReferrals {
		if j, ok := d.col(r.Column); ok {
			flags = append(flags, flag{j, r.Label})
		}
	}
	if len(flags) == 0 {
		return constant(LabelNaoInformado)
	}
	return func(row []table.Cell) table.Cell {
		var labels []string
		for _, f := range flags {
			if cellAffirmative(row[f.idx]) {
				labels = append(labels, f.label)
			}
		}
		if len(labels) == 0 {
			return table.Text(LabelNenhum)
		}
		return table.Text(strings.Join(labels, ", "))
	}
}
