// Package export writes the processed table to external sinks: a
// semicolon-separated CSV file and a PostgreSQL table.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/JonMunkholm/sinan/internal/core"
	"github.com/JonMunkholm/sinan/internal/table"
)

// Record is one processed notification in the published CSV layout.
type Record struct {
	Ano                    string `csv:"ano"`
	DataNotificacao        string `csv:"data_notificacao"`
	UF                     string `csv:"uf"`
	Municipio              string `csv:"municipio"`
	FaixaEtaria            string `csv:"faixa_etaria"`
	Sexo                   string `csv:"sexo"`
	Raca                   string `csv:"raca"`
	Escolaridade           string `csv:"escolaridade"`
	TipoViolencia          string `csv:"tipo_violencia"`
	LocalOcorrencia        string `csv:"local_ocorrencia"`
	AutorSexo              string `csv:"autor_sexo"`
	GrauParentesco         string `csv:"grau_parentesco"`
	TempoOcorDenuncia      string `csv:"tempo_ocor_denuncia_dias"`
	EncaminhamentosJustica string `csv:"encaminhamentos_justica"`
}

// Records flattens t into CSV records. Nulls become empty strings.
func Records(t *table.Table) []Record {
	out := make([]Record, t.Len())
	for i := range out {
		v := func(col string) string { return t.Value(i, col).Or("") }
		out[i] = Record{
			Ano:                    v(core.ColAnoNotific),
			DataNotificacao:        v(core.ColDataNotificacao),
			UF:                     v(core.ColUFNotific),
			Municipio:              v(core.ColMunicNotific),
			FaixaEtaria:            v(core.ColFaixaEtaria),
			Sexo:                   v(core.ColSexoNorm),
			Raca:                   v(core.ColRaca),
			Escolaridade:           v(core.ColEscolaridade),
			TipoViolencia:          v(core.ColTipoViolencia),
			LocalOcorrencia:        v(core.ColLocalOcorrencia),
			AutorSexo:              v(core.ColAutorSexoCorr),
			GrauParentesco:         v(core.ColGrauParentesco),
			TempoOcorDenuncia:      v(core.ColTempoDenuncia),
			EncaminhamentosJustica: v(core.ColEncJustica),
		}
	}
	return out
}

// WriteCSV writes t as ';'-separated CSV with CRLF line endings, the
// layout spreadsheet tools in pt-BR locales open without an import wizard.
func WriteCSV(w io.Writer, t *table.Table) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = ';'
	csvWriter.UseCRLF = true

	records := Records(t)
	if err := gocsv.MarshalCSV(&records, csvWriter); err != nil {
		return fmt.Errorf("marshal csv: %w", err)
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
