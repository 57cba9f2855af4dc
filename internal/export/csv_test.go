package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sinan/internal/core"
	"github.com/JonMunkholm/sinan/internal/table"
)

func processedFixture() *table.Table {
	return table.MustNew(
		[]string{core.ColAnoNotific, core.ColUFNotific, core.ColTipoViolencia, core.ColGrauParentesco, core.ColTempoDenuncia},
		[][]table.Cell{
			{table.Text("2019"), table.Text("Maranhão"), table.Text("Física, Sexual"), table.Text("Pai; Padrasto"), table.Text("4")},
			{table.Text("2020"), table.Text("São Paulo"), table.Text("Sexual"), table.Text("Nenhum"), {}},
		},
	)
}

func TestRecords(t *testing.T) {
	recs := Records(processedFixture())

	require.Len(t, recs, 2)
	assert.Equal(t, "Maranhão", recs[0].UF)
	assert.Equal(t, "Física, Sexual", recs[0].TipoViolencia)
	assert.Equal(t, "", recs[1].TempoOcorDenuncia)
	assert.Equal(t, "", recs[1].Municipio, "absent columns export as empty")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, processedFixture()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ano;data_notificacao;uf;municipio;"))
	assert.Contains(t, lines[1], "2019;;Maranhão;")
	assert.Contains(t, lines[1], `"Pai; Padrasto"`, "separator inside a value must be quoted")
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table.Empty(core.ColAnoNotific)))
	assert.Equal(t, 1, strings.Count(buf.String(), "\r\n"), "header only")
}
