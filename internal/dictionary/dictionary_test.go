package dictionary

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/sinan/internal/table"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(New("MUNICIPIO", map[string]string{"355030": "São Paulo"}))
	require.NoError(t, err)
	return r
}

func TestParseMunicipalityLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantCode  string
		wantLabel string
		wantOK    bool
	}{
		{"repeated trailing code", "1  210530 Imperatriz  210530", "210530", "Imperatriz", true},
		{"multi word name", "1  110001 Alta Floresta D'Oeste  110001", "110001", "Alta Floresta D'Oeste", true},
		{"no trailing code", "7 355030 São Paulo", "355030", "São Paulo", true},
		{"placeholder", "1 999999 Municipio ignorado 999999", "", "", false},
		{"accented placeholder", "1 999999 Município Ignorado 999999", "", "", false},
		{"no ordinal", "210530 Imperatriz", "210530", "Imperatriz", true},
		{"code only", "210530", "", "", false},
		{"no six digit code", "1 21053 Imperatriz 21053", "", "", false},
		{"code without name", "1 210530 210530", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, label, ok := ParseMunicipalityLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func writeLatin1(t *testing.T, path, content string) {
	t.Helper()
	enc, err := charmap.ISO8859_1.NewEncoder().String(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(enc), 0o644))
}

func TestLoadMunicipalities(t *testing.T) {
	dir := t.TempDir()
	writeLatin1(t, filepath.Join(dir, "MunicBR.cnv"), strings.Join([]string{
		"; comentario",
		"",
		"1  210530 Imperatriz  210530",
		"2  355030 São Paulo  355030",
		"3  999999 Ignorado  999999",
		"garbage",
	}, "\r\n"))
	// Later file wins on duplicates.
	writeLatin1(t, filepath.Join(dir, "municSP.cnv"), "1  355030 Sao Paulo (capital)  355030\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.cnv"), []byte("1 111111 Nope 111111\n"), 0o644))

	d, stats, err := LoadMunicipalities(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "Imperatriz", d.Lookup("210530"))
	assert.Equal(t, "Sao Paulo (capital)", d.Lookup("355030"))
	assert.Equal(t, "111111", d.Lookup("111111"))
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.LinesSkipped)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestLoadMunicipalities_MissingDir(t *testing.T) {
	d, stats, err := LoadMunicipalities(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, stats.Files)
}

func TestLoadMunicipalities_UnreadableFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeLatin1(t, filepath.Join(dir, "MunicA.cnv"), "1  210530 Imperatriz  210530\n")
	// A directory matching the pattern cannot be read as a file.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "MunicB.cnv"), 0o755))

	d, stats, err := LoadMunicipalities(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestNewTextReader_UTF8DropsInvalidBytes(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("S\xffão\xfe Paulo")...)

	r, err := NewTextReader(strings.NewReader(string(raw)), EncodingUTF8)
	require.NoError(t, err)

	var b strings.Builder
	_, err = b.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", b.String())
}

func TestNewTextReader_UnknownEncoding(t *testing.T) {
	_, err := NewTextReader(strings.NewReader(""), "ebcdic")
	assert.Error(t, err)
}

func TestDictionaryFallback(t *testing.T) {
	d := New("CS_RACA", map[string]string{"1": "Branca"})

	assert.Equal(t, "Branca", d.Lookup("1"))
	assert.Equal(t, "7", d.Lookup("7"))

	got, ok := d.Decode(table.Text("7"))
	assert.False(t, ok)
	assert.Equal(t, table.Text("7"), got)

	got, ok = d.Decode(table.Null)
	assert.True(t, ok)
	assert.Equal(t, table.Null, got)

	var nilDict *Dictionary
	assert.Equal(t, "x", nilDict.Lookup("x"))
}

func TestRegistry_AgeCodes(t *testing.T) {
	r := newTestRegistry(t)

	codes := r.AgeCodes()
	require.Len(t, codes, 18)
	assert.Equal(t, "4000", codes[0])
	assert.Equal(t, "4017", codes[17])

	age, ok := r.Field(AgeColumn)
	require.True(t, ok)
	assert.Equal(t, "menor de 01 ano", age.Lookup("4000"))
	assert.Equal(t, "01 ano", age.Lookup("4001"))
	assert.Equal(t, "17 anos", age.Lookup("4017"))
	assert.Equal(t, "4018", age.Lookup("4018"))
}

func TestRegistry_Decode(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		column string
		in     table.Cell
		want   table.Cell
		ok     bool
	}{
		{"VIOL_FISIC", table.Text("1"), table.Text("Sim"), true},
		{"CS_RACA", table.Text("4"), table.Text("Parda"), true},
		{"CS_RACA", table.Text("7"), table.Text("7"), false},
		{"REL_PAI", table.Text("1"), table.Text("Sim"), true},
		{"REL_CAT", table.Text("1"), table.Text("Empregado"), true},
		{"ID_MUNICIP", table.Text("355030"), table.Text("355030"), true},
		{"CS_SEXO", table.Null, table.Null, true},
		{"LOCAL_OCOR", table.Text("01"), table.Text("Residência"), true},
	}

	for _, tt := range tests {
		t.Run(tt.column+"="+tt.in.String, func(t *testing.T) {
			got, ok := r.Decode(tt.column, tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestRegistry_StateName(t *testing.T) {
	r := newTestRegistry(t)

	name, ok := r.StateName("35")
	assert.True(t, ok)
	assert.Equal(t, "São Paulo", name)

	name, ok = r.StateName("21.0")
	assert.True(t, ok)
	assert.Equal(t, "Maranhão", name)

	_, ok = r.StateName("99")
	assert.False(t, ok)
	assert.Equal(t, 27, r.States().Len())
}

func TestRegistry_StateCode(t *testing.T) {
	r := newTestRegistry(t)

	for _, in := range []string{"35", "35.0", "São Paulo", "sao paulo", "  SAO   PAULO "} {
		code, ok := r.StateCode(in)
		assert.True(t, ok, in)
		assert.Equal(t, "35", code, in)
	}
	_, ok := r.StateCode("Atlantis")
	assert.False(t, ok)

	assert.True(t, r.SameState("Maranhão", "21"))
	assert.True(t, r.SameState("Maranhão", "maranhao"))
	assert.False(t, r.SameState("Maranhão", "Piauí"))
}

func TestRegistry_RelationshipColumns(t *testing.T) {
	r := newTestRegistry(t)

	cols := []string{"REL_PADRASTO", "REL_MAE", "REL_TRAB", "REL_PAI", "NU_IDADE_N", "REL_CAT", "REL_AVO"}
	got := r.RelationshipColumns(cols)

	assert.Equal(t, []string{"REL_PAI", "REL_MAE", "REL_AVO", "REL_PADRASTO"}, got)
	assert.Equal(t, "Pai", r.RelationshipLabel("REL_PAI"))
	assert.Equal(t, "Padrasto", r.RelationshipLabel("REL_PADRASTO"))
	assert.Equal(t, "Avo", r.RelationshipLabel("REL_AVO"))
	assert.Equal(t, "Tio Materno", r.RelationshipLabel("REL_TIO_MATERNO"))
}

func TestFoldAccents(t *testing.T) {
	assert.Equal(t, "Sao Paulo", FoldAccents("São Paulo"))
	assert.Equal(t, "Goias", FoldAccents("Goiás"))
	assert.Equal(t, "Parana", FoldAccents("Paraná"))
}

func TestRegistry_Municipality(t *testing.T) {
	r := newTestRegistry(t)

	name, ok := r.Municipality(" 355030 ")
	assert.True(t, ok)
	assert.Equal(t, "São Paulo", name)

	_, ok = r.Municipality("999999")
	assert.False(t, ok)

	empty, err := NewRegistry(nil)
	require.NoError(t, err)
	_, ok = empty.Municipality("355030")
	assert.False(t, ok, "nil municipality dictionary resolves nothing")
}
