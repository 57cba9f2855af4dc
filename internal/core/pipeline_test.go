package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/sinan/internal/table"
)

func TestFilterByScope_AgeBoundaries(t *testing.T) {
	ref := NewReferenceProcessor(testBackendConfig(t, ""))
	cols := []string{"NU_IDADE_N", "VIOL_FISIC"}
	in := mustTable(t, cols,
		cells("4000", "1"),
		cells("4017", "1"),
		cells("4018", "1"),
		cells("3999", "1"),
		cells("1005", "1"),
		cells(nil, "1"),
		cells("09 anos", "1"),
		cells("4005.0", "1"),
	)

	got, stats := ref.FilterByScope(in, false)

	want := []string{"4000", "4017", "09 anos", "4005.0"}
	if got.Len() != len(want) {
		t.Fatalf("kept %d rows, want %d", got.Len(), len(want))
	}
	for i, w := range want {
		if v := got.Value(i, "NU_IDADE_N").String; v != w {
			t.Errorf("row %d age = %q, want %q", i, v, w)
		}
	}
	if stats.Input != 8 || stats.Kept != 4 || stats.KeptPercent != 50 {
		t.Errorf("stats = %+v, want input 8, kept 4, 50%%", stats)
	}
	if in.Len() != 8 {
		t.Errorf("input table changed: %d rows", in.Len())
	}
}

func TestFilterByScope_Violence(t *testing.T) {
	ref := NewReferenceProcessor(testBackendConfig(t, ""))
	cols := []string{"NU_IDADE_N", "VIOL_FISIC", "VIOL_PSICO", "VIOL_SEXU"}

	tests := []struct {
		name string
		row  []table.Cell
		keep bool
	}{
		{"all negative", cells("4005", "2", "2", "2"), false},
		{"all null", cells("4005", nil, nil, nil), false},
		{"one code", cells("4005", "2", "1", "2"), true},
		{"one label", cells("4005", "Sim", nil, nil), true},
		{"one float", cells("4005", nil, 1.0, nil), true},
		{"short label", cells("4005", "s", nil, nil), true},
		{"bool flag", cells("4005", false, false, true), true},
		{"bool negative", cells("4005", false, nil, false), false},
		{"ignored", cells("4005", "9", "Ignorado", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ref.FilterByScope(mustTable(t, cols, tt.row), true)
			if (got.Len() == 1) != tt.keep {
				t.Errorf("kept = %v, want %v", got.Len() == 1, tt.keep)
			}
		})
	}
}

func TestFilterByScope_NoViolenceColumnsPassesThrough(t *testing.T) {
	ref := NewReferenceProcessor(testBackendConfig(t, ""))
	in := mustTable(t, []string{"NU_IDADE_N"}, cells("4001"), cells("4002"))

	got, stats := ref.FilterByScope(in, true)

	if got.Len() != 2 || !stats.NoViolence {
		t.Errorf("got %d rows, NoViolence=%v; want 2, true", got.Len(), stats.NoViolence)
	}
}

func TestFilterByScope_EmptyInput(t *testing.T) {
	ref := NewReferenceProcessor(testBackendConfig(t, ""))

	got, stats := ref.FilterByScope(table.Empty("NU_IDADE_N", "VIOL_FISIC"), false)

	if got.Len() != 0 {
		t.Errorf("got %d rows, want 0", got.Len())
	}
	if stats.KeptPercent != 0 {
		t.Errorf("KeptPercent = %v, want 0", stats.KeptPercent)
	}
	if s := Summarize(got); s.Total != 0 || len(s.ByYear) != 0 {
		t.Errorf("Summarize(empty) = %+v", s)
	}
}

func TestApplyDictionaries_FallbackKeepsCode(t *testing.T) {
	ref := NewReferenceProcessor(testBackendConfig(t, ""))
	in := mustTable(t, []string{"VIOL_FISIC", "CS_SEXO", "ID_MUNICIP"},
		cells("1", "7", "355030"),
		cells(nil, "2", nil),
	)

	got, stats := ref.ApplyDictionaries(in)

	if v := got.Value(0, "VIOL_FISIC"); v != table.Text("Sim") {
		t.Errorf("VIOL_FISIC = %+v, want Sim", v)
	}
	if v := got.Value(0, "CS_SEXO"); v != table.Text("7") {
		t.Errorf("unmapped CS_SEXO = %+v, want raw 7", v)
	}
	if v := got.Value(1, "VIOL_FISIC"); v.Valid {
		t.Errorf("null VIOL_FISIC decoded to %+v", v)
	}
	if v := got.Value(0, "ID_MUNICIP"); v != table.Text("355030") {
		t.Errorf("ID_MUNICIP without dictionary changed to %+v", v)
	}
	if stats.Unmapped["CS_SEXO"] != 1 || stats.Total() != 1 {
		t.Errorf("stats = %+v, want one CS_SEXO fallback", stats)
	}
	if in.Value(0, "VIOL_FISIC").String != "1" {
		t.Error("input table was modified")
	}
}

func TestReferenceLoadRecords_SkipsUnreadable(t *testing.T) {
	dir := sourceDir(t)
	ref := NewReferenceProcessor(testBackendConfig(t, dir))

	got, report, err := ref.LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if got.Len() != 7 {
		t.Errorf("rows = %d, want 7", got.Len())
	}
	if len(report.Skipped) != 1 || !strings.HasSuffix(report.Skipped[0].Path, "VIOLBR18.parquet") {
		t.Errorf("Skipped = %+v, want VIOLBR18.parquet", report.Skipped)
	}
	if len(report.Files) != 2 {
		t.Errorf("Files = %v, want 2", report.Files)
	}
}

func TestReferenceLoadRecords_ResourceGuards(t *testing.T) {
	dir := sourceDir(t)

	cfg := testBackendConfig(t, dir)
	cfg.MaxRows = 5
	if _, _, err := NewReferenceProcessor(cfg).LoadRecords(context.Background()); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("MaxRows: error = %v, want ErrResourceExhausted", err)
	}

	cfg = testBackendConfig(t, dir)
	cfg.MemoryLimit = 1024
	ref := NewReferenceProcessor(cfg)
	ref.heapAlloc = func() uint64 { return 4096 }
	if _, _, err := ref.LoadRecords(context.Background()); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("MemoryLimit: error = %v, want ErrResourceExhausted", err)
	}
}

func TestReferenceLoadRecords_NoSources(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"missing dir", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }},
		{"empty dir", func(t *testing.T) string { return t.TempDir() }},
		{"only unreadable", func(t *testing.T) string {
			dir := t.TempDir()
			os.WriteFile(filepath.Join(dir, "a.parquet"), []byte("junk"), 0o644)
			return dir
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := NewReferenceProcessor(testBackendConfig(t, tt.setup(t)))
			if _, _, err := ref.LoadRecords(context.Background()); !errors.Is(err, ErrNoSources) {
				t.Errorf("error = %v, want ErrNoSources", err)
			}
		})
	}
}

func TestDeriveColumns_Relationship(t *testing.T) {
	reg := testRegistry(t)
	in := mustTable(t, []string{"REL_PADRASTO", "REL_MAE", "REL_PAI", "REL_TRAB"},
		cells("1", "0", "1", "1"),
		cells("2", "2", "2", "1"),
		cells("Sim", "Sim", nil, nil),
	)

	got := DeriveColumns(in, reg, ColGrauParentesco)

	want := []string{"Pai, Padrasto", LabelNaoInformado, "Mãe, Padrasto"}
	for i, w := range want {
		if v := got.Value(i, ColGrauParentesco).String; v != w {
			t.Errorf("row %d GRAU_PARENTESCO = %q, want %q", i, v, w)
		}
	}
}

func TestDeriveColumns_Values(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name   string
		column string
		in     map[string]any
		want   table.Cell
	}{
		{"year from date", ColAnoNotific, map[string]any{"DT_NOTIFIC": "20190105", "NU_ANO": "2018"}, table.Text("2019")},
		{"year from iso date", ColAnoNotific, map[string]any{"DT_NOTIFIC": "2019-01-05"}, table.Text("2019")},
		{"year falls back to NU_ANO", ColAnoNotific, map[string]any{"DT_NOTIFIC": "??", "NU_ANO": "2018.0"}, table.Text("2018")},
		{"year unknown", ColAnoNotific, map[string]any{"DT_NOTIFIC": nil, "NU_ANO": nil}, table.Null},
		{"state name", ColUFNotific, map[string]any{"SG_UF_NOT": "35.0"}, table.Text("São Paulo")},
		{"state from SG_UF", ColUFNotific, map[string]any{"SG_UF": "21"}, table.Text("Maranhão")},
		{"state null", ColUFNotific, map[string]any{"SG_UF_NOT": nil}, table.Text(LabelNaoInformado)},
		{"state unknown", ColUFNotific, map[string]any{"SG_UF_NOT": "99"}, table.Text("99")},
		{"state no column", ColUFNotific, map[string]any{"X": "1"}, table.Text(LabelNaoDisponivel)},
		{"municipality", ColMunicNotific, map[string]any{"ID_MUNICIP": "210530"}, table.Text("Imperatriz")},
		{"municipality seven digits", ColMunicNotific, map[string]any{"ID_MUNICIP": "3550308"}, table.Text("São Paulo")},
		{"municipality residence", ColMunicNotific, map[string]any{"ID_MN_RESI": "210530"}, table.Text("Imperatriz")},
		{"municipality unknown", ColMunicNotific, map[string]any{"ID_MUNICIP": "123456"}, table.Text("123456")},
		{"municipality null", ColMunicNotific, map[string]any{"ID_MUNICIP": nil}, table.Text(LabelNaoInformado)},
		{"municipality no column", ColMunicNotific, map[string]any{"X": "1"}, table.Text(LabelNaoDisponivel)},
		{"violence combined", ColTipoViolencia, map[string]any{"VIOL_FISIC": "Sim", "VIOL_SEXU": "1", "VIOL_PSICO": "2"}, table.Text("Física, Sexual")},
		{"violence none", ColTipoViolencia, map[string]any{"VIOL_FISIC": "2"}, table.Text(LabelNaoEspecificado)},
		{"age code", ColFaixaEtaria, map[string]any{"NU_IDADE_N": "4001"}, table.Text("0-1 anos")},
		{"age under one label", ColFaixaEtaria, map[string]any{"NU_IDADE_N": "menor de 01 ano"}, table.Text("0-1 anos")},
		{"age label", ColFaixaEtaria, map[string]any{"NU_IDADE_N": "09 anos"}, table.Text("6-9 anos")},
		{"age upper bound", ColFaixaEtaria, map[string]any{"NU_IDADE_N": "4017"}, table.Text("14-17 anos")},
		{"age adult", ColFaixaEtaria, map[string]any{"NU_IDADE_N": "4030"}, table.Text(LabelNaoInformado)},
		{"age garbage", ColFaixaEtaria, map[string]any{"NU_IDADE_N": "x"}, table.Text(LabelNaoInformado)},
		{"sex code", ColSexoNorm, map[string]any{"CS_SEXO": "2"}, table.Text("Feminino")},
		{"sex label", ColSexoNorm, map[string]any{"CS_SEXO": " masculino "}, table.Text("Masculino")},
		{"sex ignored", ColSexoNorm, map[string]any{"CS_SEXO": "Ignorado"}, table.Text(LabelNaoInformado)},
		{"aggressor others", ColAutorSexoCorr, map[string]any{"AUTOR_SEXO": "3"}, table.Text("Outros")},
		{"aggressor ignored", ColAutorSexoCorr, map[string]any{"AUTOR_SEXO": "Ignorado"}, table.Text("Ignorado")},
		{"aggressor relationship leak", ColAutorSexoCorr, map[string]any{"AUTOR_SEXO": "Pai"}, table.Text(LabelNaoInformado)},
		{"aggressor no column", ColAutorSexoCorr, map[string]any{"X": "1"}, table.Text(LabelNaoInformado)},
		{"delay", ColTempoDenuncia, map[string]any{"DT_OCOR": "20190101", "DT_NOTIFIC": "20190111"}, table.Text("10")},
		{"delay negative", ColTempoDenuncia, map[string]any{"DT_OCOR": "20190111", "DT_NOTIFIC": "20190101"}, table.Null},
		{"delay too long", ColTempoDenuncia, map[string]any{"DT_OCOR": "19990101", "DT_NOTIFIC": "20190101"}, table.Null},
		{"referrals", ColEncJustica, map[string]any{"ENC_DELEG": "1", "ENC_VARA": "Sim", "ENC_MPU": "2"}, table.Text("Delegacia, Vara da Infância")},
		{"referrals none", ColEncJustica, map[string]any{"ENC_DELEG": "2"}, table.Text(LabelNenhum)},
		{"referrals no column", ColEncJustica, map[string]any{"X": "1"}, table.Text(LabelNaoInformado)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cols []string
			var vals []any
			for k, v := range tt.in {
				cols = append(cols, k)
				vals = append(vals, v)
			}
			got := DeriveColumns(mustTable(t, cols, cells(vals...)), reg, tt.column)
			if v := got.Value(0, tt.column); v != tt.want {
				t.Errorf("%s = %+v, want %+v", tt.column, v, tt.want)
			}
		})
	}
}

func TestPipelineBuild_Reference(t *testing.T) {
	p := NewPipeline(testBackendConfig(t, sourceDir(t)), t.TempDir())

	res, err := p.Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if res.Backend != ReferenceBackendName {
		t.Errorf("Backend = %q, want reference", res.Backend)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "VIOLBR18") {
		t.Errorf("Warnings = %v, want one skipped-file warning", res.Warnings)
	}
	if res.Table.Has("REL_TRAB") {
		t.Error("REL_TRAB should not be loaded")
	}

	wantRows := []map[string]string{
		{ColAnoNotific: "2019", ColUFNotific: "Maranhão", ColMunicNotific: "Imperatriz", ColTipoViolencia: "Física",
			ColFaixaEtaria: "2-5 anos", ColSexoNorm: "Masculino", ColAutorSexoCorr: "Masculino",
			ColGrauParentesco: "Pai, Padrasto", ColTempoDenuncia: "4", ColEncJustica: "Delegacia"},
		{ColAnoNotific: "2019", ColUFNotific: "São Paulo", ColMunicNotific: "São Paulo", ColTipoViolencia: "Sexual",
			ColFaixaEtaria: "14-17 anos", ColSexoNorm: "Feminino", ColAutorSexoCorr: "Feminino",
			ColGrauParentesco: "Mãe", ColEncJustica: "Vara da Infância"},
		{ColAnoNotific: "2020", ColUFNotific: LabelNaoInformado, ColMunicNotific: LabelNaoInformado, ColTipoViolencia: "Psicológica",
			ColFaixaEtaria: "0-1 anos", ColSexoNorm: LabelNaoInformado, ColAutorSexoCorr: "Outros",
			ColGrauParentesco: LabelNaoInformado, ColTempoDenuncia: "4", ColEncJustica: LabelNenhum},
		{ColAnoNotific: "2020", ColUFNotific: "99", ColMunicNotific: "999999", ColTipoViolencia: "Sexual",
			ColFaixaEtaria: "10-13 anos", ColSexoNorm: "Masculino", ColAutorSexoCorr: "Ignorado",
			ColGrauParentesco: LabelNaoInformado, ColEncJustica: LabelNenhum},
	}
	if res.Table.Len() != len(wantRows) {
		t.Fatalf("rows = %d, want %d", res.Table.Len(), len(wantRows))
	}
	for i, want := range wantRows {
		for col, w := range want {
			if got := res.Table.Value(i, col).String; got != w {
				t.Errorf("row %d %s = %q, want %q", i, col, got, w)
			}
		}
	}
	if v := res.Table.Value(1, ColTempoDenuncia); v.Valid {
		t.Errorf("row 1 delay = %+v, want null", v)
	}
}

func TestPipelineBuild_Idempotent(t *testing.T) {
	p := NewPipeline(testBackendConfig(t, sourceDir(t)), t.TempDir())
	ctx := context.Background()

	first, err := p.Build(ctx, BuildOptions{})
	if err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	second, err := p.Build(ctx, BuildOptions{})
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if !table.Equal(first.Table, second.Table) {
		t.Error("repeated builds over unchanged inputs differ")
	}
}

func TestPipelineBuild_PrecomputedArtifact(t *testing.T) {
	src := sourceDir(t)
	out := t.TempDir()
	p := NewPipeline(testBackendConfig(t, src), out)
	ctx := context.Background()

	built, err := p.Build(ctx, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := SaveArtifact(out, built.Table, built.Meta); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}

	// Sources are gone; only the artifact can satisfy the build.
	if err := os.RemoveAll(src); err != nil {
		t.Fatal(err)
	}
	loaded, err := p.Build(ctx, BuildOptions{UsePrecomputed: true})
	if err != nil {
		t.Fatalf("Build(precomputed) error = %v", err)
	}
	if !loaded.FromArtifact {
		t.Error("FromArtifact = false, want true")
	}
	if loaded.Meta.BuildID != built.Meta.BuildID {
		t.Errorf("BuildID = %q, want %q", loaded.Meta.BuildID, built.Meta.BuildID)
	}
	if !table.Equal(built.Table, loaded.Table) {
		t.Error("artifact table differs from the built table")
	}
}

func TestPipelineBuild_CorruptArtifactFallsThrough(t *testing.T) {
	out := t.TempDir()
	os.WriteFile(filepath.Join(out, ArtifactMetaFile), []byte("{broken"), 0o644)
	p := NewPipeline(testBackendConfig(t, sourceDir(t)), out)

	res, err := p.Build(context.Background(), BuildOptions{UsePrecomputed: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.FromArtifact || res.Table.Len() != 4 {
		t.Errorf("FromArtifact=%v rows=%d; want a 4-row source build", res.FromArtifact, res.Table.Len())
	}
}

func TestLoadArtifact_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := LoadArtifact(dir); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("empty dir: error = %v, want ErrArtifactNotFound", err)
	}

	tbl := mustTable(t, []string{"NU_IDADE_N", "DT_NOTIFIC", "CS_SEXO"}, cells("4001", "20190101", "1"))
	if err := SaveArtifact(dir, tbl, Metadata{BuildID: "b1"}); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	os.WriteFile(filepath.Join(dir, ArtifactMetaFile), []byte(`{"version": 1, "row_count": 1}`), 0o644)
	if _, _, err := LoadArtifact(dir); !errors.Is(err, ErrArtifactInvalid) {
		t.Errorf("stale version: error = %v, want ErrArtifactInvalid", err)
	}
}

func TestSelectBackend(t *testing.T) {
	saved := backends
	t.Cleanup(func() { backends = saved })

	ref := saved[ReferenceBackendName]
	backends = map[string]BackendDefinition{
		ReferenceBackendName: ref,
		"fast": {
			Name:      "fast",
			Fast:      true,
			Available: func() error { return errors.New("engine missing") },
			New:       func(BackendConfig) (Backend, error) { return nil, errors.New("unreachable") },
		},
	}
	cfg := testBackendConfig(t, t.TempDir())

	b, warning, err := SelectBackend(cfg, true)
	if err != nil {
		t.Fatalf("SelectBackend() error = %v", err)
	}
	if b.Name() != ReferenceBackendName || !strings.Contains(warning, "engine missing") {
		t.Errorf("got %s with warning %q; want reference with fallback warning", b.Name(), warning)
	}

	if _, warning, _ := SelectBackend(cfg, false); warning != "" {
		t.Errorf("reference requested, warning = %q, want none", warning)
	}

	backends = map[string]BackendDefinition{}
	if _, _, err := SelectBackend(cfg, true); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("no backends: error = %v, want ErrBackendUnavailable", err)
	}
}
