package table

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/stat-client/pkg/flatten"
	"github.com/google/go-cmp/cmp"
)

var valueCmp = cmp.Comparer(func(a, b flatten.Value) bool { return a.Equal(b) })

func rec(cols []string, vals ...flatten.Value) flatten.Record {
	return flatten.Record{Columns: cols, Values: vals}
}

func str(s string) flatten.Value { return flatten.String(s) }

func TestAssemble_Union(t *testing.T) {
	a := Source{Records: []flatten.Record{rec([]string{"A", "B"}, str("a1"), str("b1"))}}
	b := Source{Records: []flatten.Record{rec([]string{"A", "C"}, str("a2"), str("c2"))}}

	got := Assemble(a, b)

	if diff := cmp.Diff([]string{"A", "B", "C"}, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]flatten.Value{
		{str("a1"), str("b1"), flatten.Null},
		{str("a2"), flatten.Null, str("c2")},
	}
	if diff := cmp.Diff(want, got.Rows, valueCmp); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_MetadataPerSource(t *testing.T) {
	cols := []string{"Keyword"}
	site1 := Source{
		Records:  []flatten.Record{rec(cols, str("k1")), rec(cols, str("k2"))},
		Metadata: []Pair{{"Domain", str("one.com")}},
	}
	site2 := Source{
		Records:  []flatten.Record{rec(cols, str("k1"))},
		Metadata: []Pair{{"Domain", str("two.com")}},
	}

	got := Assemble(site1, site2)

	want := [][]string{{"k1", "one.com"}, {"k2", "one.com"}, {"k1", "two.com"}}
	if diff := cmp.Diff(want, got.Strings()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_KeepsDuplicates(t *testing.T) {
	cols := []string{"A"}
	got := Assemble(Source{Records: []flatten.Record{rec(cols, str("x")), rec(cols, str("x"))}})
	if got.Len() != 2 {
		t.Errorf("Len() = %d, want 2", got.Len())
	}
	if d := got.Distinct(); d.Len() != 1 {
		t.Errorf("Distinct().Len() = %d, want 1", d.Len())
	}
}

func TestAssemble_Empty(t *testing.T) {
	got := Assemble()
	if got.Len() != 0 || len(got.Columns) != 0 {
		t.Errorf("Assemble() = %+v, want empty", got)
	}
}

func TestProject(t *testing.T) {
	tbl := Assemble(Source{Records: []flatten.Record{
		rec([]string{"A", "B", "C"}, str("a"), str("b"), str("c")),
	}})

	got, err := tbl.Project([]string{"C", "A"})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if diff := cmp.Diff([][]string{{"c", "a"}}, got.Strings()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	_, err = tbl.Project([]string{"A", "Z"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Project() error = %v, want ErrUnknownColumn", err)
	}
}

func TestFilter(t *testing.T) {
	cols := []string{"Tag"}
	tbl := Assemble(Source{Records: []flatten.Record{
		rec(cols, str("faq (owned)")),
		rec(cols, str("mortgage")),
		rec(cols, flatten.Null),
		rec(cols, str("videos (all)")),
	}})

	got, err := tbl.Filter("Tag", In(SERPFeatureTags...))
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if diff := cmp.Diff([][]string{{"faq (owned)"}, {"videos (all)"}}, got.Strings()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if _, err := tbl.Filter("Nope", In()); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Filter() error = %v, want ErrUnknownColumn", err)
	}
}

func TestAppend(t *testing.T) {
	tbl := Assemble(Source{Records: []flatten.Record{rec([]string{"A"}, str("1"))}})
	tbl.Append(Assemble(Source{Records: []flatten.Record{rec([]string{"B", "A"}, str("b"), str("2"))}}))

	if diff := cmp.Diff([]string{"A", "B"}, tbl.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"1", ""}, {"2", "b"}}, tbl.Strings()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func keywordRecord(keyword, device, cpc string) flatten.Record {
	cols := append([]string{"Keyword", "KeywordDevice", "KeywordTags", "SERP_Date", "Google_Rank", "Google_BaseRank", "Google_Url",
		"AdvertiserCompetition", "GlobalSearchVolume", "RegionalSearchVolume", "CPC"}, StatsColumns[5:]...)
	vals := []flatten.Value{
		str(keyword), str(device), str("t"), flatten.Date(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)),
		flatten.Int(1), flatten.Int(1), str("u"),
		flatten.Float(0.5), flatten.Float(100), flatten.Float(80), flatten.String(cpc),
	}
	for range StatsColumns[5:] {
		vals = append(vals, flatten.Int(10))
	}
	return rec(cols, vals...)
}

func TestSplitKeywordOutputs(t *testing.T) {
	tbl := Assemble(Source{
		Records: []flatten.Record{
			keywordRecord("refi", "Desktop", "1.5"),
			keywordRecord("refi", "Smartphone", "1.5"),
			keywordRecord("heloc", "Desktop", "2"),
		},
		Metadata: []Pair{{"Domain", str("example.com")}},
	})

	out, err := SplitKeywordOutputs(tbl)
	if err != nil {
		t.Fatalf("SplitKeywordOutputs() error = %v", err)
	}
	full, rankings, stats := out.KeywordRankings, out.Rankings, out.Stats

	wantFull := []string{
		"Keyword", "KeywordDevice", "Domain", "KeywordTags", "SERP_Date",
		"Google_Rank", "Google_BaseRank", "Google_Url",
		"AdvertiserCompetition", "GlobalSearchVolume", "RegionalSearchVolume", "CPC",
		"trend_mar", "trend_feb", "trend_jan", "trend_dec", "trend_nov", "trend_oct",
		"trend_sep", "trend_aug", "trend_jul", "trend_jun", "trend_may", "trend_apr",
	}
	if diff := cmp.Diff(wantFull, full.Columns); diff != "" {
		t.Errorf("keyword ranking columns mismatch (-want +got):\n%s", diff)
	}
	if full.Len() != 3 {
		t.Errorf("keyword rankings = %d rows, want 3", full.Len())
	}
	if got := full.Strings()[0][2]; got != "example.com" {
		t.Errorf("Domain = %q, want example.com", got)
	}

	if diff := cmp.Diff(RankingColumns, rankings.Columns); diff != "" {
		t.Errorf("ranking columns mismatch (-want +got):\n%s", diff)
	}
	if rankings.Len() != 3 {
		t.Errorf("rankings = %d rows, want 3", rankings.Len())
	}
	if diff := cmp.Diff(StatsColumns, stats.Columns); diff != "" {
		t.Errorf("stats columns mismatch (-want +got):\n%s", diff)
	}
	if stats.Len() != 2 {
		t.Errorf("stats = %d rows, want 2 after dedup", stats.Len())
	}

	_, err = SplitKeywordOutputs(Assemble())
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("error = %v, want ErrUnknownColumn", err)
	}
}

func TestWriteCSV(t *testing.T) {
	tbl := Assemble(Source{Records: []flatten.Record{
		rec([]string{"Keyword", "CPC"}, str("a, b"), flatten.Float(1.25)),
		rec([]string{"Keyword", "CPC"}, str("c"), flatten.Null),
	}})

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "Keyword,CPC\n\"a, b\",1.25\nc,\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestPreview(t *testing.T) {
	var recs []flatten.Record
	for _, k := range []string{"k1", "k2", "k3"} {
		recs = append(recs, rec([]string{"Keyword"}, str(k)))
	}
	tbl := Assemble(Source{Records: recs})

	var buf bytes.Buffer
	tbl.Preview(&buf, 2)
	out := buf.String()

	if !strings.Contains(out, "k2") || strings.Contains(out, "k3") {
		t.Errorf("Preview() did not limit rows:\n%s", out)
	}
	if !strings.Contains(strings.ToLower(out), "2 of 3 rows") {
		t.Errorf("Preview() missing footer:\n%s", out)
	}
}
