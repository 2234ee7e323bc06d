package flatten

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m))
	return m
}

const keywordJSON = `{
	"Id": "3008",
	"Keyword": "refinance calculator",
	"KeywordMarket": "US-en",
	"KeywordLocation": "",
	"KeywordDevice": "Desktop",
	"KeywordTranslation": "",
	"KeywordTags": "mortgage,refinance",
	"CreatedAt": "2021-06-01",
	"RequestUrl": "/search?q=refinance+calculator",
	"KeywordRanking": {
		"date": "2024-03-30",
		"Google": {"Rank": "3", "BaseRank": "2", "Url": "example.com/refi"},
		"Bing": {"Rank": null, "BaseRank": null, "Url": null}
	},
	"KeywordStats": {
		"AdvertiserCompetition": "0.87",
		"GlobalSearchVolume": "90500",
		"RegionalSearchVolume": 74000,
		"CPC": "12.4",
		"LocalSearchTrendsByMonth": {
			"Jan": "60500", "Feb": "60500", "Mar": "74000", "Apr": "74000",
			"May": "74000", "Jun": "74000", "Jul": "74000", "Aug": "74000",
			"Sep": "60500", "Oct": "60500", "Nov": "49500", "Dec": "40500"
		}
	}
}`

func TestFlatten_Keyword(t *testing.T) {
	rec, err := Flatten(decode(t, keywordJSON), KindKeyword)
	require.NoError(t, err)

	get := func(col string) Value {
		v, ok := rec.Get(col)
		require.True(t, ok, "missing column %s", col)
		return v
	}

	assert.Equal(t, "3008", get("Id").Str())
	assert.Equal(t, "refinance calculator", get("Keyword").Str())
	assert.Equal(t, int64(3), get("Google_Rank").Int())
	assert.Equal(t, int64(2), get("Google_BaseRank").Int())
	assert.Equal(t, "example.com/refi", get("Google_Url").Str())
	assert.True(t, get("Bing_Rank").IsNull())
	assert.Equal(t, time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), get("SERP_Date").Time())
	assert.Equal(t, TypeDate, get("CreatedAt").Type())

	assert.Equal(t, TypeFloat, get("CPC").Type())
	assert.InDelta(t, 12.4, get("CPC").Float(), 1e-9)
	assert.InDelta(t, 74000.0, get("RegionalSearchVolume").Float(), 1e-9)
	assert.InDelta(t, 0.87, get("AdvertiserCompetition").Float(), 1e-9)

	assert.Equal(t, int64(74000), get("trend_mar").Int())
	assert.Equal(t, int64(40500), get("trend_dec").Int())

	assert.Equal(t, "mortgage", get("Tag_0").Str())
	assert.Equal(t, "refinance", get("Tag_1").Str())
	_, ok := rec.Get("Tag_2")
	assert.False(t, ok)

	// spread columns come last
	assert.Equal(t, "Tag_1", rec.Columns[len(rec.Columns)-1])
}

func TestFlatten_KeywordColumnOrder(t *testing.T) {
	rec, err := Flatten(decode(t, keywordJSON), KindKeyword)
	require.NoError(t, err)

	want := []string{
		"Id", "Keyword", "KeywordMarket", "KeywordLocation", "KeywordDevice",
		"KeywordTranslation", "KeywordTags", "CreatedAt", "RequestUrl", "SERP_Date",
		"Google_Rank", "Google_BaseRank", "Google_Url",
		"Bing_Rank", "Bing_BaseRank", "Bing_Url",
		"AdvertiserCompetition", "GlobalSearchVolume", "RegionalSearchVolume", "CPC",
		"trend_jan", "trend_feb", "trend_mar", "trend_apr", "trend_may", "trend_jun",
		"trend_jul", "trend_aug", "trend_sep", "trend_oct", "trend_nov", "trend_dec",
		"Tag_0", "Tag_1",
	}
	assert.Equal(t, want, rec.Columns)
}

func TestFlatten_Deterministic(t *testing.T) {
	first, err := Flatten(decode(t, keywordJSON), KindKeyword)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := Flatten(decode(t, keywordJSON), KindKeyword)
		require.NoError(t, err)
		require.Equal(t, first.Columns, again.Columns)
		for j := range first.Values {
			require.True(t, first.Values[j].Equal(again.Values[j]), "column %s differs", first.Columns[j])
		}
	}
}

func TestFlattenBatch_TagSpreadNullFilled(t *testing.T) {
	raws := []map[string]any{
		decode(t, `{"Id":"1","KeywordTags":"a,b,c,d"}`),
		decode(t, `{"Id":"2","KeywordTags":"a"}`),
		decode(t, `{"Id":"3","KeywordTags":null}`),
	}

	recs, err := FlattenBatch(raws, KindKeyword)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	for _, rec := range recs {
		for i := 0; i < 4; i++ {
			_, ok := rec.Get(fmt.Sprintf("Tag_%d", i))
			assert.True(t, ok, "Tag_%d missing", i)
		}
		_, ok := rec.Get("Tag_4")
		assert.False(t, ok)
	}

	v, _ := recs[0].Get("Tag_3")
	assert.Equal(t, "d", v.Str())
	v, _ = recs[1].Get("Tag_0")
	assert.Equal(t, "a", v.Str())
	for i := 1; i < 4; i++ {
		v, _ = recs[1].Get(fmt.Sprintf("Tag_%d", i))
		assert.True(t, v.IsNull())
	}
	v, _ = recs[2].Get("Tag_0")
	assert.True(t, v.IsNull())
}

func TestFlatten_MissingNestedBlocksAreNull(t *testing.T) {
	rec, err := Flatten(decode(t, `{"Id":"1","Keyword":"x","KeywordRanking":"","KeywordTags":""}`), KindKeyword)
	require.NoError(t, err)

	for _, col := range []string{"Google_Rank", "SERP_Date", "CPC", "trend_jan"} {
		v, ok := rec.Get(col)
		require.True(t, ok, col)
		assert.True(t, v.IsNull(), col)
	}
	_, ok := rec.Get("Tag_0")
	assert.False(t, ok, "no tag columns for empty tags")
}

func TestFlatten_CoercionError(t *testing.T) {
	raws := []map[string]any{
		decode(t, `{"Id":"1"}`),
		decode(t, `{"Id":"2","KeywordRanking":{"Google":{"Rank":"N/A"}}}`),
	}

	_, err := FlattenBatch(raws, KindKeyword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeCoercion))

	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindKeyword, ce.Kind)
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, "Google_Rank", ce.Column)
	assert.Equal(t, "N/A", ce.Value)
	assert.Equal(t, "int", ce.Type)
}

func TestFlatten_StructuralMismatch(t *testing.T) {
	_, err := Flatten(decode(t, `{"Id":"1","KeywordStats":["not","an","object"]}`), KindKeyword)
	require.Error(t, err)

	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "KeywordStats", ce.Column)
	assert.Equal(t, "object", ce.Type)
}

func TestFlatten_Tag(t *testing.T) {
	rec, err := Flatten(decode(t, `{
		"Id": "77", "Tag": "faq (owned)", "Type": "Standard", "CreatedAt": "2022-01-05",
		"Keywords": {"Id": ["3008", "3009", "3010"]}
	}`), KindTag)
	require.NoError(t, err)

	assert.Equal(t, []string{"Id", "Tag", "Type", "CreatedAt", "Keywords", "KeywordCount"}, rec.Columns)
	v, _ := rec.Get("Keywords")
	assert.Equal(t, "3008,3009,3010", v.Str())
	v, _ = rec.Get("KeywordCount")
	assert.Equal(t, int64(3), v.Int())
}

func TestFlatten_TagKeywordShapes(t *testing.T) {
	tests := []struct {
		name      string
		keywords  string
		wantJoin  string
		wantNull  bool
		wantCount int64
	}{
		{"single id", `{"Id":"5"}`, "5", false, 1},
		{"numeric ids", `{"Id":[1,2]}`, "1,2", false, 2},
		{"empty block", `""`, "", true, 0},
		{"null", `null`, "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Flatten(decode(t, `{"Id":"1","Keywords":`+tt.keywords+`}`), KindTag)
			require.NoError(t, err)

			v, _ := rec.Get("Keywords")
			assert.Equal(t, tt.wantNull, v.IsNull())
			if !tt.wantNull {
				assert.Equal(t, tt.wantJoin, v.Str())
			}
			v, _ = rec.Get("KeywordCount")
			assert.Equal(t, tt.wantCount, v.Int())
		})
	}
}

func TestFlattenBatch_SERPFeatures(t *testing.T) {
	raws := []map[string]any{
		decode(t, `{"Rank":"1","BaseRank":"1","Url":"a.com","Protocol":"https","ResultTypes":{"ResultType":["answerbox","faq"]}}`),
		decode(t, `{"Rank":"2","BaseRank":"2","Url":"b.com","Protocol":"https","ResultTypes":{"ResultType":"video"}}`),
		decode(t, `{"Rank":"3","BaseRank":"2","Url":"c.com","Protocol":"http"}`),
	}

	recs, err := FlattenBatch(raws, KindSERP)
	require.NoError(t, err)

	assert.Equal(t, []string{"Rank", "BaseRank", "Url", "Protocol", "serp_feature_0", "serp_feature_1"}, recs[0].Columns)
	v, _ := recs[0].Get("serp_feature_1")
	assert.Equal(t, "faq", v.Str())
	v, _ = recs[1].Get("serp_feature_0")
	assert.Equal(t, "video", v.Str())
	v, _ = recs[1].Get("serp_feature_1")
	assert.True(t, v.IsNull())
	v, _ = recs[2].Get("serp_feature_0")
	assert.True(t, v.IsNull())
}

func TestFlatten_UnknownKind(t *testing.T) {
	_, err := Flatten(map[string]any{}, Kind("site"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFlatten_UnrepresentableNumbersFail(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		column string
	}{
		{"NaN cpc", `{"Id":"1","KeywordStats":{"CPC":"NaN"}}`, "CPC"},
		{"infinite volume", `{"Id":"1","KeywordStats":{"GlobalSearchVolume":"Inf"}}`, "GlobalSearchVolume"},
		{"trend beyond int64", `{"Id":"1","KeywordStats":{"LocalSearchTrendsByMonth":{"Jan":"1e20"}}}`, "trend_jan"},
		{"rank beyond int64", `{"Id":"1","KeywordRanking":{"Google":{"Rank":99999999999999999999}}}`, "Google_Rank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(decode(t, tt.json), KindKeyword)
			require.ErrorIs(t, err, ErrTypeCoercion)

			var ce *CoercionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.column, ce.Column)
		})
	}
}

func TestFlattenBatch_Empty(t *testing.T) {
	recs, err := FlattenBatch(nil, KindSERP)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFlatten_PrefixedExpansion(t *testing.T) {
	schema := &Schema{
		Kind:    "stats-only",
		Version: 1,
		Rules: []Rule{
			Expand{Path: "stats", Prefix: "stats", Rules: []Rule{
				Field{Path: "cpc", Type: TypeFloat},
				Field{Path: "volume", Type: TypeFloat},
			}},
		},
	}

	recs, err := flattenWith(schema, []map[string]any{decode(t, `{"stats": {"cpc": "1.5", "volume": "100"}}`)})
	require.NoError(t, err)
	rec := recs[0]

	assert.Equal(t, []string{"stats_cpc", "stats_volume"}, rec.Columns)
	cpc, _ := rec.Get("stats_cpc")
	vol, _ := rec.Get("stats_volume")
	assert.Equal(t, TypeFloat, cpc.Type())
	assert.Equal(t, 1.5, cpc.Float())
	assert.Equal(t, TypeFloat, vol.Type())
	assert.Equal(t, 100.0, vol.Float())
}
