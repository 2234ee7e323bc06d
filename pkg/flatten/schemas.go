package flatten

// schemas is the registry of declared record schemas. It is read-only
// after init; Lookup is the only accessor.
var schemas = map[Kind]*Schema{
	KindKeyword: keywordV1,
	KindTag:     tagV1,
	KindSERP:    serpV1,
}

var months = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func monthFields() []Rule {
	out := make([]Rule, len(months))
	for i, m := range months {
		out[i] = Field{Path: m, Type: TypeInt}
	}
	return out
}

func rankFields() []Rule {
	return []Rule{
		Field{Path: "Rank", Type: TypeInt},
		Field{Path: "BaseRank", Type: TypeInt},
		Field{Path: "Url", Type: TypeString},
	}
}

var keywordV1 = &Schema{
	Kind:    KindKeyword,
	Version: 1,
	Rules: []Rule{
		Field{Path: "Id", Type: TypeString},
		Field{Path: "Keyword", Type: TypeString},
		Field{Path: "KeywordMarket", Type: TypeString},
		Field{Path: "KeywordLocation", Type: TypeString},
		Field{Path: "KeywordDevice", Type: TypeString},
		Field{Path: "KeywordTranslation", Type: TypeString},
		Field{Path: "KeywordTags", Type: TypeString},
		Field{Path: "CreatedAt", Type: TypeDate},
		Field{Path: "RequestUrl", Type: TypeString},
		Field{Name: "SERP_Date", Path: "KeywordRanking.date", Type: TypeDate},
		Expand{Path: "KeywordRanking", Rules: []Rule{
			Expand{Path: "Google", Prefix: "Google", Rules: rankFields()},
			Expand{Path: "Bing", Prefix: "Bing", Rules: rankFields()},
		}},
		Expand{Path: "KeywordStats", Rules: []Rule{
			Field{Path: "AdvertiserCompetition", Type: TypeFloat},
			Field{Path: "GlobalSearchVolume", Type: TypeFloat},
			Field{Path: "RegionalSearchVolume", Type: TypeFloat},
			Field{Path: "CPC", Type: TypeFloat},
			Expand{Path: "LocalSearchTrendsByMonth", Prefix: "trend", Lower: true, Rules: monthFields()},
		}},
	},
	Spreads: []Spread{
		{Prefix: "Tag_", Path: "KeywordTags", Sep: ","},
	},
}

var tagV1 = &Schema{
	Kind:    KindTag,
	Version: 1,
	Rules: []Rule{
		Field{Path: "Id", Type: TypeString},
		Field{Path: "Tag", Type: TypeString},
		Field{Path: "Type", Type: TypeString},
		Field{Path: "CreatedAt", Type: TypeDate},
		Join{Name: "Keywords", Path: "Keywords.Id", Sep: ","},
		Count{Name: "KeywordCount", Path: "Keywords.Id"},
	},
}

var serpV1 = &Schema{
	Kind:    KindSERP,
	Version: 1,
	Rules: []Rule{
		Field{Path: "Rank", Type: TypeInt},
		Field{Path: "BaseRank", Type: TypeInt},
		Field{Path: "Url", Type: TypeString},
		Field{Path: "Protocol", Type: TypeString},
	},
	Spreads: []Spread{
		{Prefix: "serp_feature_", Path: "ResultTypes.ResultType"},
	},
}
