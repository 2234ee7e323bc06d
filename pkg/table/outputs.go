package table

// KeywordRankingColumns is the full keyword ranking output schema: the
// rankings columns followed by the stats and the monthly search trend,
// newest month first.
var KeywordRankingColumns = []string{
	"Keyword",
	"KeywordDevice",
	"Domain",
	"KeywordTags",
	"SERP_Date",
	"Google_Rank",
	"Google_BaseRank",
	"Google_Url",
	"AdvertiserCompetition",
	"GlobalSearchVolume",
	"RegionalSearchVolume",
	"CPC",
	"trend_mar",
	"trend_feb",
	"trend_jan",
	"trend_dec",
	"trend_nov",
	"trend_oct",
	"trend_sep",
	"trend_aug",
	"trend_jul",
	"trend_jun",
	"trend_may",
	"trend_apr",
}

// RankingColumns is the daily rankings output schema.
var RankingColumns = []string{
	"Keyword",
	"KeywordDevice",
	"Domain",
	"KeywordTags",
	"SERP_Date",
	"Google_Rank",
	"Google_BaseRank",
	"Google_Url",
}

// StatsColumns is the keyword stats and search trend output schema.
var StatsColumns = []string{
	"Keyword",
	"AdvertiserCompetition",
	"GlobalSearchVolume",
	"RegionalSearchVolume",
	"CPC",
	"trend_mar",
	"trend_feb",
	"trend_jan",
	"trend_dec",
	"trend_nov",
	"trend_oct",
	"trend_sep",
	"trend_aug",
	"trend_jul",
	"trend_jun",
	"trend_may",
	"trend_apr",
}

// SERPFeatureTags are the tag names that track SERP features.
var SERPFeatureTags = []string{
	"answerbox (all)",
	"answerbox (owned)",
	"faq (all)",
	"faq (owned)",
	"indented (all)",
	"indented (owned)",
	"videos (all)",
	"videos (owned)",
}

// KeywordOutputs are the tables derived from one keyword pull.
type KeywordOutputs struct {
	// KeywordRankings has KeywordRankingColumns, one row per keyword,
	// device and domain.
	KeywordRankings *Table

	// Rankings has RankingColumns.
	Rankings *Table

	// Stats has StatsColumns, one row per distinct keyword stats.
	Stats *Table
}

// SplitKeywordOutputs projects a keyword table onto KeywordRankingColumns
// and splits that into the rankings table and the stats table. Stats repeat
// for every device and domain of a keyword, so the stats table is
// deduplicated.
func SplitKeywordOutputs(t *Table) (KeywordOutputs, error) {
	full, err := t.Project(KeywordRankingColumns)
	if err != nil {
		return KeywordOutputs{}, err
	}
	rankings, err := full.Project(RankingColumns)
	if err != nil {
		return KeywordOutputs{}, err
	}
	stats, err := full.Project(StatsColumns)
	if err != nil {
		return KeywordOutputs{}, err
	}
	return KeywordOutputs{
		KeywordRankings: full,
		Rankings:        rankings,
		Stats:           stats.Distinct(),
	}, nil
}
