package discovery

import "strings"

// synonymPairs maps English product vocabulary to its katakana form. The
// table is applied in both directions.
var synonymPairs = [][2]string{
	{"sony", "ソニー"},
	{"panasonic", "パナソニック"},
	{"canon", "キャノン"},
	{"nikon", "ニコン"},
	{"nintendo", "任天堂"},
	{"olympus", "オリンパス"},
	{"casio", "カシオ"},
	{"seiko", "セイコー"},
	{"makita", "マキタ"},
	{"dyson", "ダイソン"},
	{"bose", "ボーズ"},
	{"apple", "アップル"},
	{"playstation", "プレイステーション"},
	{"headphone", "ヘッドホン"},
	{"speaker", "スピーカー"},
	{"camera", "カメラ"},
	{"keyboard", "キーボード"},
	{"watch", "ウォッチ"},
	{"wireless", "ワイヤレス"},
	{"game", "ゲーム"},
}

// abbreviations expand common shorthand into the full searchable name.
var abbreviations = map[string]string{
	"ps5":  "PlayStation 5",
	"ps4":  "PlayStation 4",
	"ps3":  "PlayStation 3",
	"gba":  "ゲームボーイアドバンス",
	"gbc":  "ゲームボーイカラー",
	"sfc":  "スーパーファミコン",
	"fc":   "ファミコン",
	"ds":   "ニンテンドーDS",
	"3ds":  "ニンテンドー3DS",
	"wiiu": "Wii U",
}

var synonyms = map[string]string{}

func init() {
	for _, p := range synonymPairs {
		synonyms[p[0]] = p[1]
		synonyms[p[1]] = p[0]
	}
}

// substituteSynonyms returns every variant of the keyword produced by
// replacing exactly one token through the synonym or abbreviation tables.
func substituteSynonyms(keyword string) []string {
	tokens := strings.Fields(strings.ToLower(keyword))
	var variants []string
	for i, t := range tokens {
		replacement, ok := synonyms[t]
		if !ok {
			replacement, ok = abbreviations[t]
		}
		if !ok {
			continue
		}
		variant := make([]string, len(tokens))
		copy(variant, tokens)
		variant[i] = replacement
		variants = append(variants, strings.Join(variant, " "))
	}
	return variants
}
