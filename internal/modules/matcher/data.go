package matcher

import "sort"

// rawBrandAliases maps katakana/kanji/romaji brand variants to a canonical
// lowercase English form. Keys are normalised at init so lookups hit the
// tokenizer's output directly.
var rawBrandAliases = map[string]string{
	"ソニー": "sony", "sony": "sony",
	"パナソニック": "panasonic", "panasonic": "panasonic", "松下": "panasonic",
	"シャープ": "sharp", "sharp": "sharp",
	"東芝": "toshiba", "toshiba": "toshiba",
	"日立": "hitachi", "hitachi": "hitachi",
	"三菱": "mitsubishi", "mitsubishi": "mitsubishi",
	"キヤノン": "canon", "キャノン": "canon", "canon": "canon",
	"ニコン": "nikon", "nikon": "nikon",
	"オリンパス": "olympus", "olympus": "olympus",
	"富士フイルム": "fujifilm", "フジフイルム": "fujifilm", "fujifilm": "fujifilm",
	"ペンタックス": "pentax", "pentax": "pentax",
	"シグマ": "sigma", "sigma": "sigma",
	"タムロン": "tamron", "tamron": "tamron",
	"ゴープロ": "gopro", "gopro": "gopro",
	"カシオ": "casio", "casio": "casio",
	"セイコー": "seiko", "seiko": "seiko",
	"シチズン": "citizen", "citizen": "citizen",
	"ダイソン": "dyson", "dyson": "dyson",
	"マキタ": "makita", "makita": "makita",
	"アイリスオーヤマ": "irisohyama", "irisohyama": "irisohyama",
	"ツインバード": "twinbird", "twinbird": "twinbird",
	"象印": "zojirushi", "zojirushi": "zojirushi",
	"タイガー": "tiger",
	"バルミューダ": "balmuda", "balmuda": "balmuda",
	"シロカ": "siroca", "siroca": "siroca",
	"任天堂": "nintendo", "ニンテンドー": "nintendo", "nintendo": "nintendo",
	"プレイステーション": "playstation", "playstation": "playstation",
	"ヤマハ": "yamaha", "yamaha": "yamaha",
	"ローランド": "roland", "roland": "roland",
	"コルグ": "korg", "korg": "korg",
	"ボーズ": "bose", "bose": "bose",
	"オーディオテクニカ": "audiotechnica", "audiotechnica": "audiotechnica",
	"ゼンハイザー": "sennheiser", "sennheiser": "sennheiser",
	"アップル": "apple", "apple": "apple",
	"エプソン": "epson", "epson": "epson",
	"ブラザー": "brother", "brother": "brother",
	"リコー": "ricoh", "ricoh": "ricoh",
	"アンカー": "anker", "anker": "anker",
	"バッファロー": "buffalo", "buffalo": "buffalo",
	"エレコム": "elecom", "elecom": "elecom",
	"ロジクール": "logicool", "logicool": "logicool", "logitech": "logicool",
	"ケルヒャー": "karcher", "karcher": "karcher",
	"ブラウン": "braun", "braun": "braun",
	"フィリップス": "philips", "philips": "philips",
	"ダイワ": "daiwa", "daiwa": "daiwa",
	"シマノ": "shimano", "shimano": "shimano",
	"スノーピーク": "snowpeak", "snowpeak": "snowpeak",
	"コールマン": "coleman", "coleman": "coleman",
	"バンダイ": "bandai", "bandai": "bandai",
	"タカラトミー": "takaratomy", "takaratomy": "takaratomy",
	"レゴ": "lego", "lego": "lego",
	"dji": "dji",
	"jbl": "jbl",
	"bissell": "bissell",
}

// rawSynonyms maps product-word variants (mostly katakana) onto one canonical
// English token so transliterated titles overlap.
var rawSynonyms = map[string]string{
	"ヘッドホン": "headphones", "ヘッドフォン": "headphones", "headphone": "headphones", "headphones": "headphones",
	"イヤホン": "earphones", "イヤフォン": "earphones", "earphone": "earphones", "earphones": "earphones", "earbuds": "earphones",
	"ワイヤレス": "wireless", "wireless": "wireless",
	"スピーカー": "speaker", "speaker": "speaker",
	"カメラ": "camera", "camera": "camera",
	"レンズ": "lens", "lens": "lens",
	"掃除機": "vacuum", "クリーナー": "vacuum", "vacuum": "vacuum", "cleaner": "vacuum",
	"炊飯器": "ricecooker", "ricecooker": "ricecooker",
	"電子辞書": "dictionary",
	"キーボード": "keyboard", "keyboard": "keyboard",
	"マウス": "mouse", "mouse": "mouse",
	"モニター": "monitor", "monitor": "monitor",
	"プリンター": "printer", "プリンタ": "printer", "printer": "printer",
	"コントローラー": "controller", "コントローラ": "controller", "controller": "controller",
	"腕時計": "watch", "時計": "watch", "watch": "watch",
	"ドライヤー": "dryer", "dryer": "dryer",
	"加湿器": "humidifier", "humidifier": "humidifier",
	"除湿機": "dehumidifier",
	"扇風機": "fan",
	"ヒーター": "heater", "heater": "heater",
	"テレビ": "tv", "tv": "tv",
	"レコーダー": "recorder", "recorder": "recorder",
	"アンプ": "amp", "amp": "amp",
	"ターンテーブル": "turntable", "turntable": "turntable",
	"ドローン": "drone", "drone": "drone",
	"プロジェクター": "projector", "projector": "projector",
	"ルーター": "router", "router": "router",
	"タブレット": "tablet", "tablet": "tablet",
	"ゲーム機": "console", "console": "console",
	"ミシン": "sewingmachine",
	"電動工具": "powertool",
	"インパクトドライバー": "impactdriver",
}

// productLinePrefixes enumerates product lines whose bare number token should
// be merged with the line name ("hero" + "12" → "hero12").
var productLinePrefixes = map[string]bool{
	"hero":   true,
	"osmo":   true,
	"mavic":  true,
	"air":    true,
	"mini":   true,
	"pocket": true,
}

// noiseWords are condition/marketing fluff excluded from meaningful-token
// overlap.
var noiseWords map[string]bool

var rawNoiseWords = []string{
	"の", "と", "や", "で", "に", "を", "は", "が", "も", "から", "まで",
	"new", "used", "japan", "中古", "新品", "美品", "超美品", "未使用", "未開封",
	"送料無料", "送料", "無料", "即決", "即日発送", "発送", "匿名配送",
	"動作品", "動作確認済み", "動作確認済", "完動品", "動作", "確認",
	"正規品", "正規", "純正品", "現状品", "現状", "訳あり",
	"保証", "保証付き", "箱付き", "箱あり", "箱なし", "付き", "あり", "なし",
	"説明書", "付属品", "おまけ", "セール", "激安", "お得", "格安",
	"人気", "希少", "レア", "限定品", "日本製", "国内正規",
}

// accessoryWords flag part/consumable/cable/mount/filter vocabulary.
// Learned override words from rejection analysis extend this set at runtime.
var accessoryWords map[string]bool

var rawAccessoryWords = []string{
	// Japanese
	"イヤーパッド", "イヤーピース", "イヤーチップ", "ケーブル", "充電ケーブル", "充電器",
	"バッテリー", "電池", "アダプター", "アダプタ", "ケース", "カバー", "ポーチ",
	"フィルム", "保護フィルム", "ガラスフィルム", "液晶保護", "ストラップ", "ホルダー",
	"スタンド", "マウント", "フィルター", "レンズフード", "フード", "リモコン",
	"替刃", "替えブラシ", "ブラシ", "ノズル", "ホース", "紙パック", "ベルト", "バンド",
	"インク", "トナー", "カートリッジ", "リボン", "用紙", "グリップ", "雲台",
	"クリップ", "アーム", "延長コード", "変換", "コネクタ", "プラグ", "ドック",
	"クレードル", "充電スタンド", "部品", "パーツ", "修理", "キャップ", "芯",
	// English
	"cable", "charger", "adapter", "case", "cover", "strap", "holder", "stand",
	"mount", "filter", "hood", "remote", "pouch", "film", "protector", "grip",
	"tripod", "dock", "cradle", "earpads", "eartips", "tips", "pads", "parts",
	"replacement", "spare", "refill", "attachment", "accessory", "accessories",
	"battery", "stylus", "skin",
}

// accessoryConfirmSuffixes confirm a prefix match on an accessory word: a
// token starting with an accessory word counts only when the remainder ends
// with one of these.
var accessoryConfirmSuffixes = []string{"用", "版", "器", "kit", "セット", "set"}

// variantWords distinguish sub-models that share a base model number
// ("v8 slim" vs "v8 absolute").
var variantWords map[string]bool

var rawVariantWords = []string{
	"slim", "extra", "pro", "fluffy", "absolute", "supersonic", "creator",
	"max", "mini", "plus", "lite", "ultra", "neo", "turbo", "sport",
	"premium", "limited", "special", "deluxe", "advance", "origin", "complete",
	"animal", "motorhead", "total", "clean", "exclusive", "titanium", "grade",
	"edition", "digital",
}

// typeGroups partitions product-type vocabulary: two titles whose groups are
// both present but disjoint are talking about different things.
var typeGroups map[string]string

var rawTypeGroups = map[string][]string{
	"body":       {"本体", "body"},
	"case":       {"ケース", "カバー", "case", "cover"},
	"pack":       {"パック", "pack"},
	"box":        {"ボックス", "box", "boxset"},
	"set":        {"セット", "set"},
	"bundle":     {"バンドル", "bundle", "同梱"},
	"refill":     {"詰め替え", "詰替", "refill", "替え"},
	"controller": {"コントローラー", "コントローラ", "controller"},
	"charger":    {"充電器", "charger"},
	"expansion":  {"拡張", "expansion"},
	"promo":      {"プロモ", "promo"},
	"starter":    {"スターター", "starter"},
	"booster":    {"ブースター", "booster"},
}

// apparelWords flag clothing brands and garment vocabulary. Apparel resale is
// size/condition driven and never model-number driven, so the scanner and the
// keyword engine drop these titles outright.
var apparelWords map[string]bool

var rawApparelWords = []string{
	// brands
	"ユニクロ", "uniqlo", "gu", "しまむら", "ザラ", "zara", "h&m",
	"ノースフェイス", "northface", "パタゴニア", "patagonia", "シュプリーム", "supreme",
	"アディダス", "adidas", "ナイキ", "nike", "プーマ", "puma",
	// garments
	"tシャツ", "シャツ", "パーカー", "トレーナー", "スウェット", "ワンピース",
	"スカート", "ジャケット", "コート", "ダウン", "ジーンズ", "デニム",
	"セーター", "ニット", "ブラウス", "カーディガン", "水着", "靴下",
	"スニーカー", "パンプス", "ブーツ", "サンダル",
	"shirt", "hoodie", "sweater", "dress", "skirt", "jacket", "coat",
	"jeans", "denim", "sneakers", "boots", "sandals",
}

// seriesAliasPairs pair a marketing series prefix with the matching internal
// model-code prefix; titles carrying one of each ("v8" + "sv10k") describe a
// single product, not a compatibility list.
var seriesAliasPairs = [][2]string{
	{"v", "sv"},
	{"hero", "chdhx"},
	{"ps", "cfi"},
	{"ps", "cuh"},
	{"switch", "hac"},
}

// brandCanonical, synonymCanonical and brandAliasesByLength are the
// normalised lookup structures derived from the raw tables.
var (
	brandCanonical       map[string]string
	synonymCanonical     map[string]string
	brandAliasesByLength []string
	knownBrands          map[string]bool
)

func init() {
	brandCanonical = make(map[string]string, len(rawBrandAliases))
	knownBrands = make(map[string]bool)
	for alias, canon := range rawBrandAliases {
		brandCanonical[NormalizeText(alias)] = canon
		knownBrands[canon] = true
	}

	synonymCanonical = make(map[string]string, len(rawSynonyms))
	for alias, canon := range rawSynonyms {
		synonymCanonical[NormalizeText(alias)] = canon
	}

	brandAliasesByLength = make([]string, 0, len(brandCanonical))
	for alias := range brandCanonical {
		brandAliasesByLength = append(brandAliasesByLength, alias)
	}
	sort.Slice(brandAliasesByLength, func(i, j int) bool {
		if len(brandAliasesByLength[i]) != len(brandAliasesByLength[j]) {
			return len(brandAliasesByLength[i]) > len(brandAliasesByLength[j])
		}
		return brandAliasesByLength[i] < brandAliasesByLength[j]
	})

	noiseWords = make(map[string]bool, len(rawNoiseWords))
	for _, w := range rawNoiseWords {
		noiseWords[NormalizeText(w)] = true
	}

	accessoryWords = make(map[string]bool, len(rawAccessoryWords))
	for _, w := range rawAccessoryWords {
		accessoryWords[NormalizeText(w)] = true
	}

	variantWords = make(map[string]bool, len(rawVariantWords))
	for _, w := range rawVariantWords {
		variantWords[NormalizeText(w)] = true
	}

	typeGroups = make(map[string]string)
	for group, words := range rawTypeGroups {
		for _, w := range words {
			typeGroups[NormalizeText(w)] = group
		}
	}

	apparelWords = make(map[string]bool, len(rawApparelWords))
	for _, w := range rawApparelWords {
		apparelWords[NormalizeText(w)] = true
	}
}

// IsApparel reports whether a title or keyword is clothing territory.
func IsApparel(text string) bool {
	for _, t := range Tokenize(text) {
		if apparelWords[t] {
			return true
		}
	}
	return false
}

// Brands returns the canonical brand names present in the tokens.
func Brands(tokens []string) []string {
	var brands []string
	seen := make(map[string]bool)
	for _, t := range tokens {
		if knownBrands[t] && !seen[t] {
			seen[t] = true
			brands = append(brands, t)
		}
	}
	return brands
}
