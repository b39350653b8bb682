package sources

// subSectors refines the official industry of well-known stocks into the
// themes traders actually follow.
var subSectors = map[string]string{
	"2408": "記憶體", "2344": "記憶體", "2337": "記憶體", "3260": "記憶體", "8299": "記憶體",
	"3006": "記憶體", "2451": "記憶體", "4967": "記憶體", "5289": "記憶體",
	"2382": "AI伺服器", "3231": "AI伺服器", "2356": "AI伺服器", "6669": "AI伺服器",
	"2317": "AI伺服器", "2301": "AI伺服器", "2376": "AI伺服器",
	"3017": "散熱", "3324": "散熱", "3338": "散熱", "3653": "散熱", "2421": "散熱",
	"2454": "IC設計", "3034": "IC設計", "2379": "IC設計", "3035": "IC設計",
	"3529": "IC設計", "3443": "IC設計", "8016": "IC設計", "6415": "IC設計",
	"1513": "重電綠能", "1519": "重電綠能", "1503": "重電綠能", "1504": "重電綠能",
	"1609": "重電綠能", "6806": "重電綠能",
	"2603": "貨櫃航運", "2609": "貨櫃航運", "2615": "貨櫃航運",
	"2618": "航空", "2610": "航空", "2637": "散裝航運", "2606": "散裝航運",
	"2330": "晶圓代工", "2303": "晶圓代工", "5347": "晶圓代工",
}

// OtherSector is used when a stock has no known industry.
const OtherSector = "其他"

// SectorOf resolves the display sector: the curated theme first, then the
// official industry, then OtherSector.
func SectorOf(code, industry string) string {
	if s, ok := subSectors[code]; ok {
		return s
	}
	if industry != "" {
		return industry
	}
	return OtherSector
}
