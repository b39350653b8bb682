package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tw-screener/internal/analysis/rules"
	"tw-screener/internal/models"
)

func TestMergeMovesReplacementToEnd(t *testing.T) {
	a := record("2024-05-01", "2330", rules.ChipConcentration, 1)
	b := record("2024-05-01", "2317", rules.ChipConcentration, 2)
	a2 := a
	a2.Close = 9

	merged := Merge([]models.HistoryRecord{a, b}, []models.HistoryRecord{a2})
	if len(merged) != 2 || merged[0].Code != "2317" || merged[1].Close != 9 {
		t.Errorf("unexpected merge %+v", merged)
	}

	dup := Merge(nil, []models.HistoryRecord{a, a2})
	if len(dup) != 1 || dup[0].Close != 9 {
		t.Errorf("duplicates within one batch keep the last, got %+v", dup)
	}
}

func TestExportImport(t *testing.T) {
	records := []models.HistoryRecord{
		record("2024-05-01", "2330", rules.ChipConcentration, 812.5),
		record("2024-05-02", "8069", rules.FalseBreakdownRecovery, 233),
	}
	var buf bytes.Buffer
	if err := Export(&buf, records); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), utf8BOM) {
		t.Error("export should start with a BOM")
	}
	if !strings.Contains(buf.String(), "screen_date,code,name") {
		t.Errorf("missing header: %q", buf.String())
	}

	got, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(got) != 2 || got[0].Close != 812.5 || got[1].Code != "8069" {
		t.Errorf("unexpected import %+v", got)
	}

	empty, err := Import(strings.NewReader(""))
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: %v, %d rows", err, len(empty))
	}
}

func TestImportIntoSkipsUnknownStrategies(t *testing.T) {
	dir := t.TempDir()
	dst, _ := NewCSVStore(filepath.Join(dir, "h.csv"))

	src := "screen_date,code,name,sector,strategy,close,entry_price,bias,rsi,net_buy_lots,revenue_yoy,annotation\n" +
		"2024-05-01,2330,台積電,半導體業," + rules.ChipConcentration.Label() + ",800,0,1.2,61,300,12.5,x\n" +
		"2024-05-01,2317,鴻海,其他電子業,舊策略,100,0,0,0,0,0,\n"

	saved, skipped, err := ImportInto(context.Background(), dst, strings.NewReader(src))
	if err != nil {
		t.Fatalf("ImportInto: %v", err)
	}
	if saved != 1 || skipped != 1 {
		t.Errorf("saved %d skipped %d, want 1 and 1", saved, skipped)
	}
	got, _ := dst.Load(context.Background(), HistoryFilter{})
	if len(got) != 1 || got[0].EntryPrice != 800 {
		t.Errorf("unexpected rows %+v", got)
	}
}

func TestCSVLoadDropsUnknownStrategies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.csv")
	content := "screen_date,code,name,sector,strategy,close,entry_price,bias,rsi,net_buy_lots,revenue_yoy,annotation\n" +
		"2024-05-02,2330,台積電,半導體業,chip,800,800,0,0,0,0,\n" +
		"2024-05-01,2317,鴻海,其他電子業,retired,100,100,0,0,0,0,\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	st, _ := NewCSVStore(path)
	got, err := st.Load(context.Background(), HistoryFilter{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Code != "2330" {
		t.Errorf("unexpected rows %+v", got)
	}
}

func TestGroupByDateAndMultiHits(t *testing.T) {
	records := []models.HistoryRecord{
		record("2024-05-01", "2330", rules.ChipConcentration, 1),
		record("2024-05-02", "2330", rules.ChipConcentration, 2),
		record("2024-05-02", "2330", rules.FalseBreakdownRecovery, 2),
		record("2024-05-02", "2317", rules.VolumeLowPullback, 3),
	}

	groups := GroupByDate(records)
	if len(groups) != 2 || groups[0].Date != "2024-05-02" || len(groups[0].Records) != 3 {
		t.Errorf("unexpected groups %+v", groups)
	}

	hits := MultiStrategyHits(records)
	if len(hits) != 1 || hits[0].Code != "2330" || hits[0].Date != "2024-05-02" || len(hits[0].Strategies) != 2 {
		t.Errorf("unexpected hits %+v", hits)
	}
}

func TestRecordFromResult(t *testing.T) {
	r := RecordFromResult("2024-05-02", models.ScanResult{Code: "2330", Close: 801, Strategy: "chip", NetBuyLots: 5})
	if r.EntryPrice != 801 || r.ScreenDate != "2024-05-02" || r.NetBuyLots != 5 {
		t.Errorf("unexpected %+v", r)
	}
}
