package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "tw-screener/internal/errors"
	"tw-screener/pkg/utils"
)

func taipei(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, utils.TaipeiLocation)
}

const t86Fixture = `{
  "stat": "OK",
  "date": "20240503",
  "fields": ["證券代號", "證券名稱", "外陸資買進股數(不含外資自營商)", "三大法人買賣超股數"],
  "data": [
    ["2330", "台積電            ", "9,000,000", "3,250,000"],
    ["2317", "鴻海", "1,000", "-120,000"],
    ["", "", "", ""]
  ]
}`

func jsonServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTWSEInstitutionalRows(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(t86Fixture))
	}))
	defer srv.Close()

	rows, date, err := NewTWSE(testClient(), srv.URL).InstitutionalRows(context.Background(), taipei(2024, 5, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Code != "2330" || rows[0].Name != "台積電" || rows[0].NetBuy != 3_250_000 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].NetBuy != -120_000 {
		t.Errorf("row 1 net = %d", rows[1].NetBuy)
	}
	if !date.Equal(taipei(2024, 5, 3)) {
		t.Errorf("date = %v", date)
	}
	if want := "date=20240503"; !strings.Contains(query, want) {
		t.Errorf("query %q missing %q", query, want)
	}
}

func TestTWSEStatNotOK(t *testing.T) {
	srv := jsonServer(t, map[string]string{"/rwd/zh/fund/T86": `{"stat":"很抱歉，沒有符合條件的資料!"}`})
	_, _, err := NewTWSE(testClient(), srv.URL).InstitutionalRows(context.Background(), taipei(2024, 5, 4))
	if !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("err = %v, want ErrDataNotFound", err)
	}
}

func TestTWSEMarginLayouts(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"legacy", `{"stat":"OK","tables":[
			{"title":"信用交易統計","fields":["項目","買進"],"data":[["融資(交易單位)","1"]]},
			{"title":"融資融券彙總","fields":["股票代號","股票名稱","融資前日餘額","融資今日餘額"],
			 "data":[["2330","台積電","10,000","12,500"],["2317","鴻海","8,000","7,000"]]}
		]}`},
		{"current", `{"stat":"OK","tables":[
			{"fields":["代號","名稱","買進","賣出","現金償還","前日餘額","今日餘額"],
			 "data":[["2330","台積電","1","1","0","10,000","12,500"],["2317","鴻海","0","0","0","8,000","7,000"]]}
		]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := jsonServer(t, map[string]string{"/rwd/zh/margin/MI_MARGN": tt.body})
			change, err := NewTWSE(testClient(), srv.URL).MarginChange(context.Background(), taipei(2024, 5, 3))
			if err != nil {
				t.Fatal(err)
			}
			if change["2330"] != 2.5 || change["2317"] != -1 {
				t.Errorf("change = %v", change)
			}
		})
	}
}

func TestTWSEQuotesAndSectors(t *testing.T) {
	srv := jsonServer(t, map[string]string{
		"/rwd/zh/afterTrading/MI_INDEX": `{"stat":"OK","tables":[
			{"title":"價格指數","fields":["指數","收盤指數"],"data":[["發行量加權股價指數","20,000"]]},
			{"title":"每日收盤行情","fields":["證券代號","證券名稱","成交金額","收盤價","漲跌(+/-)","漲跌價差"],
			 "data":[["2330","台積電","30,000,000,000","800.00","<p style= color:red>+</p>","10.00"],
			         ["2603","長榮","5,000,000,000","190.00","<p style= color:green>-</p>","2.00"],
			         ["1101","台泥","900,000,000","33.00","<p> </p>","0.00"]]}
		]}`,
		"/rwd/zh/afterTrading/BFIAMU": `{"stat":"OK","date":"20240503","fields":["分類指數名稱","成交股數","成交金額"],
			"data":[["半導體類指數","1","60,000"],["航運類指數","1","40,000"]]}`,
	})
	twse := NewTWSE(testClient(), srv.URL)

	rows, err := twse.Quotes(context.Background(), taipei(2024, 5, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Sign != 1 || rows[1].Sign != -1 || rows[2].Sign != 0 {
		t.Errorf("signs = %d %d %d", rows[0].Sign, rows[1].Sign, rows[2].Sign)
	}
	if rows[0].Close != 800 || rows[0].Change != 10 || rows[0].Turnover != 30e9 {
		t.Errorf("row 0 = %+v", rows[0])
	}

	sectors, date, err := twse.SectorTurnover(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sectors) != 2 || sectors[0].Turnover != 60000 || !date.Equal(taipei(2024, 5, 3)) {
		t.Errorf("sectors = %+v date = %v", sectors, date)
	}
}

func TestTPExReports(t *testing.T) {
	var dates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dates = append(dates, r.URL.Query().Get("d"))
		switch r.URL.Path {
		case "/web/stock/3insti/daily_trade/3itrade_hedge_result.php":
			w.Write([]byte(`{"aaData":[["6488","環球晶","1,000","500","1,500,000"],["8069","元太","0","0","-30,000"]]}`))
		case "/web/stock/margin_trading/margin_balance/margin_bal_result.php":
			w.Write([]byte(`{"tables":[{"data":[["6488","環球晶","4,000","10","0","0","6,000"],["8069","元太","x"]]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tpex := NewTPEx(testClient(), srv.URL)
	flow, err := tpex.InstitutionalFlow(context.Background(), taipei(2024, 5, 3))
	if err != nil {
		t.Fatal(err)
	}
	if flow["6488"] != 1_500_000 || flow["8069"] != -30_000 {
		t.Errorf("flow = %v", flow)
	}

	margin, err := tpex.MarginChange(context.Background(), taipei(2024, 5, 3))
	if err != nil {
		t.Fatal(err)
	}
	if margin["6488"] != 2 || len(margin) != 1 {
		t.Errorf("margin = %v", margin)
	}
	for _, d := range dates {
		if d != "113/05/03" {
			t.Errorf("TPEx date param = %q, want 113/05/03", d)
		}
	}
}

func TestTPExEmptyReport(t *testing.T) {
	srv := jsonServer(t, map[string]string{"/web/stock/3insti/daily_trade/3itrade_hedge_result.php": `{"aaData":[]}`})
	_, err := NewTPEx(testClient(), srv.URL).InstitutionalFlow(context.Background(), taipei(2024, 5, 4))
	if !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("err = %v, want ErrDataNotFound", err)
	}
}
