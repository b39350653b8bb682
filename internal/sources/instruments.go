package sources

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
)

// DefaultISINBaseURL hosts the TWSE security code listings.
const DefaultISINBaseURL = "https://isin.twse.com.tw"

const sourceISIN = "isin"

// isinModes maps ISIN listing pages to markets.
var isinModes = []struct {
	mode   string
	market models.Market
}{
	{"2", models.MarketTWSE},
	{"4", models.MarketTPEx},
}

// Directory is the scan universe: every common stock on both markets.
type Directory struct {
	client  *Client
	baseURL string
}

// NewDirectory creates an instrument directory reader.
func NewDirectory(client *Client, baseURL string) *Directory {
	if baseURL == "" {
		baseURL = DefaultISINBaseURL
	}
	return &Directory{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Instruments lists the common stocks of both markets, sorted by code.
func (d *Directory) Instruments(ctx context.Context) ([]models.Instrument, error) {
	var all []models.Instrument
	for _, m := range isinModes {
		body, err := d.client.Get(ctx, sourceISIN, d.baseURL+"/isin/C_public.jsp", map[string]string{"strMode": m.mode})
		if err != nil {
			return nil, err
		}
		list, err := ParseISINPage(body, m.market)
		if err != nil {
			return nil, err
		}
		all = append(all, list...)
	}
	if len(all) == 0 {
		return nil, apperrors.NewDataError(sourceISIN, "", "no instruments", apperrors.ErrDataNotFound)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	return all, nil
}

// ParseISINPage reads a Big5 ISIN listing and keeps the rows of the 股票
// section. The first cell holds the code and name separated by a full-width space.
func ParseISINPage(body []byte, market models.Market) ([]models.Instrument, error) {
	reader := transform.NewReader(bytes.NewReader(body), traditionalchinese.Big5.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, apperrors.NewDataError(sourceISIN, "", "parse html", err)
	}

	var out []models.Instrument
	section := ""
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 1 {
			section = strings.TrimSpace(cells.First().Text())
			return
		}
		if section != "股票" || cells.Length() < 5 {
			return
		}
		first := strings.TrimSpace(cells.Eq(0).Text())
		code, name, ok := splitCodeName(first)
		if !ok {
			return
		}
		industry := strings.TrimSpace(cells.Eq(4).Text())
		out = append(out, models.Instrument{
			Code:   code,
			Name:   name,
			Market: market,
			Sector: SectorOf(code, industry),
		})
	})
	return out, nil
}

func splitCodeName(s string) (string, string, bool) {
	s = strings.ReplaceAll(s, "\u3000", " ")
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

// Resolver maps stock codes to instruments.
type Resolver struct {
	byCode map[string]models.Instrument
}

// NewResolver indexes a directory listing.
func NewResolver(list []models.Instrument) *Resolver {
	r := &Resolver{byCode: make(map[string]models.Instrument, len(list))}
	for _, inst := range list {
		r.byCode[inst.Code] = inst
	}
	return r
}

// Lookup returns the instrument for code. Unknown codes are assumed listed.
func (r *Resolver) Lookup(code string) (models.Instrument, bool) {
	if r != nil {
		if inst, ok := r.byCode[code]; ok {
			return inst, true
		}
	}
	return models.Instrument{Code: code, Name: code, Market: models.MarketTWSE, Sector: SectorOf(code, "")}, false
}

// Symbol returns the Yahoo ticker for code.
func (r *Resolver) Symbol(code string) string {
	inst, _ := r.Lookup(code)
	return inst.Symbol()
}

// Name returns the stock name, or the code when unknown.
func (r *Resolver) Name(code string) string {
	inst, _ := r.Lookup(code)
	return inst.Name
}

// Sector returns the display sector for code.
func (r *Resolver) Sector(code string) string {
	inst, _ := r.Lookup(code)
	return inst.Sector
}
