package xmldecoder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/core/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Кадастровый номер: округ:район:квартал:участок, например 77:01:0001001:456
var cadastralPattern = regexp.MustCompile(`\b\d{2}:\d{2}:\d{3,7}:\d+\b`)

var emptyNamespaceDecl = regexp.MustCompile(`\s+xmlns:\w+=""`)

// Маркеры сведений, которые управляющий не раскрывает
var restrictedMarkers = []string{
	"сведения скрыты",
	"информация скрыта",
	"не подлежит раскрытию",
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
}

// text возвращает первое непустое значение по списку выражений XPath
func text(n *xmlquery.Node, exprs ...string) string {
	if n == nil {
		return ""
	}
	for _, expr := range exprs {
		if found := xmlquery.FindOne(n, expr); found != nil {
			if v := strings.TrimSpace(found.InnerText()); v != "" {
				return v
			}
		}
	}
	return ""
}

// parseDecimal разбирает денежную сумму в локальной записи:
// "5 000 000,50", "5.000.000,50", "5,000,000.50", "5000000 руб."
func parseDecimal(raw string) *decimal.Decimal {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ",.")
	if s == "" {
		return nil
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// разделитель дробной части - тот, что стоит последним
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return nil
	}
	return &d
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, constants.RegistryLocation); err == nil {
			return &t
		}
	}
	return nil
}

func parseInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseGUID(raw string) *uuid.UUID {
	g, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &g
}

// stripHTML переводит HTML-описание лота в плоский текст
func stripHTML(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return collapseSpaces(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapseSpaces(raw)
	}
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p, div, li, tr, td, th, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractCadastral ищет кадастровые номера в тексте, сохраняя порядок первого появления
func extractCadastral(texts ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range texts {
		for _, m := range cadastralPattern.FindAllString(t, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func isRestricted(description string) bool {
	lower := strings.ToLower(description)
	for _, marker := range restrictedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// parseStatus сопоставляет статус из документа с перечислением LotStatus.
// Неизвестное значение дает пустой статус, и конструктор лота ставит Announced.
func parseStatus(raw string) domain.LotStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "cancel"), strings.Contains(s, "отмен"), strings.Contains(s, "аннулир"):
		return domain.LotStatusCancelled
	case strings.Contains(s, "fail"), strings.Contains(s, "не состоял"), strings.Contains(s, "несостоя"):
		return domain.LotStatusFailed
	case strings.Contains(s, "sold"), strings.Contains(s, "продан"), strings.Contains(s, "заверш"):
		return domain.LotStatusSold
	case strings.Contains(s, "active"), strings.Contains(s, "идут"), strings.Contains(s, "прием заявок"), strings.Contains(s, "приём заявок"):
		return domain.LotStatusActive
	case strings.Contains(s, "announce"), strings.Contains(s, "объявл"):
		return domain.LotStatusAnnounced
	}
	return ""
}

// priceSchedule читает график снижения цены. Период без цены пропускается.
func priceSchedule(lot *xmlquery.Node) []domain.PriceSchedule {
	periods := xmlquery.Find(lot, ".//pricereduction/period | .//priceschedule/period | .//pricereductionperiod")
	if len(periods) == 0 {
		return nil
	}
	out := make([]domain.PriceSchedule, 0, len(periods))
	for i, p := range periods {
		price := parseDecimal(text(p, "price", "periodprice", "minprice"))
		if price == nil {
			continue
		}
		period := parseInt(text(p, "number", "periodnumber"))
		if period == 0 {
			period = i + 1
		}
		out = append(out, domain.PriceSchedule{
			Period:    period,
			Price:     *price,
			StartDate: parseDate(text(p, "startdate", "datestart", "datebegin")),
			EndDate:   parseDate(text(p, "enddate", "dateend", "datefinish")),
		})
	}
	return out
}

// cleanContent убирает XML-декларацию и пустые объявления пространств имен
func cleanContent(content string) string {
	content = strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))
	if strings.HasPrefix(content, "<?xml") {
		if i := strings.Index(content, "?>"); i >= 0 {
			content = content[i+2:]
		}
	}
	return emptyNamespaceDecl.ReplaceAllString(content, "")
}

// normalize приводит имена элементов к нижнему регистру и снимает пространства имен,
// чтобы выражения XPath не зависели от схемы конкретной версии документа
func normalize(n *xmlquery.Node) {
	for c := n; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			c.Data = strings.ToLower(c.Data)
			c.Prefix = ""
			c.NamespaceURI = ""
		}
		if c.FirstChild != nil {
			normalize(c.FirstChild)
		}
	}
}
