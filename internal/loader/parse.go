package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cyfung/portfolio-helper-sub000/internal/model"
)

// ParseHoldings reads the line-oriented holdings format:
//
//	SYMBOL QUANTITY [TARGET%|-] [COMPONENTS]
//
// where COMPONENTS is "+"-joined "<multiplier>x<symbol>" pairs, e.g.
// "2xSPY" or "1.5xQQQ+0.5xTLT". "#" comments and blank lines are
// skipped; a duplicated symbol keeps the last line.
func ParseHoldings(r io.Reader) ([]model.Holding, error) {
	var out []model.Holding
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		h, err := parseHoldingLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d", err, lineNo)
		}

		if i, ok := index[h.Symbol]; ok {
			out[i] = h
			continue
		}
		index[h.Symbol] = len(out)
		out = append(out, h)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: can't read holdings", err)
	}

	return out, nil
}

func parseHoldingLine(line string) (model.Holding, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return model.Holding{}, fmt.Errorf("expected at least symbol and quantity, got %q", line)
	}

	h := model.Holding{Symbol: strings.ToUpper(fields[0])}

	qty, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.Holding{}, fmt.Errorf("%w: can't parse quantity %q", err, fields[1])
	}
	h.Quantity = qty

	if len(fields) > 2 && fields[2] != "-" {
		target, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "%"), 64)
		if err != nil {
			return model.Holding{}, fmt.Errorf("%w: can't parse target weight %q", err, fields[2])
		}
		h.TargetWeightPercent = model.Ptr(target)
	}

	if len(fields) > 3 {
		components, err := parseComponents(fields[3])
		if err != nil {
			return model.Holding{}, err
		}
		h.Components = components
	}

	return h, nil
}

func parseComponents(s string) ([]model.LeveragedComponent, error) {
	parts := strings.Split(s, "+")
	out := make([]model.LeveragedComponent, 0, len(parts))
	for _, part := range parts {
		mult, sym, ok := strings.Cut(part, "x")
		if !ok {
			return nil, fmt.Errorf("expected <multiplier>x<symbol>, got %q", part)
		}
		m, err := strconv.ParseFloat(mult, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: can't parse component multiplier %q", err, mult)
		}
		if sym == "" {
			return nil, fmt.Errorf("empty component symbol in %q", part)
		}
		out = append(out, model.LeveragedComponent{
			Multiplier: m,
			Symbol:     strings.ToUpper(sym),
		})
	}
	return out, nil
}

// ParseCash reads the CSV cash format:
//
//	label,currency,amount[,flags[,ref]]
//
// flags is a space-separated subset of "margin equity"; ref names the
// referenced portfolio when currency is the cross-reference sentinel.
func ParseCash(r io.Reader) ([]model.CashEntry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []model.CashEntry
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: can't read cash csv", err)
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("expected at least label,currency,amount, got %d fields", len(record))
		}

		ce := model.CashEntry{
			Label:    strings.TrimSpace(record[0]),
			Currency: strings.ToUpper(strings.TrimSpace(record[1])),
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: can't parse amount %q for %s", err, record[2], ce.Label)
		}
		ce.Amount = amount

		if len(record) > 3 {
			for _, flag := range strings.Fields(record[3]) {
				switch flag {
				case "margin":
					ce.IsMargin = true
				case "equity":
					ce.IsEquity = true
				default:
					return nil, fmt.Errorf("unknown cash flag %q for %s", flag, ce.Label)
				}
			}
		}

		if len(record) > 4 {
			ce.PortfolioRef = strings.TrimSpace(record[4])
		}
		if ce.Currency == model.CrossRefCurrency && ce.PortfolioRef == "" {
			return nil, fmt.Errorf("cross-reference entry %s names no portfolio", ce.Label)
		}

		out = append(out, ce)
	}

	return out, nil
}

func LoadHoldingsFile(path string) ([]model.Holding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open holdings file", err)
	}
	defer f.Close()
	return ParseHoldings(f)
}

func LoadCashFile(path string) ([]model.CashEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open cash file", err)
	}
	defer f.Close()
	return ParseCash(f)
}
