package events

import (
	"strings"

	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/prices"
)

// sectorByTicker is the static classification used to target
// sector-scope events. Tickers outside the table have no sector and
// can never be hit by one.
var sectorByTicker = map[string]string{
	// Tecnología
	"AAPL": "Tecnología", "MSFT": "Tecnología", "GOOGL": "Tecnología",
	"GOOG": "Tecnología", "AMZN": "Tecnología", "META": "Tecnología",
	"NVDA": "Tecnología", "AMD": "Tecnología", "INTC": "Tecnología",
	"CRM": "Tecnología", "ORCL": "Tecnología", "ADBE": "Tecnología",
	"CSCO": "Tecnología", "IBM": "Tecnología",

	// Finanzas
	"JPM": "Finanzas", "BAC": "Finanzas", "GS": "Finanzas",
	"MS": "Finanzas", "WFC": "Finanzas", "C": "Finanzas",
	"V": "Finanzas", "MA": "Finanzas", "AXP": "Finanzas",
	"SAN": "Finanzas", "BBVA": "Finanzas",

	// Salud
	"JNJ": "Salud", "PFE": "Salud", "MRK": "Salud",
	"UNH": "Salud", "ABBV": "Salud", "LLY": "Salud",
	"BMY": "Salud", "AMGN": "Salud",

	// Energía
	"XOM": "Energía", "CVX": "Energía", "COP": "Energía",
	"SLB": "Energía", "BP": "Energía", "REP.MC": "Energía",
	"IBE.MC": "Energía",

	// Consumo
	"KO": "Consumo", "PEP": "Consumo", "PG": "Consumo",
	"WMT": "Consumo", "COST": "Consumo", "MCD": "Consumo",
	"NKE": "Consumo", "SBUX": "Consumo", "ITX.MC": "Consumo",

	// Industria
	"BA": "Industria", "CAT": "Industria", "GE": "Industria",
	"HON": "Industria", "UPS": "Industria", "MMM": "Industria",

	// Telecomunicaciones
	"T": "Telecomunicaciones", "VZ": "Telecomunicaciones",
	"TMUS": "Telecomunicaciones", "TEF.MC": "Telecomunicaciones",

	// Automoción
	"TSLA": "Automoción", "F": "Automoción", "GM": "Automoción",

	// Entretenimiento
	"DIS": "Entretenimiento", "NFLX": "Entretenimiento",
}

// SectorOf returns a ticker's sector, if classified. Cash has none.
func SectorOf(ticker string) (string, bool) {
	sector, ok := sectorByTicker[strings.ToUpper(strings.TrimSpace(ticker))]
	return sector, ok
}

// ResolveSectors fills memo with the sector of every classifiable
// ticker in alloc and returns it. The session carries memo across
// turns so lookups happen once per ticker.
func ResolveSectors(alloc []model.Allocation, memo map[string]string) map[string]string {
	if memo == nil {
		memo = make(map[string]string)
	}
	for _, item := range alloc {
		if prices.IsCash(item.Ticker) {
			continue
		}
		if _, seen := memo[item.Ticker]; seen {
			continue
		}
		if sector, ok := SectorOf(item.Ticker); ok {
			memo[item.Ticker] = sector
		}
	}
	return memo
}

func sectorsEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
