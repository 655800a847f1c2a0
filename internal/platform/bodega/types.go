package bodega

// marketConfig is one market entry as returned by getMarketConfig and
// getMarketConfigs. Deadline is epoch milliseconds.
type marketConfig struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Deadline int64          `json:"deadline"`
	Status   string         `json:"status"`
	Options  []marketOption `json:"options"`
}

type marketOption struct {
	Side   string  `json:"side"`
	Shares float64 `json:"shares"`
}

// predictionInfo carries live prices for one market. Price fields are
// integers in micro-units of the settlement currency.
type predictionInfo struct {
	Prices struct {
		YesPrice int64 `json:"yesPrice"`
		NoPrice  int64 `json:"noPrice"`
	} `json:"prices"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
