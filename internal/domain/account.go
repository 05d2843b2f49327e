package domain

// Account is the ledger of one trading identity. It is not safe for concurrent use;
// the owner guards it.
//
// MarginBalance is Balance plus UnrealizedPnL. Outside unlimited mode UsedMargin is
// kept within MarginBalance by the margin checks done before every exposure increase.
type Account struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`

	Balance       float64 `json:"balance"`
	UsedMargin    float64 `json:"used-margin"`
	UnrealizedPnL float64 `json:"unrealized-profit-loss"`
	RealizedPnL   float64 `json:"realized-profit-loss"`
	MarginLevel   float64 `json:"margin-level"`
	FeesPaid      float64 `json:"fees-paid"`

	AssetBalance       float64 `json:"asset-balance"`
	FreeAssetBalance   float64 `json:"free-asset-balance"`
	UnrealizedAssetPnL float64 `json:"unrealized-asset-profit-loss"`

	Unlimited bool `json:"unlimited"`
}

// NewAccount creates an account funded with an initial balance.
func NewAccount(name, currency string, balance float64) *Account {
	return &Account{Name: name, Currency: currency, Balance: balance}
}

// MarginBalance is the equity available to back margin.
func (a *Account) MarginBalance() float64 {
	return a.Balance + a.UnrealizedPnL
}

// FreeMargin is the margin balance not locked by positions.
func (a *Account) FreeMargin() float64 {
	return a.MarginBalance() - a.UsedMargin
}

// HasMargin reports whether an amount of margin can be added.
func (a *Account) HasMargin(amount float64) bool {
	return a.Unlimited || a.FreeMargin() >= amount
}

// UseMargin locks an amount of margin.
func (a *Account) UseMargin(amount float64) {
	a.UsedMargin += amount
}

// ReleaseMargin unlocks an amount of margin, never below zero.
func (a *Account) ReleaseMargin(amount float64) {
	a.UsedMargin -= amount
	if a.UsedMargin < 0 {
		a.UsedMargin = 0
	}
}

// SetUsedMargin replaces the used margin with a recomputed value.
func (a *Account) SetUsedMargin(amount float64) {
	if amount < 0 {
		amount = 0
	}
	a.UsedMargin = amount
}

// UseBalance debits the balance, for fees and commissions.
func (a *Account) UseBalance(amount float64) {
	a.Balance -= amount
	a.FeesPaid += amount
}

// AddRealizedProfitLoss credits (or debits when negative) a realized gain to the balance.
func (a *Account) AddRealizedProfitLoss(amount float64) {
	a.Balance += amount
	a.RealizedPnL += amount
}

// SetUnrealizedProfitLoss replaces the unrealized profit and loss.
func (a *Account) SetUnrealizedProfitLoss(amount float64) {
	a.UnrealizedPnL = amount
}

// UpdateMarginLevel sets MarginLevel from the total used cost, 0 when there is none.
func (a *Account) UpdateMarginLevel(usedCost float64) {
	if usedCost > 0 {
		a.MarginLevel = a.MarginBalance() / usedCost
	} else {
		a.MarginLevel = 0
	}
}

// SetAssetBalance sets the spot valuation in account currency.
func (a *Account) SetAssetBalance(total, free float64) {
	a.AssetBalance = total
	a.FreeAssetBalance = free
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
