package events

import "time"

// Event enumerates high-level topics inside the platform core.
type Event string

const (
	EventBotLaunched  Event = "bot.launched"
	EventBotStopped   Event = "bot.stopped"
	EventProfitTick   Event = "bot.profit_tick"
	EventAddressReady Event = "wallet.address_ready"
	EventDeposit      Event = "wallet.deposit"
	EventWithdrawal   Event = "wallet.withdrawal"
	EventLedgerAlert  Event = "ledger.alert"
	EventTierAdvanced Event = "kyc.tier_advanced"
)

// BotEvent carries lifecycle payloads for launched/stopped/tick topics.
type BotEvent struct {
	InstanceID   string    `json:"instance_id"`
	UserID       string    `json:"user_id"`
	TemplateID   string    `json:"template_id"`
	Investment   float64   `json:"investment"`
	CurrentValue float64   `json:"current_value"`
	ProfitPct    float64   `json:"profit_pct"`
	At           time.Time `json:"at"`
}

// WalletEvent carries deposit/withdrawal/address payloads.
type WalletEvent struct {
	UserID   string    `json:"user_id"`
	WalletID string    `json:"wallet_id"`
	Currency string    `json:"currency"`
	Network  string    `json:"network,omitempty"`
	Address  string    `json:"address,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	At       time.Time `json:"at"`
}

// LedgerAlert signals an integrity violation on a wallet.
type LedgerAlert struct {
	WalletID string    `json:"wallet_id"`
	Cached   float64   `json:"cached"`
	Computed float64   `json:"computed"`
	At       time.Time `json:"at"`
}
