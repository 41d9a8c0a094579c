package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	SystemMetricsInit  string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string

	// Ledger
	LedgerAppended        string
	LedgerIntegrityFailed string
	WalletHalted          string
	InsufficientBalance   string
	WithdrawalRecorded    string
	ReferralCreditFailed  string

	// Reconciliation
	ReconcilerStarted      string
	ReconcileSweepFailed   string
	ReconcileWalletsHalted string

	// Bots
	BotLaunched       string
	BotStopped        string
	InstancesReloaded string
	TemplateMissing   string
	TemplatesSynced   string
	TemplateLoadFailed string
	TemplateSyncFailed string

	// Profit
	ProfitEngineStarted string
	TickPersistFailed   string

	// Addresses
	AddressAllocated string

	// KYC
	TierAdvanced     string
	DocumentReviewed string

	// Notifications
	RedisNotifierEnabled    string
	TelegramNotifierEnabled string
	TelegramInitFailed      string
	NotifyPublishFailed     string
	NotifierBridgeStarted   string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting bot-core platform...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	SystemMetricsInit:  "System metrics initialized",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",

	// Ledger
	LedgerAppended:        "Ledger append: type=%s amount=%.2f wallet=%s balance=%.2f",
	LedgerIntegrityFailed: "Ledger integrity failure: wallet=%s stored=%.2f derived=%.2f",
	WalletHalted:          "Wallet %s halted pending review",
	InsufficientBalance:   "Insufficient balance: need %.2f, have %.2f",
	WithdrawalRecorded:    "Withdrawal recorded: %.2f %s for user %s to %s",
	ReferralCreditFailed:  "Referral credit failed for user %s: %v",

	// Reconciliation
	ReconcilerStarted:      "Reconciliation sweep started (interval %v)",
	ReconcileSweepFailed:   "Reconciliation sweep failed: %v",
	ReconcileWalletsHalted: "Reconciliation halted %d wallet(s) of %d checked",

	// Bots
	BotLaunched:        "Bot %s launched (template %s, investment %.2f) for user %s",
	BotStopped:         "Bot %s stopped (final value %.2f, profit %.2f%%)",
	InstancesReloaded:  "Reloaded %d running bot instances",
	TemplateMissing:    "Template %s missing for instance %s, skipping",
	TemplatesSynced:    "Synced %d bot templates from catalog",
	TemplateLoadFailed: "Failed to load templates.yaml: %v",
	TemplateSyncFailed: "Failed to sync templates to DB: %v",

	// Profit
	ProfitEngineStarted: "Profit engine started (tick interval %v)",
	TickPersistFailed:   "Failed to persist tick for instance %s: %v",

	// Addresses
	AddressAllocated: "Deposit address allocated: network=%s wallet=%s",

	// KYC
	TierAdvanced:     "User %s advanced to KYC tier %d",
	DocumentReviewed: "KYC document %s for user %s reviewed: %s",

	// Notifications
	RedisNotifierEnabled:    "Redis notifier enabled on channel %s",
	TelegramNotifierEnabled: "Telegram notifier enabled for chat %d",
	TelegramInitFailed:      "Telegram notifier init failed: %v",
	NotifyPublishFailed:     "Notifier %s publish failed: %v",
	NotifierBridgeStarted:   "Notification bridge started (%d sinks)",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動 bot-core 平台...",
	ConfigLoaded:       "設定已載入（埠號：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	SystemMetricsInit:  "系統指標初始化完成",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",

	// Ledger
	LedgerAppended:        "帳本記錄：類型=%s 金額=%.2f 錢包=%s 餘額=%.2f",
	LedgerIntegrityFailed: "帳本完整性檢查失敗：錢包=%s 儲存=%.2f 推導=%.2f",
	WalletHalted:          "錢包 %s 已凍結待審查",
	InsufficientBalance:   "餘額不足：需求 %.2f，現有 %.2f",
	WithdrawalRecorded:    "提領已記錄：%.2f %s，用戶 %s，目標 %s",
	ReferralCreditFailed:  "發放推薦獎勵失敗，用戶 %s：%v",

	// Reconciliation
	ReconcilerStarted:      "對帳巡檢已啟動（間隔 %v）",
	ReconcileSweepFailed:   "對帳巡檢失敗：%v",
	ReconcileWalletsHalted: "對帳已凍結 %d 個錢包（共檢查 %d 個）",

	// Bots
	BotLaunched:        "機器人 %s 已啟動（模板 %s，投資 %.2f），用戶 %s",
	BotStopped:         "機器人 %s 已停止（最終價值 %.2f，收益 %.2f%%）",
	InstancesReloaded:  "已重新載入 %d 個運行中的機器人",
	TemplateMissing:    "找不到模板 %s（實例 %s），略過",
	TemplatesSynced:    "已從目錄同步 %d 個機器人模板",
	TemplateLoadFailed: "讀取 templates.yaml 失敗：%v",
	TemplateSyncFailed: "同步模板到資料庫失敗：%v",

	// Profit
	ProfitEngineStarted: "收益引擎已啟動（間隔 %v）",
	TickPersistFailed:   "寫入收益紀錄失敗，實例 %s：%v",

	// Addresses
	AddressAllocated: "入金地址已分配：網路=%s 錢包=%s",

	// KYC
	TierAdvanced:     "用戶 %s 已升級至 KYC 等級 %d",
	DocumentReviewed: "KYC 文件 %s（用戶 %s）審核結果：%s",

	// Notifications
	RedisNotifierEnabled:    "Redis 通知已啟用，頻道 %s",
	TelegramNotifierEnabled: "Telegram 通知已啟用，聊天室 %d",
	TelegramInitFailed:      "初始化 Telegram 通知失敗：%v",
	NotifyPublishFailed:     "通知器 %s 發送失敗：%v",
	NotifierBridgeStarted:   "通知橋接已啟動（%d 個接收端）",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
