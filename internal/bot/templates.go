package bot

import (
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TemplateConfig represents a bot template entry in YAML.
type TemplateConfig struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Strategy      string  `yaml:"strategy"`
	RiskLevel     string  `yaml:"risk_level"`
	MinProfitPct  float64 `yaml:"min_profit_pct"`
	MaxProfitPct  float64 `yaml:"max_profit_pct"`
	MinInvestment float64 `yaml:"min_investment"`
	MaxInvestment float64 `yaml:"max_investment"`
	IsActive      bool    `yaml:"is_active"`
}

// TemplateFile represents the top-level YAML structure.
type TemplateFile struct {
	Templates []TemplateConfig `yaml:"templates"`
}

// LoadTemplates reads the bot template catalog from a YAML file.
func LoadTemplates(path string) ([]TemplateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for _, t := range file.Templates {
		if t.MinProfitPct > t.MaxProfitPct {
			return nil, fmt.Errorf("template %s: min_profit_pct > max_profit_pct", t.ID)
		}
		if t.MinInvestment <= 0 || t.MinInvestment > t.MaxInvestment {
			return nil, fmt.Errorf("template %s: invalid investment bounds", t.ID)
		}
	}
	return file.Templates, nil
}

// SyncTemplatesToDB upserts catalog entries into the database. Templates are
// deployment-time data; rows are only ever replaced wholesale from the file.
func SyncTemplatesToDB(db *sql.DB, configs []TemplateConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bot_templates (
			id, name, strategy, risk_level, min_profit_pct, max_profit_pct,
			min_investment, max_investment, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			strategy = excluded.strategy,
			risk_level = excluded.risk_level,
			min_profit_pct = excluded.min_profit_pct,
			max_profit_pct = excluded.max_profit_pct,
			min_investment = excluded.min_investment,
			max_investment = excluded.max_investment,
			is_active = excluded.is_active
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cfg := range configs {
		active := 0
		if cfg.IsActive {
			active = 1
		}
		if _, err := stmt.Exec(cfg.ID, cfg.Name, cfg.Strategy, cfg.RiskLevel,
			cfg.MinProfitPct, cfg.MaxProfitPct, cfg.MinInvestment, cfg.MaxInvestment, active); err != nil {
			return fmt.Errorf("failed to upsert template %s: %w", cfg.ID, err)
		}
	}

	return tx.Commit()
}
