package ingest

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultCatalogURL = "https://gutenberg.readingroo.ms/cache/generated/feeds/rdf-files.tar.bz2"

// Config carries everything one catalog run needs. It is built once per
// run and passed explicitly; nothing reads ambient state mid-run.
type Config struct {
	CatalogURL string
	TempDir    string   // scratch area, must not exist when the run starts
	LogDir     string
	SMTPAddr   string   // host:port; empty disables the report mail
	MailFrom   string
	MailTo     []string

	// ProgressEvery controls how often a progress line is logged while
	// reconciling (every Nth book id).
	ProgressEvery int
}

func LoadConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	base := filepath.Join(home, ".bookdex")

	cfg := Config{
		CatalogURL:    defaultCatalogURL,
		TempDir:       filepath.Join(base, "tmp"),
		LogDir:        filepath.Join(base, "logs"),
		ProgressEvery: 500,
	}

	if v := os.Getenv("BOOKDEX_CATALOG_URL"); v != "" {
		cfg.CatalogURL = v
	}
	if v := os.Getenv("BOOKDEX_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := os.Getenv("BOOKDEX_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	cfg.SMTPAddr = os.Getenv("BOOKDEX_SMTP_ADDR")
	cfg.MailFrom = os.Getenv("BOOKDEX_MAIL_FROM")
	if v := os.Getenv("BOOKDEX_MAIL_TO"); v != "" {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.MailTo = append(cfg.MailTo, addr)
			}
		}
	}
	return cfg
}
