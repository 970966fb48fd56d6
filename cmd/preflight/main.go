// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	admin := strings.TrimSpace(os.Getenv("API_KEYS_ADMIN"))
	pub := strings.TrimSpace(os.Getenv("API_KEYS_PUBLIC"))
	addr := strings.TrimSpace(os.Getenv("ADDR"))
	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	tgToken := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	adminChat := strings.TrimSpace(os.Getenv("ADMIN_CHAT_ID"))
	slack := strings.TrimSpace(os.Getenv("SLACK_WEBHOOK"))

	if admin == "" {
		warn("API_KEYS_ADMIN is empty — admin routes are open (dev mode).")
	}
	if pub == "" {
		warn("API_KEYS_PUBLIC is empty — read routes are open (dev mode).")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"API_KEYS_ADMIN": admin, "API_KEYS_PUBLIC": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if addr == "" {
		warn("ADDR is empty; the default bind address will be used.")
	} else {
		ok("ADDR=" + addr)
	}

	switch driver {
	case "", "sqlite":
		if dbURL == "" {
			warn("DATABASE_URL empty — sqlite will use the default apiwatch.db file.")
		} else {
			ok("sqlite at " + dbURL)
		}
	case "postgres":
		if dbURL == "" {
			fail("DATABASE_DRIVER=postgres but DATABASE_URL is empty.")
		}
		ok("postgres DSN present")
	case "memory":
		warn("DATABASE_DRIVER=memory — all state is lost on restart.")
	default:
		fail("unknown DATABASE_DRIVER " + driver)
	}

	if tgToken == "" && slack == "" {
		warn("no TELEGRAM_BOT_TOKEN or SLACK_WEBHOOK — alerts will only be logged.")
	}
	if tgToken != "" && adminChat == "" {
		fail("TELEGRAM_BOT_TOKEN set but ADMIN_CHAT_ID empty (no fallback recipient).")
	}
	if tgToken != "" {
		ok("telegram channel configured")
	}
	if slack != "" {
		ok("slack channel configured")
	}

	ok("preflight passed")
}
