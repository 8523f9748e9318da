package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/pumpwatch/internal/config"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively scaffold a config file",
		RunE: func(*cobra.Command, []string) error {
			return runSetup()
		},
	}
}

func runSetup() error {
	in := bufio.NewReader(os.Stdin)
	cfg := config.Default()

	fmt.Println("pumpwatch setup — enter to accept the default in brackets")

	var exchanges []config.Exchange
	for _, name := range []string{"binance", "bybit", "okx"} {
		enabled := askBool(in, fmt.Sprintf("enable %s", name), name == "binance")
		exchanges = append(exchanges, config.Exchange{Name: name, Enabled: enabled})
	}
	cfg.Exchanges = exchanges

	if askBool(in, "send alerts to Telegram", false) {
		cfg.Alerts.Sinks = append(cfg.Alerts.Sinks, "telegram")
		cfg.Alerts.Telegram.BotToken = askSecret("Telegram bot token")
		cfg.Alerts.Telegram.ChatID = ask(in, "Telegram chat id", "")
	}

	cfg.Risk.AccountUSD = askFloat(in, "account size USD", cfg.Risk.AccountUSD)
	cfg.Risk.RiskPct = askFloat(in, "risk per trade (fraction)", cfg.Risk.RiskPct)
	cfg.Risk.MaxOpenTrades = int(askFloat(in, "max open trades", float64(cfg.Risk.MaxOpenTrades)))
	cfg.Store.Path = ask(in, "database path", cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Write(flagConfig); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", flagConfig)
	return nil
}

func ask(in *bufio.Reader, prompt, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", prompt, def)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	line, _ := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func askBool(in *bufio.Reader, prompt string, def bool) bool {
	d := "y/N"
	if def {
		d = "Y/n"
	}
	switch strings.ToLower(ask(in, prompt+" ("+d+")", "")) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

func askFloat(in *bufio.Reader, prompt string, def float64) float64 {
	raw := ask(in, prompt, strconv.FormatFloat(def, 'f', -1, 64))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fmt.Println("not a number, keeping", def)
		return def
	}
	return v
}

// askSecret reads without echo so tokens stay off the terminal scrollback.
func askSecret(prompt string) string {
	fmt.Printf("%s (hidden): ", prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
