// cmd/tools/rulebook/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"sql-agent-workers/internal/discrepancy"
	"sql-agent-workers/internal/models"
	"sql-agent-workers/pkg/registry"
)

var rulesPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	removeCmd := flag.NewFlagSet("remove", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, removeCmd, listCmd, validateCmd} {
		fs.StringVar(&rulesPath, "path", "configs/rules.yaml", "Path to rule book")
	}

	name := addCmd.String("name", "", "Rule name (e.g., negative_order_totals)")
	description := addCmd.String("description", "", "Description")
	ruleType := addCmd.String("type", "", "Discrepancy type emitted (default business_rule)")
	severity := addCmd.String("severity", "medium", "Severity (low, medium, high)")
	message := addCmd.String("message", "", "Message for each violation")
	check := addCmd.String("check", "", "Native check to run (price_consistency, inventory_balance)")
	sqlQuery := addCmd.String("sql", "", "Declarative query; each returned row is a violation")

	removeName := removeCmd.String("name", "", "Rule name to remove")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *name == "" || (*check == "" && *sqlQuery == "") {
			fmt.Println("Error: name and one of check or sql are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		rule := models.RuleDefinition{
			Name:        *name,
			Description: *description,
			Type:        *ruleType,
			Severity:    models.Severity(*severity),
			Message:     *message,
			Check:       *check,
			SQLQuery:    *sqlQuery,
		}
		if err := addRule(rule); err != nil {
			fmt.Printf("Error adding rule: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved rule: %s\n", *name)

	case "remove":
		removeCmd.Parse(os.Args[2:])
		if *removeName == "" {
			fmt.Println("Error: name is required for remove.")
			removeCmd.Usage()
			os.Exit(1)
		}
		if err := removeRule(*removeName); err != nil {
			fmt.Printf("Error removing rule: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed rule: %s\n", *removeName)

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listRules(); err != nil {
			fmt.Printf("Error listing rules: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRules(); err != nil {
			fmt.Printf("Rule book validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func loadOrCreate() (*registry.RuleBook, error) {
	book, err := registry.LoadRuleBook(rulesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &registry.RuleBook{Version: "1"}, nil
		}
		return nil, fmt.Errorf("failed to load rule book: %w", err)
	}
	return book, nil
}

func addRule(rule models.RuleDefinition) error {
	book, err := loadOrCreate()
	if err != nil {
		return err
	}
	// Bind against the engine's registry so unknown checks fail here rather
	// than at worker startup.
	if err := discrepancy.NewRegistry().Register(discrepancy.Rule{Definition: rule}); err != nil {
		return err
	}
	book.Upsert(rule)
	return registry.SaveRuleBook(book, rulesPath)
}

func removeRule(name string) error {
	book, err := registry.LoadRuleBook(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rule book: %w", err)
	}
	if !book.Remove(name) {
		return fmt.Errorf("rule %s not found", name)
	}
	return registry.SaveRuleBook(book, rulesPath)
}

func listRules() error {
	book, err := registry.LoadRuleBook(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rule book: %w", err)
	}
	reg := discrepancy.NewRegistry()
	if err := reg.SetBusinessRules(discrepancy.FromDefinitions(book.Rules)); err != nil {
		return err
	}
	for i, def := range reg.Definitions() {
		kind, _ := reg.Kind(def.Name)
		severity := string(def.Severity)
		if severity == "" {
			severity = "medium"
		}
		fmt.Printf("%d. %-28s %-9s %-6s %s\n", i+1, def.Name, kind, severity, def.Description)
	}
	return nil
}

func validateRules() error {
	book, err := registry.LoadRuleBook(rulesPath)
	if err != nil {
		return err
	}
	if len(book.Rules) == 0 {
		return fmt.Errorf("rule book contains no rules")
	}
	if err := discrepancy.NewRegistry().SetBusinessRules(discrepancy.FromDefinitions(book.Rules)); err != nil {
		return err
	}
	fmt.Printf("Rule book validation passed. Found %d rules.\n", len(book.Rules))
	return nil
}

const usage = `Usage: rulebook <command> [flags]

Commands:
  add      Add or replace a business rule
  remove   Remove a business rule
  list     List rules in registration order with their evaluation kind
  validate Validate the rule book against the engine's registry
  help     Show this help message

Examples:
  rulebook add -name negative_order_totals -severity high -sql "SELECT order_id FROM sales.orders WHERE total < 0"
  rulebook add -name stock_levels -check inventory_balance -severity high
  rulebook remove -name stock_levels
  rulebook validate -path configs/rules.yaml

Use 'rulebook <command> -h' for more information about a command.
`

func help() {
	fmt.Print(usage)
}
