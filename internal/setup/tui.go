package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/corpsim/config"
	"github.com/vadiminshakov/corpsim/internal/entity"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const generatedConfigFile = "config.gen.yaml"

// RunTUI launches the terminal configuration wizard and writes the result
// to config.gen.yaml.
func RunTUI() error {
	var (
		mode        string
		intervalStr string
		seedStr     string
		provider    string
		apiURL      string
		apiKeyEnv   string
		model       string
		confirm     bool
	)

	// defaults
	mode = string(entity.ModeAuto)
	intervalStr = "30s"
	seedStr = "1"
	apiURL = "https://openrouter.ai/api/v1/chat/completions"
	apiKeyEnv = "CORPSIM_API_KEY"
	model = "deepseek/deepseek-v3.2-exp"

	banner("STEP 1: SIMULATION")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's set up your corporate arena.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Round mode").
				Options(
					huh.NewOption("Auto (rounds run on a timer)", string(entity.ModeAuto)),
					huh.NewOption("Manual (rounds run on demand)", string(entity.ModeManual)),
				).
				Value(&mode),
			huh.NewInput().
				Title("Round interval").
				Description("Duration string (e.g. 10s, 30s, 1m); used in auto mode").
				Value(&intervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("World seed").
				Description("Same seed reproduces the same rosters and economy").
				Value(&seedStr).
				Validate(func(s string) error {
					_, err := strconv.ParseInt(s, 10, 64)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	banner("STEP 2: AI PROVIDER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Who reasons for the employees?").
				Options(
					huh.NewOption("Simulation (offline, free, deterministic)", "sim"),
					huh.NewOption("OpenAI-compatible API", "api"),
				).
				Value(&provider),
		),
	).Run()
	if err != nil {
		return err
	}

	if provider == "api" {
		banner("STEP 3: API SETTINGS")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("API URL").
					Value(&apiURL),
				huh.NewInput().
					Title("API key environment variable").
					Description("The key itself never lands in the config file").
					Value(&apiKeyEnv).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("variable name cannot be empty")
						}
						return nil
					}),
				huh.NewInput().
					Title("Model name").
					Value(&model),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	banner("COMPANIES")
	companies, err := collectCompanies()
	if err != nil {
		return err
	}

	banner("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Mode: %s\nInterval: %s\nSeed: %s\nProvider: %s\nCompanies: %d\n",
		mode, intervalStr, seedStr, provider, len(companies),
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	interval, _ := time.ParseDuration(intervalStr)
	seed, _ := strconv.ParseInt(seedStr, 10, 64)

	tmp := config.ConfigTmp{
		Seed:          seed,
		Mode:          mode,
		RoundInterval: interval,
		Companies:     companies,
	}
	if provider == "api" {
		tmp.Providers = []config.ProviderTmp{
			{Name: "api", APIURL: apiURL, APIKeyEnv: apiKeyEnv, Model: model, Default: true},
			{Name: "sim", Simulated: true},
		}
	} else {
		tmp.Providers = []config.ProviderTmp{{Name: "sim", Simulated: true, Default: true}}
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(generatedConfigFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting simulation...", generatedConfigFile)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

func collectCompanies() ([]config.CompanyTmp, error) {
	var companies []config.CompanyTmp
	for {
		var (
			name     string
			topology string
			sizeStr  string
			fundsStr string
			more     bool
		)
		topology = string(entity.TopologyHierarchical)
		sizeStr = "5"
		fundsStr = "50000"

		err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Company name").
					Value(&name).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("name cannot be empty")
						}
						return nil
					}),
				huh.NewSelect[string]().
					Title("Topology").
					Options(
						huh.NewOption("Hierarchical (CEO, managers, workers)", string(entity.TopologyHierarchical)),
						huh.NewOption("Collective (everyone votes)", string(entity.TopologyCollective)),
					).
					Value(&topology),
				huh.NewInput().
					Title("Headcount").
					Description("Hierarchical companies need at least 4").
					Value(&sizeStr).
					Validate(func(s string) error {
						n, err := strconv.Atoi(s)
						if err != nil || n < 1 {
							return fmt.Errorf("must be a positive number")
						}
						return nil
					}),
				huh.NewInput().
					Title("Starting funds").
					Value(&fundsStr).
					Validate(validateFunds),
				huh.NewConfirm().
					Title("Add another company?").
					Value(&more),
			),
		).Run()
		if err != nil {
			return nil, err
		}

		size, _ := strconv.Atoi(sizeStr)
		if topology == string(entity.TopologyHierarchical) && size < 4 {
			fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("A hierarchy of fewer than 4 has no chain of command; try again."))
			continue
		}

		companies = append(companies, config.CompanyTmp{
			Name:     name,
			Topology: topology,
			Size:     size,
			FundsStr: fundsStr,
		})
		if !more {
			return companies, nil
		}
	}
}

func validateFunds(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func banner(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("CORPSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}
