package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/usecase"
	"github.com/Raphahf6/raio-x-360-back/internal/data"
)

// DialogueConfig contains the dialogue texts loaded from YAML
type DialogueConfig struct {
	ResponderPrompt string            `yaml:"responder_prompt"`
	Keywords        KeywordsConfig    `yaml:"keywords"`
	Texts           TextsConfig       `yaml:"texts"`
	Menu            MenuConfig        `yaml:"menu"`
	OrderTemplates  map[string]string `yaml:"order_templates"`
}

// KeywordsConfig contains the fragments that steer the state machine
type KeywordsConfig struct {
	Reset []string `yaml:"reset"`
	Human []string `yaml:"human"`
}

// TextsConfig contains fixed replies
type TextsConfig struct {
	HumanAck       string `yaml:"human_ack"`
	Apology        string `yaml:"apology"`
	RetryLabel     string `yaml:"retry_label"`
	StorageApology string `yaml:"storage_apology"`
}

// MenuConfig contains the catalog menu texts
type MenuConfig struct {
	Greeting     string   `yaml:"greeting"`
	EmptyCatalog string   `yaml:"empty_catalog"`
	Footer       string   `yaml:"footer"`
	Actions      []string `yaml:"actions"`
}

// LoadDialogueConfig loads dialogue configuration from YAML file
func LoadDialogueConfig(configPath string) (*DialogueConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/dialogue.yaml",
			"./configs/dialogue.yaml",
			"/etc/salesbridge/dialogue.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "dialogue.yaml"))
		}
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "dialogue.yaml"))
		}
	}

	var raw []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			raw = b
			loadedPath = p
			break
		}
	}

	if raw == nil {
		if configPath != "" {
			return nil, fmt.Errorf("read %s: %w", configPath, os.ErrNotExist)
		}
		fmt.Println("[Config] No dialogue.yaml found, using defaults")
		return DefaultDialogueYAML(), nil
	}

	fmt.Printf("[Config] Loading dialogue texts from: %s\n", loadedPath)

	var config DialogueConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse dialogue.yaml: %w", err)
	}

	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *DialogueConfig) fillDefaults() {
	defaults := DefaultDialogueYAML()

	if c.ResponderPrompt == "" {
		c.ResponderPrompt = defaults.ResponderPrompt
	}
	if len(c.Keywords.Reset) == 0 {
		c.Keywords.Reset = defaults.Keywords.Reset
	}
	if len(c.Keywords.Human) == 0 {
		c.Keywords.Human = defaults.Keywords.Human
	}

	if c.Texts.HumanAck == "" {
		c.Texts.HumanAck = defaults.Texts.HumanAck
	}
	if c.Texts.Apology == "" {
		c.Texts.Apology = defaults.Texts.Apology
	}
	if c.Texts.RetryLabel == "" {
		c.Texts.RetryLabel = defaults.Texts.RetryLabel
	}
	if c.Texts.StorageApology == "" {
		c.Texts.StorageApology = defaults.Texts.StorageApology
	}

	if c.Menu.Greeting == "" {
		c.Menu.Greeting = defaults.Menu.Greeting
	}
	if c.Menu.EmptyCatalog == "" {
		c.Menu.EmptyCatalog = defaults.Menu.EmptyCatalog
	}
	if c.Menu.Footer == "" {
		c.Menu.Footer = defaults.Menu.Footer
	}
	if len(c.Menu.Actions) == 0 {
		c.Menu.Actions = defaults.Menu.Actions
	}
}

// DefaultDialogueYAML returns the built-in dialogue texts
func DefaultDialogueYAML() *DialogueConfig {
	d := usecase.DefaultDialogueConfig()
	return &DialogueConfig{
		ResponderPrompt: data.DefaultResponderPrompt,
		Keywords: KeywordsConfig{
			Reset: d.ResetKeywords,
			Human: d.HumanKeywords,
		},
		Texts: TextsConfig{
			HumanAck:       d.HumanAck,
			Apology:        d.Apology,
			RetryLabel:     d.RetryLabel,
			StorageApology: d.StorageApology,
		},
		Menu: MenuConfig{
			Greeting:     d.Menu.Greeting,
			EmptyCatalog: d.Menu.EmptyCatalog,
			Footer:       d.Menu.Footer,
			Actions:      d.Menu.Actions,
		},
	}
}
