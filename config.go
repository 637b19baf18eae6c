package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	PayPass  string `yaml:"pay_pass"`

	Date     string `yaml:"date"`
	TimeSlot string `yaml:"time_slot"`
	Venue    string `yaml:"venue"`
	Court    string `yaml:"court"`

	WaitTimeoutSeconds float64 `yaml:"wait_timeout_seconds"`
	MaxPollAttempts    int     `yaml:"max_poll_attempts"`

	ReleaseTime      string `yaml:"release_time"`
	ArmBeforeSeconds int    `yaml:"arm_before_seconds"`

	PageLoadTimeout int  `yaml:"page_load_timeout"`
	Headless        bool `yaml:"headless"`
	DebugMode       bool `yaml:"debug_mode"`

	SessionDir         string `yaml:"session_dir"`
	BrowserProfilePath string `yaml:"browser_profile_path"`

	Selectors SelectorConfig `yaml:"selectors"`
}

// SelectorConfig pins down the portal's page structure. The defaults
// match the current deployment; they are configurable so a markup change
// does not require a rebuild.
type SelectorConfig struct {
	PortalURL string `yaml:"portal_url"`

	UsernameInput string `yaml:"username_input"`
	PasswordInput string `yaml:"password_input"`
	RememberMe    string `yaml:"remember_me"`
	LoginSubmit   string `yaml:"login_submit"`

	// The campus button only renders once authenticated; it doubles as
	// the login-confirmed marker.
	CampusButton     string `yaml:"campus_button"`
	CampusButtonText string `yaml:"campus_button_text"`

	VenueTile string `yaml:"venue_tile"`
	DateCell  string `yaml:"date_cell"`

	GridCell      string `yaml:"grid_cell"`
	AvailableText string `yaml:"available_text"`

	FitnessText     string `yaml:"fitness_text"`
	PooledResources string `yaml:"pooled_resources"`
	CourtReadyText  string `yaml:"court_ready_text"`
	CourtIndoor     string `yaml:"court_indoor"`
	CourtOutdoor    string `yaml:"court_outdoor"`

	SubmitButton string `yaml:"submit_button"`
	SubmitText   string `yaml:"submit_text"`

	UnpaidText     string `yaml:"unpaid_text"`
	PayActionText  string `yaml:"pay_action_text"`
	BalancePayText string `yaml:"balance_pay_text"`
	FundPayText    string `yaml:"fund_pay_text"`
	NextStepText   string `yaml:"next_step_text"`
	KeypadInput    string `yaml:"keypad_input"`
	KeypadKey      string `yaml:"keypad_key"`
	KeypadConfirm  string `yaml:"keypad_confirm"`
	PaySuccessText string `yaml:"pay_success_text"`
}

func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		PortalURL: "https://ehall.szu.edu.cn/qljfwapp/sys/lwSzuCgyy/index.do#/sportVenue",

		UsernameInput: "section input#username",
		PasswordInput: "section input#password",
		RememberMe:    "div.container-ge input[type=checkbox]",
		LoginSubmit:   "section a#login_submit",

		CampusButton:     "div.bh-btn-primary",
		CampusButtonText: "粤海校区",

		VenueTile: "img.union-2[src*='%s']",
		DateCell:  "//label/div[contains(.,'%s')]",

		GridCell:      "div.element",
		AvailableText: "可预约",

		FitnessText:     `一楼健身房\(`,
		PooledResources: "//label/div[contains(.,'可预约') and contains(.,'羽毛球场')]",
		CourtReadyText:  `号场\(`,
		CourtIndoor:     "东馆篮球3号场",
		CourtOutdoor:    "天台篮球4号场",

		SubmitButton: "button.bh-btn.bh-btn-default.bh-btn-large",
		SubmitText:   "提交预约",

		UnpaidText:     "未支付",
		PayActionText:  `\)支付`,
		BalancePayText: `\(剩余金额\)支付`,
		FundPayText:    `\(体育经费\)支付`,
		NextStepText:   "下一步",
		KeypadInput:    "input#password",
		KeypadKey:      ".key-%s",
		KeypadConfirm:  ".next-button-max",
		PaySuccessText: "支付成功",
	}
}

func DefaultConfig() *Config {
	dataDir := userDataDir()

	return &Config{
		Date:               "tomorrow",
		TimeSlot:           "20:00-21:00",
		Venue:              "badminton",
		Court:              "",
		WaitTimeoutSeconds: 1.5,
		MaxPollAttempts:    100,
		ArmBeforeSeconds:   60,
		PageLoadTimeout:    30,
		Headless:           false,
		SessionDir:         filepath.Join(dataDir, "session"),
		BrowserProfilePath: filepath.Join(dataDir, "browser-profile"),
		Selectors:          DefaultSelectors(),
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

type runMode int

const (
	modeBook runMode = iota
	modeLogin
	modeLeftover
)

// Validate checks the fields the given operation requires. Credentials
// are needed by every mode; booking targets only by the grid modes.
func (c *Config) Validate(mode runMode) error {
	if c.Username == "" {
		return fmt.Errorf("%w: username is required", ErrConfig)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password is required", ErrConfig)
	}

	if mode == modeLogin {
		return nil
	}

	if _, err := ParseVenueCategory(c.Venue); err != nil {
		return err
	}
	if _, err := ResolveDateSpec(c.Date, time.Now()); err != nil {
		return err
	}
	if c.WaitTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: wait_timeout_seconds must be positive, got %v", ErrConfig, c.WaitTimeoutSeconds)
	}
	if c.MaxPollAttempts <= 0 {
		return fmt.Errorf("%w: max_poll_attempts must be positive, got %d", ErrConfig, c.MaxPollAttempts)
	}

	if mode == modeLeftover {
		return nil
	}

	if c.TimeSlot == "" {
		return fmt.Errorf("%w: time_slot is required", ErrConfig)
	}
	if _, err := ParseCourtSide(c.Court); err != nil {
		return err
	}
	if c.ReleaseTime != "" {
		if _, err := NextRelease(c.ReleaseTime, time.Now()); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) waitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds * float64(time.Second))
}

func (c *Config) pageTimeout() time.Duration {
	if c.PageLoadTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PageLoadTimeout) * time.Second
}

func userDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./courtside-data"
	}
	return filepath.Join(home, ".courtside")
}
